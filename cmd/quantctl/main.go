// Command quantctl runs administrative tasks against the quant data service
// database: schema migrations, superuser creation and price maintenance.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quantctl",
		Short:        "Administrative commands for the quant data service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newUsersCmd(), newPricesCmd())
	return root
}
