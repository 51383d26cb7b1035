package main

import (
	"github.com/spf13/cobra"
	"github.com/trogers1052/quant-data-service/internal/cache"
	"github.com/trogers1052/quant-data-service/internal/marketdata"
	"github.com/trogers1052/quant-data-service/internal/scheduler"
	"github.com/trogers1052/quant-data-service/internal/service"
)

func newPricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Price history maintenance",
	}

	refresh := &cobra.Command{
		Use:   "refresh [ticker]",
		Short: "Fetch new bars for one ticker, or for every active stock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			prices := newPriceService(a)
			if len(args) == 1 {
				result, err := prices.RefreshTicker(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				cmd.Printf("%s: fetched %d bars, %d stored\n", result.Ticker, result.Fetched, result.Stored)
				return nil
			}

			// same run the daily job performs, pruning included
			return scheduler.New(prices, a.cfg.Scheduler.RefreshAt, a.cfg.Scheduler.RetentionDays, a.logger).RunOnce(cmd.Context())
		},
	}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete bars older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := newPriceService(a).Prune(cmd.Context(), retentionDays(cmd, days, a.cfg.Scheduler.RetentionDays))
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d bars\n", deleted)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "days", 0, "retention in days (defaults to SCHEDULER_RETENTION_DAYS, 0 keeps everything)")

	cmd.AddCommand(refresh, prune)
	return cmd
}

// retentionDays prefers an explicit --days over the configured retention
func retentionDays(cmd *cobra.Command, days, configured int) int {
	if cmd.Flags().Changed("days") {
		return days
	}
	return configured
}

func newPriceService(a *app) *service.PriceService {
	provider := marketdata.NewYahooProvider(a.cfg.MarketData.BaseURL, a.cfg.MarketData.RequestsPerSecond, a.cfg.MarketData.Timeout, a.logger)
	prices := service.NewPriceService(a.db, a.db, provider, a.cfg.Scheduler.LookbackDays, a.logger)
	if a.redis != nil {
		prices.WithCache(cache.NewPriceCache(a.redis, a.cfg.Redis.PriceTTL))
	}
	return prices
}
