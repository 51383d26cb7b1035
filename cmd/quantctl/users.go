package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/service"
	"golang.org/x/term"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User management commands",
	}

	var in superuserInput
	create := &cobra.Command{
		Use:   "create-superuser",
		Short: "Create a superuser account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := in.complete(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())); err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			users := service.NewUserService(a.db, auth.NewTokenManager(a.cfg.Auth.SecretKey, a.cfg.Auth.TokenTTL), a.cfg.Auth.BcryptCost, a.logger)
			return createSuperuser(cmd.Context(), users, in, cmd.OutOrStdout())
		},
	}
	create.Flags().StringVar(&in.email, "email", "", "email address (prompted when empty)")
	create.Flags().StringVar(&in.username, "username", "", "username (prompted when empty)")
	create.Flags().StringVar(&in.password, "password", "", "password (prompted without echo when empty)")

	cmd.AddCommand(create)
	return cmd
}

type superuserCreator interface {
	CreateSuperuser(ctx context.Context, email, username, password string) (*models.User, error)
}

type superuserInput struct {
	email    string
	username string
	password string
}

// complete prompts for every value not given on the command line
func (in *superuserInput) complete(p *prompter) error {
	var err error
	if in.email == "" {
		if in.email, err = p.line("Email"); err != nil {
			return err
		}
	}
	if in.username == "" {
		if in.username, err = p.line("Username"); err != nil {
			return err
		}
	}
	if in.password == "" {
		if in.password, err = p.confirmedSecret("Password"); err != nil {
			return err
		}
	}
	return nil
}

func createSuperuser(ctx context.Context, users superuserCreator, in superuserInput, out io.Writer) error {
	user, err := users.CreateSuperuser(ctx, in.email, in.username, in.password)
	if errors.Is(err, service.ErrConflict) {
		return errors.New("user with this email or username already exists")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Superuser %s created successfully!\n", user.Username)
	return nil
}

// prompter reads answers from in, hiding input when in is a terminal
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) secret(label string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.line(label)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}

func (p *prompter) confirmedSecret(label string) (string, error) {
	first, err := p.secret(label)
	if err != nil {
		return "", err
	}
	second, err := p.secret("Repeat for confirmation")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("the two entered values do not match")
	}
	return first, nil
}
