package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/models"
)

func TestPrompter(t *testing.T) {
	t.Run("reads trimmed lines", func(t *testing.T) {
		var out bytes.Buffer
		p := newPrompter(strings.NewReader(" admin@example.com \nadmin"), &out)

		email, err := p.line("Email")
		require.NoError(t, err)
		assert.Equal(t, "admin@example.com", email)

		username, err := p.line("Username")
		require.NoError(t, err)
		assert.Equal(t, "admin", username)
		assert.Equal(t, "Email: Username: ", out.String())

		_, err = p.line("Password")
		assert.Error(t, err)
	})

	t.Run("confirmation must match", func(t *testing.T) {
		p := newPrompter(strings.NewReader("s3cretpass\ns3cretpass\n"), &bytes.Buffer{})
		pw, err := p.confirmedSecret("Password")
		require.NoError(t, err)
		assert.Equal(t, "s3cretpass", pw)

		p = newPrompter(strings.NewReader("s3cretpass\nother\n"), &bytes.Buffer{})
		_, err = p.confirmedSecret("Password")
		assert.EqualError(t, err, "the two entered values do not match")
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"users", "create-superuser"},
		{"prices", "refresh"},
		{"prices", "prune"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrateDownRejectsNonPositiveSteps(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "down", "--steps", "0"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}

func TestRefreshTakesAtMostOneTicker(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"prices", "refresh", "AAPL", "MSFT"})

	assert.Error(t, root.Execute())
}

type fakeUsers struct {
	got []string
	err error
}

func (f *fakeUsers) CreateSuperuser(ctx context.Context, email, username, password string) (*models.User, error) {
	f.got = []string{email, username, password}
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{Email: email, Username: username, IsSuperuser: true}, nil
}

func TestCreateSuperuser(t *testing.T) {
	ctx := context.Background()

	t.Run("flags skip the prompts", func(t *testing.T) {
		var out bytes.Buffer
		in := superuserInput{email: "admin@example.com", username: "admin", password: "s3cretpass"}
		require.NoError(t, in.complete(newPrompter(strings.NewReader(""), &out)))
		assert.Empty(t, out.String())

		users := &fakeUsers{}
		require.NoError(t, createSuperuser(ctx, users, in, &out))
		assert.Equal(t, []string{"admin@example.com", "admin", "s3cretpass"}, users.got)
		assert.Equal(t, "Superuser admin created successfully!\n", out.String())
	})

	t.Run("prompts only for missing values", func(t *testing.T) {
		var out bytes.Buffer
		in := superuserInput{email: "admin@example.com"}
		require.NoError(t, in.complete(newPrompter(strings.NewReader("admin\ns3cretpass\ns3cretpass\n"), &out)))
		assert.Equal(t, superuserInput{email: "admin@example.com", username: "admin", password: "s3cretpass"}, in)
		assert.Equal(t, "Username: Password: Repeat for confirmation: ", out.String())
	})

	t.Run("existing account", func(t *testing.T) {
		var out bytes.Buffer
		users := &fakeUsers{err: fmt.Errorf("user admin: %w", database.ErrConflict)}
		err := createSuperuser(ctx, users, superuserInput{email: "admin@example.com", username: "admin", password: "s3cretpass"}, &out)
		assert.EqualError(t, err, "user with this email or username already exists")
		assert.Empty(t, out.String())
	})

	t.Run("other failures pass through", func(t *testing.T) {
		users := &fakeUsers{err: errors.New("validation failed: invalid email address")}
		err := createSuperuser(ctx, users, superuserInput{email: "bad", username: "admin", password: "s3cretpass"}, &bytes.Buffer{})
		assert.EqualError(t, err, "validation failed: invalid email address")
	})
}

func TestRetentionDays(t *testing.T) {
	parse := func(t *testing.T, args ...string) (*cobra.Command, int) {
		t.Helper()
		var days int
		cmd := &cobra.Command{Use: "prune"}
		cmd.Flags().IntVar(&days, "days", 0, "")
		require.NoError(t, cmd.Flags().Parse(args))
		return cmd, days
	}

	cmd, days := parse(t)
	assert.Equal(t, 365, retentionDays(cmd, days, 365))

	cmd, days = parse(t, "--days", "30")
	assert.Equal(t, 30, retentionDays(cmd, days, 365))

	cmd, days = parse(t, "--days", "0")
	assert.Equal(t, 0, retentionDays(cmd, days, 365))
}
