package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/logging"
	"github.com/trogers1052/quant-data-service/internal/models"
	"golang.org/x/crypto/bcrypt"
)

func newUserService() (*UserService, *MockRepository) {
	repo := NewMockRepository()
	svc := NewUserService(repo, auth.NewTokenManager("test-secret", time.Hour), bcrypt.MinCost, logging.Discard())
	return svc, repo
}

func validRegistration() models.RegisterInput {
	return models.RegisterInput{
		Username:        "alice",
		Email:           "Alice@Example.com",
		Password:        "s3cretpass",
		ConfirmPassword: "s3cretpass",
	}
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates active non-superuser", func(t *testing.T) {
		svc, _ := newUserService()

		user, err := svc.Register(ctx, validRegistration())
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsSuperuser)
		assert.True(t, auth.VerifyPassword(user.HashedPassword, "s3cretpass"))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, _ := newUserService()

		cases := map[string]func(*models.RegisterInput){
			"missing username":  func(in *models.RegisterInput) { in.Username = " " },
			"missing confirm":   func(in *models.RegisterInput) { in.ConfirmPassword = "" },
			"mismatch":          func(in *models.RegisterInput) { in.ConfirmPassword = "different1" },
			"short password":    func(in *models.RegisterInput) { in.Password, in.ConfirmPassword = "short", "short" },
			"bad email":         func(in *models.RegisterInput) { in.Email = "not-an-email" },
			"email no domain":   func(in *models.RegisterInput) { in.Email = "alice@localhost" },
			"display name form": func(in *models.RegisterInput) { in.Email = "Alice <alice@example.com>" },
		}
		for name, mutate := range cases {
			t.Run(name, func(t *testing.T) {
				in := validRegistration()
				mutate(&in)
				_, err := svc.Register(ctx, in)
				assert.ErrorIs(t, err, ErrValidation)
			})
		}
	})

	t.Run("rejects taken email and username", func(t *testing.T) {
		svc, _ := newUserService()
		_, err := svc.Register(ctx, validRegistration())
		require.NoError(t, err)

		in := validRegistration()
		in.Username = "other"
		_, err = svc.Register(ctx, in)
		require.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, err.Error(), "email already registered")

		in = validRegistration()
		in.Email = "other@example.com"
		_, err = svc.Register(ctx, in)
		require.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, err.Error(), "username already taken")
	})
}

func TestUserService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newUserService()
	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	t.Run("by email issues a bearer token", func(t *testing.T) {
		token, got, err := svc.Authenticate(ctx, "ALICE@example.com", "s3cretpass")
		require.NoError(t, err)
		assert.Equal(t, "bearer", token.TokenType)
		assert.NotEmpty(t, token.AccessToken)
		assert.Equal(t, user.ID, got.ID)
		assert.True(t, token.ExpiresAt.After(time.Now()))
	})

	t.Run("by username", func(t *testing.T) {
		_, got, err := svc.Authenticate(ctx, "alice", "s3cretpass")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password or unknown account", func(t *testing.T) {
		_, _, err := svc.Authenticate(ctx, "alice@example.com", "wrongpass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, _, err = svc.Authenticate(ctx, "ghost@example.com", "s3cretpass")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, _, err = svc.Authenticate(ctx, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive user", func(t *testing.T) {
		stored, err := repo.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		stored.IsActive = false
		require.NoError(t, repo.UpdateUser(ctx, stored))
		t.Cleanup(func() {
			stored.IsActive = true
			repo.UpdateUser(ctx, stored)
		})

		_, _, err = svc.Authenticate(ctx, "alice@example.com", "s3cretpass")
		assert.ErrorIs(t, err, ErrInactiveUser)
	})
}

func TestUserService_CurrentUserAndLogout(t *testing.T) {
	ctx := context.Background()
	svc, repo := newUserService()
	revoker := &MockRevoker{}
	svc.WithRevocation(revoker)

	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	token, _, err := svc.Authenticate(ctx, "alice@example.com", "s3cretpass")
	require.NoError(t, err)

	got, claims, err := svc.CurrentUser(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, _, err = svc.CurrentUser(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Logout(ctx, claims))
	assert.Greater(t, revoker.revoked[claims.ID], time.Duration(0))

	_, _, err = svc.CurrentUser(ctx, token.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	t.Run("deleted user", func(t *testing.T) {
		token, _, err := svc.Authenticate(ctx, "alice@example.com", "s3cretpass")
		require.NoError(t, err)
		require.NoError(t, repo.DeleteUser(ctx, user.ID))

		_, _, err = svc.CurrentUser(ctx, token.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("logout without revocation store is a no-op", func(t *testing.T) {
		plain, _ := newUserService()
		assert.NoError(t, plain.Logout(ctx, claims))
	})
}

func TestUserService_Administration(t *testing.T) {
	ctx := context.Background()
	svc, _ := newUserService()

	admin, err := svc.CreateSuperuser(ctx, "admin@example.com", "admin", "adminpass")
	require.NoError(t, err)
	assert.True(t, admin.IsSuperuser)

	_, err = svc.CreateSuperuser(ctx, "admin@example.com", "admin2", "adminpass")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.CreateSuperuser(ctx, "x@example.com", "x", "short")
	assert.ErrorIs(t, err, ErrValidation)

	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	t.Run("update applies only given fields", func(t *testing.T) {
		inactive := false
		newPass := "brandnewpass"
		updated, err := svc.UpdateUser(ctx, user.ID, models.UserUpdate{IsActive: &inactive, Password: &newPass})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
		assert.Equal(t, "alice", updated.Username)
		assert.True(t, auth.VerifyPassword(updated.HashedPassword, newPass))

		bad := "nope"
		_, err = svc.UpdateUser(ctx, user.ID, models.UserUpdate{Email: &bad})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = svc.UpdateUser(ctx, "missing", models.UserUpdate{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		assert.ErrorIs(t, svc.DeleteUser(ctx, admin, admin.ID), ErrForbidden)
		require.NoError(t, svc.DeleteUser(ctx, admin, user.ID))
		assert.ErrorIs(t, svc.DeleteUser(ctx, admin, user.ID), ErrNotFound)
	})
}
