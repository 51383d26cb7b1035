package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// UserService handles registration, sign-in and account administration
type UserService struct {
	repo       UserRepository
	tokens     *auth.TokenManager
	revoked    TokenRevoker
	bcryptCost int
	logger     *logrus.Logger
}

// NewUserService creates a UserService. Token revocation is off until WithRevocation is called.
func NewUserService(repo UserRepository, tokens *auth.TokenManager, bcryptCost int, logger *logrus.Logger) *UserService {
	return &UserService{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// WithRevocation enables logout by tracking revoked token IDs in store
func (s *UserService) WithRevocation(store TokenRevoker) *UserService {
	s.revoked = store
	return s
}

// Register creates a new active, non-superuser account
func (s *UserService) Register(ctx context.Context, in models.RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}
	username, email := in.Username, in.Email

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.repo.GetUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err := s.create(ctx, email, username, in.Password, false)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("User registered")
	return user, nil
}

// CreateSuperuser creates an active superuser. Fails when the email or username is taken.
func (s *UserService) CreateSuperuser(ctx context.Context, email, username, password string) (*models.User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if err := validateStruct(models.RegisterInput{
		Username:        username,
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	}); err != nil {
		return nil, err
	}

	exists, err := s.repo.UserExists(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: a user with this email or username already exists", ErrConflict)
	}

	user, err := s.create(ctx, email, username, password, true)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("Superuser created")
	return user, nil
}

func (s *UserService) create(ctx context.Context, email, username, password string, superuser bool) (*models.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:          email,
		Username:       username,
		HashedPassword: hash,
		IsActive:       true,
		IsSuperuser:    superuser,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials and issues an access token. The identifier
// is an email address, or a username when it contains no "@".
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*models.Token, *models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.repo.GetUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = s.repo.GetUserByUsername(ctx, identifier)
	}
	if errors.Is(err, ErrNotFound) {
		auth.VerifyNothing(password)
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if !auth.VerifyPassword(user.HashedPassword, password) {
		s.logger.WithField("user_id", user.ID).Warn("Failed login attempt")
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}

	signed, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, nil, err
	}

	return &models.Token{
		AccessToken: signed,
		TokenType:   auth.TokenType,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, user, nil
}

// CurrentUser resolves a bearer token to an active user
func (s *UserService) CurrentUser(ctx context.Context, token string) (*models.User, *auth.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if revoked {
			return nil, nil, ErrInvalidCredentials
		}
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}
	return user, claims, nil
}

// Logout revokes the token until it would have expired. Without a revocation
// store tokens stay valid until expiry and Logout is a no-op.
func (s *UserService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.revoked == nil || claims == nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.TTL(time.Now()))
}

// ListUsers returns every account
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// UpdateUser applies the non-nil fields of upd to the user
func (s *UserService) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		upd.Email = &email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		upd.Username = &username
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.Password != nil {
		hash, err := auth.HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		user.HashedPassword = hash
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		user.IsSuperuser = *upd.IsSuperuser
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account. Superusers cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor *models.User, id string) error {
	if actor != nil && actor.ID == id {
		return fmt.Errorf("%w: superusers are not allowed to delete themselves", ErrForbidden)
	}
	return s.repo.DeleteUser(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
