package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/quant-data-service/internal/models"
)

const userColumns = `id, email, username, hashed_password, is_active, is_superuser, created_at, updated_at`

// CreateUser inserts a new user. ID is generated when empty.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO users (id, email, username, hashed_password, is_active, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.conn.ExecContext(ctx, query,
		u.ID, u.Email, u.Username, u.HashedPassword, u.IsActive, u.IsSuperuser, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "username", username)
}

func (db *DB) getUser(ctx context.Context, column, value string) (*models.User, error) {
	if column == "id" {
		if _, err := uuid.Parse(value); err != nil {
			return nil, fmt.Errorf("user %s: %w", value, ErrNotFound)
		}
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	var u models.User
	err := db.conn.QueryRowContext(ctx, query, value).Scan(
		&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UserExists reports whether a user with the email or username exists
func (db *DB) UserExists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR username = $2)`,
		email, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListUsers retrieves all users ordered by creation time
func (db *DB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.IsActive, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpdateUser writes every mutable field of the user
func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET
			email = $2, username = $3, hashed_password = $4,
			is_active = $5, is_superuser = $6, updated_at = $7
		WHERE id = $1
	`
	u.UpdatedAt = time.Now().UTC()
	result, err := db.conn.ExecContext(ctx, query,
		u.ID, u.Email, u.Username, u.HashedPassword, u.IsActive, u.IsSuperuser, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
