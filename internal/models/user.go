package models

import "time"

// User represents an account that can sign in to the service
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegisterInput is the sign-up form
type RegisterInput struct {
	Username        string `json:"username" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// UserUpdate carries optional changes; nil fields are left untouched
type UserUpdate struct {
	Email       *string `json:"email,omitempty" validate:"omitnil,required,email"`
	Username    *string `json:"username,omitempty" validate:"omitnil,required,max=100"`
	Password    *string `json:"password,omitempty" validate:"omitnil,min=8"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

// Token is the OAuth2-style bearer token response
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
