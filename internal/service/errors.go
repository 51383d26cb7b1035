package service

import (
	"errors"

	"github.com/trogers1052/quant-data-service/internal/database"
)

var (
	// ErrNotFound and ErrConflict are the repository sentinels, re-exported so
	// callers only need this package
	ErrNotFound = database.ErrNotFound
	ErrConflict = database.ErrConflict

	// ErrValidation is returned for rejected input
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for unknown accounts, wrong passwords and bad tokens
	ErrInvalidCredentials = errors.New("could not validate credentials")
	// ErrInactiveUser is returned when a disabled account signs in
	ErrInactiveUser = errors.New("inactive user")
	// ErrForbidden is returned when the caller lacks the required privileges
	ErrForbidden = errors.New("not enough privileges")
	// ErrNoPriceData is returned when neither the store nor the provider has bars for a range
	ErrNoPriceData = errors.New("no price data available")
)
