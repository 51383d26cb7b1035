package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/service"
)

// UserService is the account surface used by the handlers
type UserService interface {
	Register(ctx context.Context, in models.RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, identifier, password string) (*models.Token, *models.User, error)
	CurrentUser(ctx context.Context, token string) (*models.User, *auth.Claims, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, id string) error
}

// StockService is the catalog surface used by the handlers
type StockService interface {
	List(ctx context.Context, country string, activeOnly bool) ([]*models.Stock, error)
	Get(ctx context.Context, ticker string) (*models.Stock, error)
	Create(ctx context.Context, in models.StockCreate) (*models.Stock, error)
	Update(ctx context.Context, ticker string, upd models.StockUpdate) (*models.Stock, error)
	Delete(ctx context.Context, ticker string) error
}

// PriceService is the price history surface used by the handlers
type PriceService interface {
	GetRange(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*service.PriceRange, error)
	Chart(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*models.Chart, error)
	RefreshTicker(ctx context.Context, ticker string) (*service.RefreshResult, error)
	Purge(ctx context.Context, ticker string) (int64, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppInfo describes the running service on /health
type AppInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	users  UserService
	stocks StockService
	prices PriceService
	db     Pinger
	redis  Pinger
	app    AppInfo
	logger *logrus.Logger
	now    func() time.Time
}

// NewHandler creates a new Handler. redis may be nil.
func NewHandler(users UserService, stocks StockService, prices PriceService, db, redis Pinger, app AppInfo, logger *logrus.Logger) *Handler {
	return &Handler{
		users:  users,
		stocks: stocks,
		prices: prices,
		db:     db,
		redis:  redis,
		app:    app,
		logger: logger,
		now:    time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// handleError maps service errors to HTTP statuses. Unexpected errors are
// logged and reported without detail.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoPriceData):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		unauthorized(w, err.Error())
	case errors.Is(err, service.ErrInactiveUser), errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": RequestIDFrom(r.Context()),
		}).Error("Request error")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON rejects unknown fields and trailing data
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
