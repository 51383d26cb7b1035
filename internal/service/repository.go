package service

import (
	"context"
	"time"

	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// UserRepository is the user storage used by UserService
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

// StockRepository is the stock catalog storage
type StockRepository interface {
	CreateStock(ctx context.Context, s *models.Stock) error
	GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error)
	GetAllStocks(ctx context.Context, filter database.StockFilter) ([]*models.Stock, error)
	UpdateStock(ctx context.Context, s *models.Stock) error
	TouchStock(ctx context.Context, id string, at time.Time) error
	DeleteStock(ctx context.Context, ticker string) error
}

// PriceRepository is the price bar storage
type PriceRepository interface {
	UpsertPriceBars(ctx context.Context, bars []*models.PriceBar) (int, error)
	GetPriceBarsRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.PriceBar, error)
	GetLatestPriceBar(ctx context.Context, stockID string) (*models.PriceBar, error)
	CountPriceBars(ctx context.Context, stockID string) (int, error)
	DeletePriceBarsByStock(ctx context.Context, stockID string) (int64, error)
	DeletePriceBarsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceCache is the optional read-through cache in front of PriceRepository
type PriceCache interface {
	Get(ctx context.Context, ticker string, start, end time.Time) ([]*models.PriceBar, bool, error)
	Set(ctx context.Context, ticker string, start, end time.Time, bars []*models.PriceBar) error
	Invalidate(ctx context.Context, ticker string) (int, error)
}

// TokenRevoker tracks logged-out tokens
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Publisher emits domain events
type Publisher interface {
	PublishStockAdded(ctx context.Context, stock *models.Stock) error
	PublishStockUpdated(ctx context.Context, stock *models.Stock) error
	PublishStockRemoved(ctx context.Context, ticker string) error
	PublishPricesCached(ctx context.Context, ticker string, bars int) error
}
