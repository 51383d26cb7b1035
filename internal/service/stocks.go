package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// StockService manages the ticker catalog
type StockService struct {
	repo      StockRepository
	publisher Publisher
	cache     PriceCache
	logger    *logrus.Logger
	now       func() time.Time
}

// NewStockService creates a StockService. publisher may be nil.
func NewStockService(repo StockRepository, publisher Publisher, logger *logrus.Logger) *StockService {
	return &StockService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithCache lets catalog changes drop cached price ranges for the affected ticker
func (s *StockService) WithCache(c PriceCache) *StockService {
	s.cache = c
	return s
}

// List returns stocks ordered by ticker
func (s *StockService) List(ctx context.Context, country string, activeOnly bool) ([]*models.Stock, error) {
	stocks, err := s.repo.GetAllStocks(ctx, database.StockFilter{
		Country:    strings.ToUpper(strings.TrimSpace(country)),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		return nil, err
	}
	if stocks == nil {
		stocks = []*models.Stock{}
	}
	return stocks, nil
}

// Get returns a stock by ticker, case-insensitively
func (s *StockService) Get(ctx context.Context, ticker string) (*models.Stock, error) {
	return s.repo.GetStockByTicker(ctx, NormalizeTicker(ticker))
}

// Create adds a stock to the catalog
func (s *StockService) Create(ctx context.Context, in models.StockCreate) (*models.Stock, error) {
	stock := &models.Stock{
		Ticker:   NormalizeTicker(in.Ticker),
		Name:     strings.TrimSpace(in.Name),
		Industry: strings.TrimSpace(in.Industry),
		Market:   strings.TrimSpace(in.Market),
		Country:  strings.ToUpper(strings.TrimSpace(in.Country)),
		Currency: strings.ToUpper(strings.TrimSpace(in.Currency)),
		IsActive: true,
	}
	if err := validateStruct(stock); err != nil {
		return nil, err
	}

	if err := s.repo.CreateStock(ctx, stock); err != nil {
		return nil, err
	}
	// ranges cached for an earlier listing under this ticker belong to another stock id
	s.invalidate(ctx, stock.Ticker)

	s.logger.WithField("ticker", stock.Ticker).Info("Stock added")
	s.publish(ctx, models.EventStockAdded, stock.Ticker, func(p Publisher) error {
		return p.PublishStockAdded(ctx, stock)
	})
	return stock, nil
}

// Update applies the non-nil fields of upd and stamps last_updated
func (s *StockService) Update(ctx context.Context, ticker string, upd models.StockUpdate) (*models.Stock, error) {
	stock, err := s.repo.GetStockByTicker(ctx, NormalizeTicker(ticker))
	if err != nil {
		return nil, err
	}

	market, country := stock.Market, stock.Country
	if upd.Name != nil {
		stock.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Industry != nil {
		stock.Industry = strings.TrimSpace(*upd.Industry)
	}
	if upd.Market != nil {
		stock.Market = strings.TrimSpace(*upd.Market)
	}
	if upd.Country != nil {
		stock.Country = strings.ToUpper(strings.TrimSpace(*upd.Country))
	}
	if upd.Currency != nil {
		stock.Currency = strings.ToUpper(strings.TrimSpace(*upd.Currency))
	}
	if upd.IsActive != nil {
		stock.IsActive = *upd.IsActive
	}
	if err := validateStruct(stock); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stock.LastUpdated = &now
	if err := s.repo.UpdateStock(ctx, stock); err != nil {
		return nil, err
	}
	if stock.Market != market || stock.Country != country {
		// provider symbol changed
		s.invalidate(ctx, stock.Ticker)
	}

	s.logger.WithField("ticker", stock.Ticker).Info("Stock updated")
	s.publish(ctx, models.EventStockUpdated, stock.Ticker, func(p Publisher) error {
		return p.PublishStockUpdated(ctx, stock)
	})
	return stock, nil
}

// Delete removes a stock and its price history
func (s *StockService) Delete(ctx context.Context, ticker string) error {
	ticker = NormalizeTicker(ticker)
	if err := s.repo.DeleteStock(ctx, ticker); err != nil {
		return err
	}
	s.invalidate(ctx, ticker)

	s.logger.WithField("ticker", ticker).Info("Stock removed")
	s.publish(ctx, models.EventStockRemoved, ticker, func(p Publisher) error {
		return p.PublishStockRemoved(ctx, ticker)
	})
	return nil
}

// publish sends an event when a publisher is configured. Failures are logged, not returned.
func (s *StockService) publish(ctx context.Context, eventType, ticker string, send func(Publisher) error) {
	if s.publisher == nil {
		return
	}
	if err := send(s.publisher); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":  eventType,
			"ticker": ticker,
		}).Warn("Failed to publish stock event")
	}
}

func (s *StockService) invalidate(ctx context.Context, ticker string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Invalidate(ctx, ticker); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Price cache invalidation failed")
	}
}

// NormalizeTicker trims and upper-cases a ticker
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

var stockFilterActive = database.StockFilter{ActiveOnly: true}
