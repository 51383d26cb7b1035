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

const stockColumns = `id, ticker, name, industry, market, country, currency, is_active, last_updated, created_at, updated_at`

// StockFilter narrows GetAllStocks
type StockFilter struct {
	Country    string
	ActiveOnly bool
}

// CreateStock inserts a new stock. ID is generated when empty.
func (db *DB) CreateStock(ctx context.Context, s *models.Stock) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO stocks (id, ticker, name, industry, market, country, currency, is_active, last_updated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.conn.ExecContext(ctx, query,
		s.ID, s.Ticker, s.Name, nullString(s.Industry), s.Market, s.Country, nullString(s.Currency),
		s.IsActive, s.LastUpdated, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("stock %s: %w", s.Ticker, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create stock: %w", err)
	}

	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetStockByTicker retrieves a stock by ticker
func (db *DB) GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE ticker = $1`
	s, err := scanStock(db.conn.QueryRowContext(ctx, query, ticker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return s, nil
}

// GetStockByID retrieves a stock by ID
func (db *DB) GetStockByID(ctx context.Context, id string) (*models.Stock, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("stock %s: %w", id, ErrNotFound)
	}

	query := `SELECT ` + stockColumns + ` FROM stocks WHERE id = $1`
	s, err := scanStock(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return s, nil
}

// GetAllStocks retrieves stocks ordered by ticker
func (db *DB) GetAllStocks(ctx context.Context, filter StockFilter) ([]*models.Stock, error) {
	query := `
		SELECT ` + stockColumns + `
		FROM stocks
		WHERE ($1 = '' OR country = $1)
		  AND (NOT $2 OR is_active = true)
		ORDER BY ticker ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, filter.Country, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []*models.Stock
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// UpdateStock writes every mutable field of the stock
func (db *DB) UpdateStock(ctx context.Context, s *models.Stock) error {
	query := `
		UPDATE stocks SET
			name = $2, industry = $3, market = $4, country = $5, currency = $6,
			is_active = $7, last_updated = $8, updated_at = $9
		WHERE ticker = $1
	`
	s.UpdatedAt = time.Now().UTC()
	result, err := db.conn.ExecContext(ctx, query,
		s.Ticker, s.Name, nullString(s.Industry), s.Market, s.Country, nullString(s.Currency),
		s.IsActive, s.LastUpdated, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("stock %s: %w", s.Ticker, ErrNotFound)
	}
	return nil
}

// TouchStock records that price data for the stock was refreshed at the given time
func (db *DB) TouchStock(ctx context.Context, id string, at time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE stocks SET last_updated = $2, updated_at = $2 WHERE id = $1`, id, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to touch stock: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("stock %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteStock removes a stock and, by cascade, its price bars
func (db *DB) DeleteStock(ctx context.Context, ticker string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM stocks WHERE ticker = $1`, ticker)
	if err != nil {
		return fmt.Errorf("failed to delete stock: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("stock %s: %w", ticker, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (*models.Stock, error) {
	var s models.Stock
	var industry, currency sql.NullString
	var lastUpdated sql.NullTime

	err := row.Scan(
		&s.ID, &s.Ticker, &s.Name, &industry, &s.Market, &s.Country, &currency,
		&s.IsActive, &lastUpdated, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if industry.Valid {
		s.Industry = industry.String
	}
	if currency.Valid {
		s.Currency = currency.String
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time
		s.LastUpdated = &t
	}
	return &s, nil
}
