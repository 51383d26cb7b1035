package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/quant-data-service/internal/models"
)

const priceBarColumns = `id, stock_id, date, open, high, low, close, volume, created_at, updated_at`

// UpsertPriceBars inserts bars in a single transaction, overwriting any bar
// already stored for the same stock and date. Returns the number of rows written.
func (db *DB) UpsertPriceBars(ctx context.Context, bars []*models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_bars (stock_id, date, open, high, low, close, volume, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (stock_id, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range bars {
		date := truncateDay(b.Date)
		if err := stmt.QueryRowContext(ctx,
			b.StockID, date, b.Open, b.High, b.Low, b.Close, b.Volume, now,
		).Scan(&b.ID); err != nil {
			return 0, fmt.Errorf("failed to upsert price bar for %s: %w", date.Format(models.DateLayout), err)
		}
		b.Date = date
		b.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(bars), nil
}

// GetPriceBarsRange retrieves bars for a stock between start and end inclusive,
// ordered by date ascending
func (db *DB) GetPriceBarsRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM price_bars
		WHERE stock_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, stockID, truncateDay(start), truncateDay(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars: %w", err)
	}
	defer rows.Close()

	bars := []*models.PriceBar{}
	for rows.Next() {
		b, err := scanPriceBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// GetLatestPriceBar retrieves the most recent bar stored for a stock
func (db *DB) GetLatestPriceBar(ctx context.Context, stockID string) (*models.PriceBar, error) {
	query := `
		SELECT ` + priceBarColumns + `
		FROM price_bars
		WHERE stock_id = $1
		ORDER BY date DESC
		LIMIT 1
	`
	b, err := scanPriceBar(db.conn.QueryRowContext(ctx, query, stockID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("price bars for stock %s: %w", stockID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price bar: %w", err)
	}
	return b, nil
}

// CountPriceBars returns how many bars are stored for a stock
func (db *DB) CountPriceBars(ctx context.Context, stockID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_bars WHERE stock_id = $1`, stockID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count price bars: %w", err)
	}
	return n, nil
}

// DeletePriceBarsByStock removes every bar for a stock
func (db *DB) DeletePriceBarsByStock(ctx context.Context, stockID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_bars WHERE stock_id = $1`, stockID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete price bars: %w", err)
	}
	return result.RowsAffected()
}

// DeletePriceBarsOlderThan removes bars dated before the cutoff for all stocks
func (db *DB) DeletePriceBarsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_bars WHERE date < $1`, truncateDay(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price bars: %w", err)
	}
	return result.RowsAffected()
}

func scanPriceBar(row rowScanner) (*models.PriceBar, error) {
	var b models.PriceBar
	err := row.Scan(
		&b.ID, &b.StockID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Date = truncateDay(b.Date)
	return &b, nil
}

// truncateDay drops the clock portion, keeping the calendar day in UTC
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
