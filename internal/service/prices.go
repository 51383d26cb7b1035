package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/marketdata"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultRangeDays is the chart range used when no dates or period are given
const DefaultRangeDays = 90

// periodDays maps chart presets to a number of days ending today
var periodDays = map[string]int{
	"1w": 7,
	"1m": 30,
	"3m": 90,
	"1y": 365,
}

// PriceRange is the result of a range lookup
type PriceRange struct {
	Stock  *models.Stock
	Start  time.Time
	End    time.Time
	Source string
	Bars   []*models.PriceBar
}

// RefreshResult summarizes an incremental refresh of one stock
type RefreshResult struct {
	Ticker  string `json:"ticker"`
	Fetched int    `json:"fetched"`
	Stored  int    `json:"stored"`
}

// PriceService serves price history, filling the store from the provider on a miss
type PriceService struct {
	stocks       StockRepository
	prices       PriceRepository
	provider     marketdata.Provider
	cache        PriceCache
	publisher    Publisher
	lookbackDays int
	logger       *logrus.Logger
	now          func() time.Time
}

// NewPriceService creates a PriceService. lookbackDays bounds the first fetch for
// a stock that has no stored bars.
func NewPriceService(stocks StockRepository, prices PriceRepository, provider marketdata.Provider, lookbackDays int, logger *logrus.Logger) *PriceService {
	if lookbackDays <= 0 {
		lookbackDays = 365
	}
	return &PriceService{
		stocks:       stocks,
		prices:       prices,
		provider:     provider,
		lookbackDays: lookbackDays,
		logger:       logger,
		now:          time.Now,
	}
}

// WithCache enables the read-through range cache
func (s *PriceService) WithCache(c PriceCache) *PriceService {
	s.cache = c
	return s
}

// WithPublisher enables PRICES_CACHED events
func (s *PriceService) WithPublisher(p Publisher) *PriceService {
	s.publisher = p
	return s
}

// GetRange returns bars for the ticker between start and end inclusive. When the
// store has nothing for the range, or refresh is set, bars are fetched from the
// provider and stored first.
func (s *PriceService) GetRange(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*PriceRange, error) {
	start, end = day(start), day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start date must not be after end date", ErrValidation)
	}

	stock, err := s.stocks.GetStockByTicker(ctx, NormalizeTicker(ticker))
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "prices.GetRange",
		attribute.String("ticker", stock.Ticker),
		attribute.String("start", start.Format(models.DateLayout)),
		attribute.String("end", end.Format(models.DateLayout)),
		attribute.Bool("refresh", refresh),
	)
	defer span.End()

	result := &PriceRange{Stock: stock, Start: start, End: end, Source: models.SourceCache}

	if s.cache != nil && !refresh {
		bars, ok, err := s.cache.Get(ctx, stock.Ticker, start, end)
		if err != nil {
			s.logger.WithError(err).WithField("ticker", stock.Ticker).Warn("Price cache read failed")
		} else if ok && cachedFor(bars, stock.ID) {
			span.SetAttributes(attribute.String("source", "redis"))
			result.Bars = bars
			return result, nil
		}
	}

	bars, err := s.prices.GetPriceBarsRange(ctx, stock.ID, start, end)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if len(bars) == 0 || refresh {
		fetched, err := s.fetchAndStore(ctx, stock, start, end)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		if fetched == 0 && len(bars) == 0 {
			return nil, fmt.Errorf("%w: %s %s to %s", ErrNoPriceData, stock.Ticker,
				start.Format(models.DateLayout), end.Format(models.DateLayout))
		}
		if fetched > 0 {
			result.Source = models.SourceProvider
			bars, err = s.prices.GetPriceBarsRange(ctx, stock.ID, start, end)
			if err != nil {
				tracing.RecordError(span, err)
				return nil, err
			}
		}
	}

	if s.cache != nil && len(bars) > 0 {
		if err := s.cache.Set(ctx, stock.Ticker, start, end, bars); err != nil {
			s.logger.WithError(err).WithField("ticker", stock.Ticker).Warn("Price cache write failed")
		}
	}

	span.SetAttributes(attribute.String("source", result.Source), attribute.Int("bars", len(bars)))
	result.Bars = bars
	return result, nil
}

// Chart returns the range as chart-ready series
func (s *PriceService) Chart(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*models.Chart, error) {
	r, err := s.GetRange(ctx, ticker, start, end, refresh)
	if err != nil {
		return nil, err
	}
	return models.NewChart(r.Stock, r.Start, r.End, r.Source, r.Bars), nil
}

// ResolveRange turns query parameters into a calendar range. A period preset
// (1w, 1m, 3m, 1y) wins over explicit dates; missing dates default to the last
// DefaultRangeDays days ending today.
func ResolveRange(period, startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	today := day(now)

	if period = strings.ToLower(strings.TrimSpace(period)); period != "" {
		days, ok := periodDays[period]
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrValidation, period)
		}
		return today.AddDate(0, 0, -days), today, nil
	}

	end := today
	if endStr != "" {
		parsed, err := time.Parse(models.DateLayout, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be YYYY-MM-DD", ErrValidation)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -DefaultRangeDays)
	if startStr != "" {
		parsed, err := time.Parse(models.DateLayout, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD", ErrValidation)
		}
		start = parsed
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start date must not be after end date", ErrValidation)
	}
	return start, end, nil
}

// RefreshStock fetches bars newer than the latest stored one, or the lookback
// window when nothing is stored yet
func (s *PriceService) RefreshStock(ctx context.Context, stock *models.Stock) (*RefreshResult, error) {
	today := day(s.now())
	start := today.AddDate(0, 0, -s.lookbackDays)

	latest, err := s.prices.GetLatestPriceBar(ctx, stock.ID)
	switch {
	case err == nil:
		start = day(latest.Date).AddDate(0, 0, 1)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	result := &RefreshResult{Ticker: stock.Ticker}
	if !start.After(today) {
		fetched, err := s.fetchAndStore(ctx, stock, start, today)
		if err != nil {
			return nil, err
		}
		result.Fetched = fetched
	}

	stored, err := s.prices.CountPriceBars(ctx, stock.ID)
	if err != nil {
		return nil, err
	}
	result.Stored = stored
	return result, nil
}

// RefreshTicker refreshes a single stock by ticker
func (s *PriceService) RefreshTicker(ctx context.Context, ticker string) (*RefreshResult, error) {
	stock, err := s.stocks.GetStockByTicker(ctx, NormalizeTicker(ticker))
	if err != nil {
		return nil, err
	}
	return s.RefreshStock(ctx, stock)
}

// RefreshAll refreshes every active stock. A failure for one stock is logged
// and does not stop the others; the number of failures is returned.
func (s *PriceService) RefreshAll(ctx context.Context) ([]*RefreshResult, int, error) {
	stocks, err := s.stocks.GetAllStocks(ctx, stockFilterActive)
	if err != nil {
		return nil, 0, err
	}

	var (
		results  []*RefreshResult
		failures int
	)
	for _, stock := range stocks {
		if ctx.Err() != nil {
			return results, failures, ctx.Err()
		}
		r, err := s.RefreshStock(ctx, stock)
		if err != nil {
			failures++
			s.logger.WithError(err).WithField("ticker", stock.Ticker).Error("Price refresh failed")
			continue
		}
		results = append(results, r)
	}

	s.logger.WithFields(logrus.Fields{
		"stocks":   len(stocks),
		"failures": failures,
	}).Info("Price refresh complete")
	return results, failures, nil
}

// Purge deletes every stored bar for the ticker and drops its cached ranges
func (s *PriceService) Purge(ctx context.Context, ticker string) (int64, error) {
	stock, err := s.stocks.GetStockByTicker(ctx, NormalizeTicker(ticker))
	if err != nil {
		return 0, err
	}

	deleted, err := s.prices.DeletePriceBarsByStock(ctx, stock.ID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, stock.Ticker)

	s.logger.WithFields(logrus.Fields{"ticker": stock.Ticker, "deleted": deleted}).Info("Price history purged")
	return deleted, nil
}

// Prune deletes bars older than retentionDays for all stocks. A non-positive
// retention keeps everything.
func (s *PriceService) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := day(s.now()).AddDate(0, 0, -retentionDays)
	deleted, err := s.prices.DeletePriceBarsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.WithFields(logrus.Fields{
			"cutoff":  cutoff.Format(models.DateLayout),
			"deleted": deleted,
		}).Info("Pruned old price bars")
	}
	return deleted, nil
}

// StockAdded prefetches history for a newly listed stock
func (s *PriceService) StockAdded(ctx context.Context, ticker string) error {
	r, err := s.RefreshTicker(ctx, ticker)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"ticker": r.Ticker, "fetched": r.Fetched}).Info("Prefetched price history")
	return nil
}

// StockRemoved drops cached ranges for a removed stock
func (s *PriceService) StockRemoved(ctx context.Context, ticker string) error {
	s.invalidate(ctx, NormalizeTicker(ticker))
	return nil
}

// fetchAndStore pulls bars from the provider and upserts them. Returns the
// number of bars stored.
func (s *PriceService) fetchAndStore(ctx context.Context, stock *models.Stock, start, end time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "prices.fetchAndStore",
		attribute.String("ticker", stock.Ticker),
		attribute.String("provider", s.provider.Name()),
	)
	defer span.End()

	symbol := marketdata.ProviderSymbol(stock)
	bars, err := s.provider.FetchDaily(ctx, symbol, start, end)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("failed to fetch %s from %s: %w", symbol, s.provider.Name(), err)
	}
	if len(bars) == 0 {
		return 0, nil
	}

	n, err := s.prices.UpsertPriceBars(ctx, marketdata.ToPriceBars(stock.ID, bars))
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}

	if err := s.stocks.TouchStock(ctx, stock.ID, s.now()); err != nil {
		s.logger.WithError(err).WithField("ticker", stock.Ticker).Warn("Failed to record refresh time")
	}
	s.invalidate(ctx, stock.Ticker)

	if s.publisher != nil {
		if err := s.publisher.PublishPricesCached(ctx, stock.Ticker, n); err != nil {
			s.logger.WithError(err).WithField("ticker", stock.Ticker).Warn("Failed to publish prices cached event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"ticker": stock.Ticker,
		"symbol": symbol,
		"bars":   n,
		"start":  start.Format(models.DateLayout),
		"end":    end.Format(models.DateLayout),
	}).Info("Cached price bars from provider")
	span.SetAttributes(attribute.Int("bars", n))
	return n, nil
}

// cachedFor reports whether cached bars were stored for this stock id. A ticker
// that was removed and listed again gets a new id.
func cachedFor(bars []*models.PriceBar, stockID string) bool {
	for _, b := range bars {
		if b.StockID != stockID {
			return false
		}
	}
	return true
}

func (s *PriceService) invalidate(ctx context.Context, ticker string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Invalidate(ctx, ticker); err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("Price cache invalidation failed")
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
