package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/quant-data-service/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const pricePlaces = 4

// YahooProvider reads daily bars from the Yahoo Finance v8 chart endpoint
type YahooProvider struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Logger
}

// NewYahooProvider creates a provider limited to requestsPerSecond outbound calls
func NewYahooProvider(baseURL string, requestsPerSecond float64, timeout time.Duration, logger *logrus.Logger) *YahooProvider {
	return &YahooProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:      logger,
	}
}

// Name identifies the provider in logs and events
func (p *YahooProvider) Name() string {
	return "yahoo"
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				Currency  string `json:"currency"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily returns bars between start and end inclusive, ordered by date.
// Bars with any missing field are skipped.
func (p *YahooProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	ctx, span := tracing.StartSpan(ctx, "marketdata.FetchDaily",
		attribute.String("provider", p.Name()),
		attribute.String("symbol", symbol),
		attribute.String("start", start.Format("2006-01-02")),
		attribute.String("end", end.Format("2006-01-02")),
	)
	defer span.End()

	bars, err := p.fetchDaily(ctx, symbol, start, end)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("bars", len(bars)))
	return bars, nil
}

func (p *YahooProvider) fetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	startDay := day(start)
	endDay := day(end)

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(startDay.Unix(), 10))
	params.Set("period2", strconv.FormatInt(endDay.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quant-data-service)")

	p.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"start":  startDay.Format("2006-01-02"),
		"end":    endDay.Format("2006-01-02"),
	}).Debug("Fetching daily bars")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload chartResponse
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && payload.Chart.Error != nil {
			return nil, fmt.Errorf("provider returned status %d for %s: %s", resp.StatusCode, symbol, payload.Chart.Error.Description)
		}
		return nil, fmt.Errorf("provider returned status %d for %s", resp.StatusCode, symbol)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", symbol, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return []Bar{}, nil
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return []Bar{}, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open, ok1 := at(quote.Open, i)
		high, ok2 := at(quote.High, i)
		low, ok3 := at(quote.Low, i)
		closePrice, ok4 := at(quote.Close, i)
		if !ok1 || !ok2 || !ok3 || !ok4 || i >= len(quote.Volume) || quote.Volume[i] == nil {
			continue
		}

		date := day(time.Unix(ts+result.Meta.GMTOffset, 0).UTC())
		if date.Before(startDay) || date.After(endDay) {
			continue
		}

		bars = append(bars, Bar{
			Date:   date,
			Open:   decimal.NewFromFloat(open).Round(pricePlaces),
			High:   decimal.NewFromFloat(high).Round(pricePlaces),
			Low:    decimal.NewFromFloat(low).Round(pricePlaces),
			Close:  decimal.NewFromFloat(closePrice).Round(pricePlaces),
			Volume: *quote.Volume[i],
		})
	}
	return bars, nil
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
