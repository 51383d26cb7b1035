package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// Bar is one daily OHLCV observation returned by a provider
type Bar struct {
	Date   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

// Provider fetches daily price history for a symbol. start and end are
// calendar days and both are inclusive.
type Provider interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// ToPriceBars attaches bars to a stock for storage
func ToPriceBars(stockID string, bars []Bar) []*models.PriceBar {
	out := make([]*models.PriceBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, &models.PriceBar{
			StockID: stockID,
			Date:    b.Date,
			Open:    b.Open,
			High:    b.High,
			Low:     b.Low,
			Close:   b.Close,
			Volume:  b.Volume,
		})
	}
	return out
}

// ProviderSymbol maps a catalog stock to the symbol the provider expects.
// Korean tickers get the KOSDAQ or KOSPI suffix, Japanese and Canadian tickers
// their exchange suffix, everything else is passed through.
func ProviderSymbol(stock *models.Stock) string {
	ticker := strings.ToUpper(strings.TrimSpace(stock.Ticker))
	if strings.Contains(ticker, ".") {
		return ticker
	}

	switch strings.ToUpper(stock.Country) {
	case "KR":
		if strings.EqualFold(stock.Market, "KOSDAQ") {
			return ticker + ".KQ"
		}
		return ticker + ".KS"
	case "JP":
		return ticker + ".T"
	case "CA":
		return ticker + ".TO"
	default:
		return ticker
	}
}
