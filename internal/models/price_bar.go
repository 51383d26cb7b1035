package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents one daily OHLCV bar for a stock
type PriceBar struct {
	ID        int64           `json:"id"`
	StockID   string          `json:"stock_id"`
	Date      time.Time       `json:"date"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Chart holds price history as parallel series, one entry per trading day.
// The first four series feed a candlestick row and Volume feeds a bar row.
type Chart struct {
	Ticker string            `json:"ticker"`
	Name   string            `json:"name"`
	Start  string            `json:"start"`
	End    string            `json:"end"`
	Source string            `json:"source"`
	Dates  []string          `json:"dates"`
	Open   []decimal.Decimal `json:"open"`
	High   []decimal.Decimal `json:"high"`
	Low    []decimal.Decimal `json:"low"`
	Close  []decimal.Decimal `json:"close"`
	Volume []int64           `json:"volume"`
}

// Price data sources reported on a Chart
const (
	SourceCache    = "cache"
	SourceProvider = "provider"
)

// DateLayout is the calendar-day format used in query strings and charts
const DateLayout = "2006-01-02"

// NewChart builds chart series from bars ordered by date ascending
func NewChart(stock *Stock, start, end time.Time, source string, bars []*PriceBar) *Chart {
	c := &Chart{
		Ticker: stock.Ticker,
		Name:   stock.Name,
		Start:  start.Format(DateLayout),
		End:    end.Format(DateLayout),
		Source: source,
		Dates:  make([]string, 0, len(bars)),
		Open:   make([]decimal.Decimal, 0, len(bars)),
		High:   make([]decimal.Decimal, 0, len(bars)),
		Low:    make([]decimal.Decimal, 0, len(bars)),
		Close:  make([]decimal.Decimal, 0, len(bars)),
		Volume: make([]int64, 0, len(bars)),
	}
	for _, b := range bars {
		c.Dates = append(c.Dates, b.Date.Format(DateLayout))
		c.Open = append(c.Open, b.Open)
		c.High = append(c.High, b.High)
		c.Low = append(c.Low, b.Low)
		c.Close = append(c.Close, b.Close)
		c.Volume = append(c.Volume, b.Volume)
	}
	return c
}
