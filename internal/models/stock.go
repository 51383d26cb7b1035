package models

import "time"

// Event type constants
const (
	EventStockAdded   = "STOCK_ADDED"
	EventStockUpdated = "STOCK_UPDATED"
	EventStockRemoved = "STOCK_REMOVED"
	EventPricesCached = "PRICES_CACHED"
)

// StockEvent represents a Kafka event for stock changes
type StockEvent struct {
	EventType string    `json:"event_type"`
	Stock     *Stock    `json:"stock,omitempty"`
	Ticker    string    `json:"ticker"`
	Bars      int       `json:"bars,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stock represents a tradable ticker in the catalog
type Stock struct {
	ID          string     `json:"id"`
	Ticker      string     `json:"ticker" validate:"required,max=20"`
	Name        string     `json:"name" validate:"required,max=100"`
	Industry    string     `json:"industry,omitempty" validate:"max=100"`
	Market      string     `json:"market" validate:"required,max=50"`
	Country     string     `json:"country" validate:"required,len=2,alpha,uppercase"` // ISO 3166 alpha-2, e.g. US, KR, JP
	Currency    string     `json:"currency,omitempty" validate:"omitempty,len=3,alpha,uppercase"`
	IsActive    bool       `json:"is_active"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StockCreate is the payload for adding a stock to the catalog
type StockCreate struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
	Market   string `json:"market"`
	Country  string `json:"country"`
	Currency string `json:"currency,omitempty"`
}

// StockUpdate carries optional changes; nil fields are left untouched
type StockUpdate struct {
	Name     *string `json:"name,omitempty"`
	Industry *string `json:"industry,omitempty"`
	Market   *string `json:"market,omitempty"`
	Country  *string `json:"country,omitempty"`
	Currency *string `json:"currency,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}
