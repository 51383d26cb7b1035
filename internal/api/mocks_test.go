package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/quant-data-service/internal/auth"
	"github.com/trogers1052/quant-data-service/internal/logging"
	"github.com/trogers1052/quant-data-service/internal/models"
	"github.com/trogers1052/quant-data-service/internal/service"
)

var (
	testAdmin = &models.User{ID: "admin-id", Email: "admin@example.com", Username: "admin", IsActive: true, IsSuperuser: true}
	testUser  = &models.User{ID: "user-id", Email: "alice@example.com", Username: "alice", IsActive: true}
)

// MockUsers resolves the tokens "admin-token" and "user-token"
type MockUsers struct {
	loggedOut []string
	deleted   []string
	lastLogin string
}

func (m *MockUsers) Register(ctx context.Context, in models.RegisterInput) (*models.User, error) {
	if in.Password != in.ConfirmPassword {
		return nil, fmt.Errorf("%w: passwords do not match", service.ErrValidation)
	}
	if in.Email == testUser.Email {
		return nil, fmt.Errorf("%w: email already registered", service.ErrConflict)
	}
	return &models.User{ID: "new-id", Email: in.Email, Username: in.Username, HashedPassword: "secret-hash", IsActive: true}, nil
}

func (m *MockUsers) Authenticate(ctx context.Context, identifier, password string) (*models.Token, *models.User, error) {
	m.lastLogin = identifier
	switch {
	case identifier == "disabled@example.com":
		return nil, nil, service.ErrInactiveUser
	case (identifier == testUser.Email || identifier == testUser.Username) && password == "s3cretpass":
		return &models.Token{AccessToken: "user-token", TokenType: auth.TokenType}, testUser, nil
	}
	return nil, nil, service.ErrInvalidCredentials
}

func (m *MockUsers) CurrentUser(ctx context.Context, token string) (*models.User, *auth.Claims, error) {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "jti-" + token}}
	switch token {
	case "admin-token":
		return testAdmin, claims, nil
	case "user-token":
		return testUser, claims, nil
	case "inactive-token":
		return nil, nil, service.ErrInactiveUser
	}
	return nil, nil, service.ErrInvalidCredentials
}

func (m *MockUsers) Logout(ctx context.Context, claims *auth.Claims) error {
	m.loggedOut = append(m.loggedOut, claims.ID)
	return nil
}

func (m *MockUsers) ListUsers(ctx context.Context) ([]*models.User, error) {
	return []*models.User{testAdmin, testUser}, nil
}

func (m *MockUsers) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	if id != testUser.ID {
		return nil, service.ErrNotFound
	}
	u := *testUser
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	return &u, nil
}

func (m *MockUsers) DeleteUser(ctx context.Context, actor *models.User, id string) error {
	if actor.ID == id {
		return fmt.Errorf("%w: superusers are not allowed to delete themselves", service.ErrForbidden)
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// MockStocks is a tiny in-memory catalog
type MockStocks struct {
	stocks map[string]*models.Stock
	failed bool
}

func NewMockStocks() *MockStocks {
	return &MockStocks{stocks: map[string]*models.Stock{
		"AAPL": {ID: "aapl-id", Ticker: "AAPL", Name: "Apple Inc.", Market: "NASDAQ", Country: "US", IsActive: true},
	}}
}

func (m *MockStocks) List(ctx context.Context, country string, activeOnly bool) ([]*models.Stock, error) {
	if m.failed {
		return nil, errors.New("connection refused")
	}
	out := []*models.Stock{}
	for _, s := range m.stocks {
		if country == "" || s.Country == country {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockStocks) Get(ctx context.Context, ticker string) (*models.Stock, error) {
	if s, ok := m.stocks[service.NormalizeTicker(ticker)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("stock %s: %w", ticker, service.ErrNotFound)
}

func (m *MockStocks) Create(ctx context.Context, in models.StockCreate) (*models.Stock, error) {
	ticker := service.NormalizeTicker(in.Ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", service.ErrValidation)
	}
	if _, ok := m.stocks[ticker]; ok {
		return nil, fmt.Errorf("stock %s: %w", ticker, service.ErrConflict)
	}
	s := &models.Stock{ID: ticker + "-id", Ticker: ticker, Name: in.Name, Market: in.Market, Country: in.Country, IsActive: true}
	m.stocks[ticker] = s
	return s, nil
}

func (m *MockStocks) Update(ctx context.Context, ticker string, upd models.StockUpdate) (*models.Stock, error) {
	s, err := m.Get(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		s.Name = *upd.Name
	}
	return s, nil
}

func (m *MockStocks) Delete(ctx context.Context, ticker string) error {
	ticker = service.NormalizeTicker(ticker)
	if _, ok := m.stocks[ticker]; !ok {
		return service.ErrNotFound
	}
	delete(m.stocks, ticker)
	return nil
}

// MockPrices serves two bars for AAPL
type MockPrices struct {
	lastStart, lastEnd time.Time
	lastRefresh        bool
}

func (m *MockPrices) bars() []*models.PriceBar {
	return []*models.PriceBar{
		{ID: 1, StockID: "aapl-id", Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: decimal.RequireFromString("187.15"), High: decimal.RequireFromString("188.44"), Low: decimal.RequireFromString("183.885"), Close: decimal.RequireFromString("185.64"), Volume: 82488700},
		{ID: 2, StockID: "aapl-id", Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: decimal.RequireFromString("184.22"), High: decimal.RequireFromString("185.88"), Low: decimal.RequireFromString("183.43"), Close: decimal.RequireFromString("184.25"), Volume: 58414500},
	}
}

func (m *MockPrices) GetRange(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*service.PriceRange, error) {
	m.lastStart, m.lastEnd, m.lastRefresh = start, end, refresh
	switch service.NormalizeTicker(ticker) {
	case "AAPL":
		return &service.PriceRange{
			Stock:  &models.Stock{ID: "aapl-id", Ticker: "AAPL", Name: "Apple Inc."},
			Start:  start,
			End:    end,
			Source: models.SourceProvider,
			Bars:   m.bars(),
		}, nil
	case "EMPTY":
		return nil, service.ErrNoPriceData
	case "BROKEN":
		return nil, errors.New("provider returned status 500")
	}
	return nil, service.ErrNotFound
}

func (m *MockPrices) Chart(ctx context.Context, ticker string, start, end time.Time, refresh bool) (*models.Chart, error) {
	r, err := m.GetRange(ctx, ticker, start, end, refresh)
	if err != nil {
		return nil, err
	}
	return models.NewChart(r.Stock, r.Start, r.End, r.Source, r.Bars), nil
}

func (m *MockPrices) RefreshTicker(ctx context.Context, ticker string) (*service.RefreshResult, error) {
	if service.NormalizeTicker(ticker) != "AAPL" {
		return nil, service.ErrNotFound
	}
	return &service.RefreshResult{Ticker: "AAPL", Fetched: 1, Stored: 3}, nil
}

func (m *MockPrices) Purge(ctx context.Context, ticker string) (int64, error) {
	if service.NormalizeTicker(ticker) != "AAPL" {
		return 0, service.ErrNotFound
	}
	return 2, nil
}

// MockPinger fails when err is set
type MockPinger struct {
	err error
}

func (p *MockPinger) Ping(ctx context.Context) error {
	return p.err
}

type testEnv struct {
	handler *Handler
	users   *MockUsers
	stocks  *MockStocks
	prices  *MockPrices
	db      *MockPinger
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:  &MockUsers{},
		stocks: NewMockStocks(),
		prices: &MockPrices{},
		db:     &MockPinger{},
	}
	env.handler = NewHandler(env.users, env.stocks, env.prices, env.db, nil,
		AppInfo{Name: "Quantitative Trading System", Version: "0.1.0", Environment: "test"},
		logging.Discard())
	env.handler.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return env
}
