package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/quant-data-service/internal/database"
	"github.com/trogers1052/quant-data-service/internal/marketdata"
	"github.com/trogers1052/quant-data-service/internal/models"
)

// MockRepository is an in-memory implementation of the user, stock and price repositories
type MockRepository struct {
	mu     sync.Mutex
	users  map[string]*models.User
	stocks map[string]*models.Stock // key: ticker
	bars   map[string]map[string]*models.PriceBar // key: stock id, then date
	nextID int64

	UpsertCalls  int
	TouchedAt    map[string]time.Time
	FailNextRead error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:     make(map[string]*models.User),
		stocks:    make(map[string]*models.Stock),
		bars:      make(map[string]map[string]*models.PriceBar),
		TouchedAt: make(map[string]time.Time),
	}
}

func (m *MockRepository) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return fmt.Errorf("user %s: %w", u.Email, database.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *MockRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, database.ErrNotFound)
}

func (m *MockRepository) findUser(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *MockRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Email == email })
}

func (m *MockRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Username == username })
}

func (m *MockRepository) UserExists(ctx context.Context, email, username string) (bool, error) {
	_, err := m.findUser(func(u *models.User) bool { return u.Email == email || u.Username == username })
	return err == nil, nil
}

func (m *MockRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, u := range m.users {
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockRepository) UpdateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return database.ErrNotFound
	}
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *MockRepository) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MockRepository) CreateStock(ctx context.Context, s *models.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stocks[s.Ticker]; ok {
		return fmt.Errorf("stock %s: %w", s.Ticker, database.ErrConflict)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	copied := *s
	m.stocks[s.Ticker] = &copied
	return nil
}

func (m *MockRepository) GetStockByTicker(ctx context.Context, ticker string) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stocks[ticker]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, fmt.Errorf("stock %s: %w", ticker, database.ErrNotFound)
}

func (m *MockRepository) GetAllStocks(ctx context.Context, filter database.StockFilter) ([]*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Stock
	for _, s := range m.stocks {
		if filter.Country != "" && s.Country != filter.Country {
			continue
		}
		if filter.ActiveOnly && !s.IsActive {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (m *MockRepository) UpdateStock(ctx context.Context, s *models.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stocks[s.Ticker]; !ok {
		return database.ErrNotFound
	}
	copied := *s
	m.stocks[s.Ticker] = &copied
	return nil
}

func (m *MockRepository) TouchStock(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TouchedAt[id] = at
	return nil
}

func (m *MockRepository) DeleteStock(ctx context.Context, ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[ticker]
	if !ok {
		return fmt.Errorf("stock %s: %w", ticker, database.ErrNotFound)
	}
	delete(m.bars, s.ID)
	delete(m.stocks, ticker)
	return nil
}

func (m *MockRepository) UpsertPriceBars(ctx context.Context, bars []*models.PriceBar) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	for _, b := range bars {
		byDate, ok := m.bars[b.StockID]
		if !ok {
			byDate = make(map[string]*models.PriceBar)
			m.bars[b.StockID] = byDate
		}
		m.nextID++
		copied := *b
		copied.ID = m.nextID
		byDate[b.Date.Format(models.DateLayout)] = &copied
	}
	return len(bars), nil
}

func (m *MockRepository) sortedBars(stockID string, keep func(*models.PriceBar) bool) []*models.PriceBar {
	out := []*models.PriceBar{}
	for _, b := range m.bars[stockID] {
		if keep(b) {
			copied := *b
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *MockRepository) GetPriceBarsRange(ctx context.Context, stockID string, start, end time.Time) ([]*models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailNextRead; err != nil {
		m.FailNextRead = nil
		return nil, err
	}
	return m.sortedBars(stockID, func(b *models.PriceBar) bool {
		return !b.Date.Before(start) && !b.Date.After(end)
	}), nil
}

func (m *MockRepository) GetLatestPriceBar(ctx context.Context, stockID string) (*models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.sortedBars(stockID, func(*models.PriceBar) bool { return true })
	if len(bars) == 0 {
		return nil, database.ErrNotFound
	}
	return bars[len(bars)-1], nil
}

func (m *MockRepository) CountPriceBars(ctx context.Context, stockID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bars[stockID]), nil
}

func (m *MockRepository) DeletePriceBarsByStock(ctx context.Context, stockID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.bars[stockID])
	delete(m.bars, stockID)
	return int64(n), nil
}

func (m *MockRepository) DeletePriceBarsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, byDate := range m.bars {
		for key, b := range byDate {
			if b.Date.Before(cutoff) {
				delete(byDate, key)
				n++
			}
		}
	}
	return n, nil
}

// MockProvider returns canned bars for any symbol within the requested range
type MockProvider struct {
	mu      sync.Mutex
	bars    []marketdata.Bar
	err     error
	Calls   []string
	Symbols []string
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, start.Format(models.DateLayout)+".."+end.Format(models.DateLayout))
	p.Symbols = append(p.Symbols, symbol)
	if p.err != nil {
		return nil, p.err
	}
	var out []marketdata.Bar
	for _, b := range p.bars {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// MockCache is an in-memory PriceCache
type MockCache struct {
	entries     map[string][]*models.PriceBar
	Invalidated []string
	failGet     bool
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]*models.PriceBar)}
}

func cacheKey(ticker string, start, end time.Time) string {
	return ticker + ":" + start.Format(models.DateLayout) + ":" + end.Format(models.DateLayout)
}

func (c *MockCache) Get(ctx context.Context, ticker string, start, end time.Time) ([]*models.PriceBar, bool, error) {
	if c.failGet {
		return nil, false, errors.New("redis unavailable")
	}
	bars, ok := c.entries[cacheKey(ticker, start, end)]
	return bars, ok, nil
}

func (c *MockCache) Set(ctx context.Context, ticker string, start, end time.Time, bars []*models.PriceBar) error {
	c.entries[cacheKey(ticker, start, end)] = bars
	return nil
}

func (c *MockCache) Invalidate(ctx context.Context, ticker string) (int, error) {
	c.Invalidated = append(c.Invalidated, ticker)
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, ticker+":") {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

// MockPublisher records published events
type MockPublisher struct {
	Events []string
	err    error
}

func (p *MockPublisher) record(event, ticker string) error {
	p.Events = append(p.Events, event+":"+ticker)
	return p.err
}

func (p *MockPublisher) PublishStockAdded(ctx context.Context, stock *models.Stock) error {
	return p.record(models.EventStockAdded, stock.Ticker)
}

func (p *MockPublisher) PublishStockUpdated(ctx context.Context, stock *models.Stock) error {
	return p.record(models.EventStockUpdated, stock.Ticker)
}

func (p *MockPublisher) PublishStockRemoved(ctx context.Context, ticker string) error {
	return p.record(models.EventStockRemoved, ticker)
}

func (p *MockPublisher) PublishPricesCached(ctx context.Context, ticker string, bars int) error {
	return p.record(fmt.Sprintf("%s(%d)", models.EventPricesCached, bars), ticker)
}

// MockRevoker is an in-memory TokenRevoker
type MockRevoker struct {
	revoked map[string]time.Duration
}

func (r *MockRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if r.revoked == nil {
		r.revoked = make(map[string]time.Duration)
	}
	r.revoked[jti] = ttl
	return nil
}

func (r *MockRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := r.revoked[jti]
	return ok, nil
}
