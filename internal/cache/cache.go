package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/quant-data-service/internal/models"
)

const (
	priceKeyPrefix   = "prices:"
	revokedKeyPrefix = "revoked:"
	scanBatch        = 100
)

// New connects to Redis and verifies the connection. An empty addr returns a
// nil client, which callers treat as caching disabled.
func New(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Pinger adapts a client to the health check interface
func Pinger(client *redis.Client) interface{ Ping(context.Context) error } {
	return redisPinger{client}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PriceCache stores price bar ranges keyed by ticker and calendar range
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache returns nil when client is nil
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if client == nil {
		return nil
	}
	return &PriceCache{client: client, ttl: ttl}
}

// PriceKey builds the cache key for a ticker and inclusive date range
func PriceKey(ticker string, start, end time.Time) string {
	return priceKeyPrefix + strings.ToUpper(ticker) + ":" + start.Format(models.DateLayout) + ":" + end.Format(models.DateLayout)
}

// Get returns the cached bars and whether the key was present
func (c *PriceCache) Get(ctx context.Context, ticker string, start, end time.Time) ([]*models.PriceBar, bool, error) {
	data, err := c.client.Get(ctx, PriceKey(ticker, start, end)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read price cache: %w", err)
	}

	var bars []*models.PriceBar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached prices: %w", err)
	}
	return bars, true, nil
}

// Set stores bars for the range with the configured TTL
func (c *PriceCache) Set(ctx context.Context, ticker string, start, end time.Time, bars []*models.PriceBar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("failed to encode prices: %w", err)
	}
	if err := c.client.Set(ctx, PriceKey(ticker, start, end), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	return nil
}

// Invalidate removes every cached range for the ticker and returns how many keys were dropped
func (c *PriceCache) Invalidate(ctx context.Context, ticker string) (int, error) {
	pattern := priceKeyPrefix + strings.ToUpper(ticker) + ":*"

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan price cache: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete price cache keys: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// TokenStore tracks revoked access token IDs until they would have expired
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore returns nil when client is nil
func NewTokenStore(client *redis.Client) *TokenStore {
	if client == nil {
		return nil
	}
	return &TokenStore{client: client}
}

// Revoke marks the token ID as revoked for ttl. Non-positive ttls are ignored
// since the token has already expired.
func (s *TokenStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token ID was revoked
func (s *TokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}
