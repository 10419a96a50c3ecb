// Package redis is the short-lived bar cache in front of the SQLite store
// and the remote bar source.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

const (
	defaultPrefix = "terminal:"
	// defaultTTL bounds staleness of intraday ranges that are still filling in.
	defaultTTL = 5 * time.Minute
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// BarCache stores JSON-encoded bar ranges keyed by query. Every call goes
// through a circuit breaker. It implements model.BarCache.
type BarCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	cb     *CircuitBreaker
	log    *slog.Logger
}

// NewBarCache creates a cache. ttl <= 0 uses the default; m may be nil.
func NewBarCache(client *goredis.Client, ttl time.Duration, cb *CircuitBreaker, m *metrics.Metrics, log *slog.Logger) *BarCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bar_cache")

	if m != nil {
		cb.OnStateChange = func(from, to State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
			log.Warn("circuit breaker transition", "from", from.String(), "to", to.String())
		}
	}

	return &BarCache{
		client: client,
		prefix: defaultPrefix,
		ttl:    ttl,
		cb:     cb,
		log:    log,
	}
}

var _ model.BarCache = (*BarCache)(nil)

// Key returns the cache key for q, e.g. "terminal:bars:AAPL:day:1735689600000:1738368000000".
func (c *BarCache) Key(q model.BarQuery) string {
	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteString("bars:")
	b.WriteString(model.NormalizeSymbol(q.Symbol))
	b.WriteByte(':')
	b.WriteString(string(q.Timespan))
	fmt.Fprintf(&b, ":%d:%d", q.From.UnixMilli(), q.To.UnixMilli())
	return b.String()
}

// Get returns the cached bars for q. A miss is (nil, false, nil).
func (c *BarCache) Get(ctx context.Context, q model.BarQuery) ([]model.Bar, bool, error) {
	var data []byte
	err := c.cb.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, c.Key(q)).Bytes()
		if errors.Is(err, goredis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("bar cache get: %w", err)
	}
	if data == nil {
		return nil, false, nil
	}

	var bars []model.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, false, fmt.Errorf("bar cache decode %s: %w", c.Key(q), err)
	}
	return bars, true, nil
}

// Put stores bars for q with the cache TTL.
func (c *BarCache) Put(ctx context.Context, q model.BarQuery, bars []model.Bar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	err = c.cb.Execute(func() error {
		return c.client.Set(ctx, c.Key(q), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("bar cache put: %w", err)
	}
	return nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *BarCache) Breaker() *CircuitBreaker { return c.cb }
