package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	markPriceTTL = 5 * time.Second
	klineTTL     = 60 * time.Minute
)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// MarketDataCache wraps a Connector's market data calls with short-lived
// caching so the monitor and confirmation layers do not hammer the API.
// Mark prices stay fresh for 5 seconds, candle history for an hour.
type MarketDataCache struct {
	connector Connector
	logger    zerolog.Logger

	markPrices sync.Map // symbol -> *cacheEntry
	klines     sync.Map // symbol|interval|limit -> *cacheEntry

	hits   int64
	misses int64
}

// NewMarketDataCache creates a cache in front of the given connector
func NewMarketDataCache(connector Connector, logger zerolog.Logger) *MarketDataCache {
	return &MarketDataCache{
		connector: connector,
		logger:    logger.With().Str("component", "market_data_cache").Logger(),
	}
}

// GetMarkPrice returns a cached mark price or fetches a fresh one
func (c *MarketDataCache) GetMarkPrice(symbol string) (*MarkPrice, error) {
	if entry, ok := c.markPrices.Load(symbol); ok {
		ce := entry.(*cacheEntry)
		if !ce.expired() {
			atomic.AddInt64(&c.hits, 1)
			return ce.value.(*MarkPrice), nil
		}
	}

	atomic.AddInt64(&c.misses, 1)
	markPrice, err := c.connector.GetMarkPrice(symbol)
	if err != nil {
		return nil, err
	}
	c.markPrices.Store(symbol, &cacheEntry{
		value:     markPrice,
		expiresAt: time.Now().Add(markPriceTTL),
	})
	return markPrice, nil
}

// SetMarkPrice seeds the mark price cache directly, used by the websocket
// stream so readers see prices without any REST round trip.
func (c *MarketDataCache) SetMarkPrice(price *MarkPrice) {
	c.markPrices.Store(price.Symbol, &cacheEntry{
		value:     price,
		expiresAt: time.Now().Add(markPriceTTL),
	})
}

// GetKlines returns cached candles or fetches fresh ones
func (c *MarketDataCache) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	key := fmt.Sprintf("%s|%s|%d", symbol, interval, limit)

	if entry, ok := c.klines.Load(key); ok {
		ce := entry.(*cacheEntry)
		if !ce.expired() {
			atomic.AddInt64(&c.hits, 1)
			return ce.value.([]Kline), nil
		}
	}

	atomic.AddInt64(&c.misses, 1)
	klines, err := c.connector.GetKlines(symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	c.klines.Store(key, &cacheEntry{
		value:     klines,
		expiresAt: time.Now().Add(klineTTL),
	})
	return klines, nil
}

// InvalidateKlines drops cached candles for a symbol across all intervals
func (c *MarketDataCache) InvalidateKlines(symbol string) {
	prefix := symbol + "|"
	c.klines.Range(func(key, _ interface{}) bool {
		if k, ok := key.(string); ok && len(k) > len(prefix) && k[:len(prefix)] == prefix {
			c.klines.Delete(key)
		}
		return true
	})
}

// Stats returns cumulative hit and miss counts
func (c *MarketDataCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// LogStats writes the current hit rate to the log
func (c *MarketDataCache) LogStats() {
	hits, misses := c.Stats()
	total := hits + misses
	if total == 0 {
		return
	}
	c.logger.Info().
		Int64("hits", hits).
		Int64("misses", misses).
		Float64("hit_rate", float64(hits)/float64(total)).
		Msg("Market data cache stats")
}
