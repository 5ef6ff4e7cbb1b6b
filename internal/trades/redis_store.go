package trades

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	snapshotKeyPrefix = "autotrader:trades:"
	snapshotTTL       = 7 * 24 * time.Hour
)

// RedisStore persists registry snapshots so open trades survive a restart.
// A nil client disables persistence; every method becomes a no-op then, which
// keeps the engine runnable without Redis.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection. Returns a
// disabled store (nil client) when addr is empty.
func NewRedisStore(addr, password string, db int, logger zerolog.Logger) (*RedisStore, error) {
	log := logger.With().Str("component", "trade_store").Logger()
	if addr == "" {
		log.Info().Msg("Redis not configured, trade persistence disabled")
		return &RedisStore{logger: log}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Connected to Redis")
	return &RedisStore{client: client, logger: log}, nil
}

// Enabled reports whether persistence is active
func (s *RedisStore) Enabled() bool {
	return s != nil && s.client != nil
}

// Snapshot writes one account's open trades to Redis
func (s *RedisStore) Snapshot(ctx context.Context, accountID string, trades []*Trade) error {
	if !s.Enabled() {
		return nil
	}

	key := snapshotKeyPrefix + accountID
	if len(trades) == 0 {
		return s.client.Del(ctx, key).Err()
	}

	data, err := json.Marshal(trades)
	if err != nil {
		return fmt.Errorf("error marshaling trades: %w", err)
	}
	return s.client.Set(ctx, key, data, snapshotTTL).Err()
}

// SnapshotAll persists the full registry state
func (s *RedisStore) SnapshotAll(ctx context.Context, registry *Registry) {
	if !s.Enabled() {
		return
	}
	for _, accountID := range registry.Accounts() {
		if err := s.Snapshot(ctx, accountID, registry.List(accountID)); err != nil {
			s.logger.Warn().Err(err).Str("account_id", accountID).Msg("Trade snapshot failed")
		}
	}
}

// Restore loads persisted trades for all accounts back into the registry
func (s *RedisStore) Restore(ctx context.Context, registry *Registry) error {
	if !s.Enabled() {
		return nil
	}

	var cursor uint64
	restored := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, snapshotKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Trade snapshot read failed")
				continue
			}

			var trades []*Trade
			if err := json.Unmarshal(data, &trades); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Trade snapshot unmarshal failed")
				continue
			}
			for _, t := range trades {
				registry.Add(t)
				restored++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if restored > 0 {
		s.logger.Info().Int("trades", restored).Msg("Restored open trades from Redis")
	}
	return nil
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.client.Close()
}
