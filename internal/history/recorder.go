// Package history persists closed trades to Postgres for later review.
// The recorder is optional; without a database URL every call is a no-op.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"futures-autotrader/internal/trades"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id              BIGSERIAL PRIMARY KEY,
	account_id      TEXT NOT NULL,
	trade_id        TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	entry_price     DOUBLE PRECISION NOT NULL,
	exit_price      DOUBLE PRECISION NOT NULL,
	quantity        DOUBLE PRECISION NOT NULL,
	leverage        INTEGER NOT NULL,
	pnl             DOUBLE PRECISION NOT NULL,
	pnl_pct         DOUBLE PRECISION NOT NULL,
	close_reason    TEXT NOT NULL,
	opened_at       TIMESTAMPTZ NOT NULL,
	closed_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_closed_trades_account ON closed_trades (account_id, closed_at DESC);
`

// Recorder writes closed trades to Postgres
type Recorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRecorder connects to Postgres and ensures the schema exists. An empty
// URL returns a disabled recorder.
func NewRecorder(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Recorder, error) {
	log := logger.With().Str("component", "history_recorder").Logger()
	if databaseURL == "" {
		log.Info().Msg("Postgres not configured, trade history disabled")
		return &Recorder{logger: log}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error ensuring history schema: %w", err)
	}

	log.Info().Msg("Connected to Postgres")
	return &Recorder{pool: pool, logger: log}, nil
}

// Enabled reports whether history recording is active
func (r *Recorder) Enabled() bool {
	return r != nil && r.pool != nil
}

// RecordClose inserts one closed trade. Failures are logged, not returned;
// history is best-effort and must never block a close.
func (r *Recorder) RecordClose(ctx context.Context, trade *trades.Trade, exitPrice, pnl, pnlPct float64, reason string) {
	if !r.Enabled() {
		return
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO closed_trades
			(account_id, trade_id, symbol, side, entry_price, exit_price,
			 quantity, leverage, pnl, pnl_pct, close_reason, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		trade.AccountID, trade.ID, trade.Symbol, string(trade.Side),
		trade.EntryPrice, exitPrice, trade.Quantity, trade.Leverage,
		pnl, pnlPct, reason, trade.OpenedAt)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("account_id", trade.AccountID).
			Str("symbol", trade.Symbol).
			Msg("Failed to record closed trade")
	}
}

// Close releases the connection pool
func (r *Recorder) Close() {
	if r.Enabled() {
		r.pool.Close()
	}
}
