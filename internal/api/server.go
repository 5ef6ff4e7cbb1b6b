// Package api exposes the operational HTTP surface: health, open positions,
// and manual close. It is a control plane for operators, authenticated with
// bearer tokens; end users interact through notifications only.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"futures-autotrader/internal/account"
	"futures-autotrader/internal/exchange"
	"futures-autotrader/internal/execution"
	"futures-autotrader/internal/monitor"
	"futures-autotrader/internal/trades"
)

// Server is the control API
type Server struct {
	accounts  account.Store
	registry  *trades.Registry
	provider  *exchange.Provider
	cache     *exchange.MarketDataCache
	executor  *execution.Executor
	jwtSecret string
	logger    zerolog.Logger
	http      *http.Server
}

// NewServer builds the API server and its routes
func NewServer(
	accounts account.Store,
	registry *trades.Registry,
	provider *exchange.Provider,
	cache *exchange.MarketDataCache,
	executor *execution.Executor,
	jwtSecret string,
	logger zerolog.Logger,
) *Server {
	return &Server{
		accounts:  accounts,
		registry:  registry,
		provider:  provider,
		cache:     cache,
		executor:  executor,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Router assembles the gin engine
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)

	protected := router.Group("/api", authMiddleware(s.jwtSecret))
	{
		protected.GET("/positions", s.handlePositions)
		protected.POST("/positions/close", s.handleClosePosition)
		protected.GET("/accounts", s.handleAccounts)
		protected.GET("/cache/stats", s.handleCacheStats)
	}
	return router
}

// Start listens in the background
func (s *Server) Start(host string, port int) {
	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.Router(),
	}

	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("API server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()
}

// Shutdown stops the listener gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"open_trades": s.registry.Count(),
	})
}

type positionView struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	EntryPrice   float64 `json:"entry_price"`
	MarkPrice    float64 `json:"mark_price,omitempty"`
	Quantity     float64 `json:"quantity"`
	Leverage     int     `json:"leverage"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	OpenedAt     string  `json:"opened_at"`
	LastAlert    string  `json:"last_alert"`
	ThresholdPct float64 `json:"threshold_pct"`
}

func (s *Server) handlePositions(c *gin.Context) {
	accountIDs := s.registry.Accounts()
	if filter := c.Query("account_id"); filter != "" {
		accountIDs = []string{filter}
	}

	views := make([]positionView, 0)
	for _, accountID := range accountIDs {
		for _, t := range s.registry.List(accountID) {
			view := positionView{
				ID:           t.ID,
				AccountID:    t.AccountID,
				Symbol:       t.Symbol,
				Side:         string(t.Side),
				EntryPrice:   t.EntryPrice,
				Quantity:     t.Quantity,
				Leverage:     t.Leverage,
				OpenedAt:     t.OpenedAt.Format(time.RFC3339),
				LastAlert:    string(t.LastAlert),
				ThresholdPct: t.ThresholdPct,
			}
			if mark, err := s.cache.GetMarkPrice(t.Symbol); err == nil {
				view.MarkPrice = mark.MarkPrice
				view.PnL, view.PnLPct = monitor.ComputePnL(t, mark.MarkPrice)
			}
			views = append(views, view)
		}
	}
	c.JSON(http.StatusOK, gin.H{"positions": views})
}

type closeRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	TradeID   string `json:"trade_id" binding:"required"`
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := s.registry.Get(req.AccountID, req.TradeID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade not found"})
		return
	}

	acc, err := s.accounts.Get(req.AccountID)
	if err != nil || !acc.Credentials.Valid() {
		c.JSON(http.StatusConflict, gin.H{"error": "account credentials unavailable"})
		return
	}

	conn := s.provider.For(acc.ID, acc.Credentials.APIKey, acc.Credentials.SecretKey, acc.Credentials.Testnet)
	if err := s.executor.CloseTrade(conn, trade, "manual close via API"); err != nil {
		s.logger.Error().Err(err).Str("trade_id", trade.ID).Msg("Manual close failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"closed": trade.ID})
}

func (s *Server) handleAccounts(c *gin.Context) {
	accounts, err := s.accounts.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type accountView struct {
		ID          string   `json:"id"`
		AutoTrading bool     `json:"auto_trading"`
		Symbols     []string `json:"symbols"`
		OpenTrades  int      `json:"open_trades"`
		HasKeys     bool     `json:"has_keys"`
	}

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView{
			ID:          acc.ID,
			AutoTrading: acc.Settings.AutoTrading,
			Symbols:     acc.Settings.Symbols,
			OpenTrades:  len(s.registry.List(acc.ID)),
			HasKeys:     acc.Credentials.Valid(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	hits, misses := s.cache.Stats()
	c.JSON(http.StatusOK, gin.H{"hits": hits, "misses": misses})
}
