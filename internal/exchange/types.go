package exchange

import (
	"strconv"
	"strings"
)

// Order sides and types as Binance expects them on the wire.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket     = "MARKET"
	OrderTypeStopMarket = "STOP_MARKET"
	OrderTypeTakeProfit = "TAKE_PROFIT_MARKET"

	MarginTypeCrossed  = "CROSSED"
	MarginTypeIsolated = "ISOLATED"
)

// Kline represents a single candlestick
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// MarkPrice represents the mark price for a futures symbol
type MarkPrice struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"markPrice,string"`
	IndexPrice      float64 `json:"indexPrice,string"`
	LastFundingRate float64 `json:"lastFundingRate,string"`
	NextFundingTime int64   `json:"nextFundingTime"`
	Time            int64   `json:"time"`
}

// AccountAsset represents a single asset inside the futures account
type AccountAsset struct {
	Asset            string  `json:"asset"`
	WalletBalance    float64 `json:"walletBalance,string"`
	AvailableBalance float64 `json:"availableBalance,string"`
	UnrealizedProfit float64 `json:"unrealizedProfit,string"`
}

// AccountInfo represents futures account information
type AccountInfo struct {
	TotalWalletBalance float64        `json:"totalWalletBalance,string"`
	AvailableBalance   float64        `json:"availableBalance,string"`
	Assets             []AccountAsset `json:"assets"`
}

// Position represents a futures position as reported by the exchange
type Position struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"positionAmt,string"`
	EntryPrice       float64 `json:"entryPrice,string"`
	MarkPrice        float64 `json:"markPrice,string"`
	UnRealizedProfit float64 `json:"unRealizedProfit,string"`
	Leverage         int     `json:"leverage,string"`
}

// OrderParams holds parameters for placing a futures order
type OrderParams struct {
	Symbol           string
	Side             string // BUY or SELL
	Type             string // MARKET, STOP_MARKET, TAKE_PROFIT_MARKET
	Quantity         float64
	StopPrice        float64 // trigger price for conditional orders
	ReduceOnly       bool
	NewClientOrderID string
}

// OrderResponse represents the exchange response to a placed order
type OrderResponse struct {
	OrderID       int64   `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	Symbol        string  `json:"symbol"`
	Status        string  `json:"status"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	AvgPrice      float64 `json:"avgPrice,string"`
	ExecutedQty   float64 `json:"executedQty,string"`
	OrigQty       float64 `json:"origQty,string"`
}

// LeverageResponse represents the response from setting leverage
type LeverageResponse struct {
	Leverage         int     `json:"leverage"`
	MaxNotionalValue float64 `json:"maxNotionalValue,string"`
	Symbol           string  `json:"symbol"`
}

// CommissionRate represents the user's fee rates for a symbol
type CommissionRate struct {
	Symbol              string  `json:"symbol"`
	MakerCommissionRate float64 `json:"makerCommissionRate,string"`
	TakerCommissionRate float64 `json:"takerCommissionRate,string"`
}

// SymbolFilter represents a filter from the symbol's filters array
type SymbolFilter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
	Notional   string `json:"notional,omitempty"`
	TickSize   string `json:"tickSize,omitempty"`
}

// SymbolInfo represents futures symbol metadata from exchangeInfo
type SymbolInfo struct {
	Symbol            string         `json:"symbol"`
	Status            string         `json:"status"`
	ContractType      string         `json:"contractType"`
	QuantityPrecision int            `json:"quantityPrecision"`
	PricePrecision    int            `json:"pricePrecision"`
	Filters           []SymbolFilter `json:"filters"`
}

// ExchangeInfo represents the futures exchangeInfo payload
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// MarketRules is the read-only constraint snapshot the sizing and execution
// layers work against: lot step, minimum quantity, minimum notional, contract
// size, and taker fee for a symbol.
type MarketRules struct {
	Symbol       string
	StepSize     float64
	MinQty       float64
	MinNotional  float64
	ContractSize float64
	TakerFee     float64
}

// rulesFromSymbolInfo extracts MarketRules from exchangeInfo filters.
// Binance USDT-perps have no per-symbol contract size, so it defaults to 1.
func rulesFromSymbolInfo(info *SymbolInfo) *MarketRules {
	rules := &MarketRules{
		Symbol:       info.Symbol,
		ContractSize: 1,
	}
	for _, f := range info.Filters {
		switch f.FilterType {
		case "LOT_SIZE", "MARKET_LOT_SIZE":
			if v := parseFilterFloat(f.StepSize); v > 0 && (rules.StepSize == 0 || f.FilterType == "MARKET_LOT_SIZE") {
				rules.StepSize = v
			}
			if v := parseFilterFloat(f.MinQty); v > 0 && (rules.MinQty == 0 || f.FilterType == "MARKET_LOT_SIZE") {
				rules.MinQty = v
			}
		case "MIN_NOTIONAL":
			rules.MinNotional = parseFilterFloat(f.Notional)
		}
	}
	return rules
}

func parseFilterFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
