package exchange

// Connector is the exchange surface the sizing, execution, and monitoring
// layers depend on. The real client and the mock used in tests both satisfy
// it, so callers never hold a concrete *Client.
type Connector interface {
	// Market data
	GetMarkPrice(symbol string) (*MarkPrice, error)
	GetKlines(symbol, interval string, limit int) ([]Kline, error)
	GetMarketRules(symbol string) (*MarketRules, error)

	// Account
	GetUSDTBalance() (float64, error)
	GetPositions() ([]Position, error)

	// Trading
	SetLeverage(symbol string, leverage int) (*LeverageResponse, error)
	SetMarginType(symbol, marginType string) error
	PlaceOrder(params OrderParams) (*OrderResponse, error)
}

// ConnectorFactory builds a Connector for one account's credentials. The
// monitor and auto-trade passes go through the factory so each account
// trades under its own API keys.
type ConnectorFactory interface {
	ConnectorFor(apiKey, secretKey string, testnet bool) Connector
}
