package exchange

// MockConnector is a test double for Connector with pluggable behavior.
// Unset functions return zero values so tests only stub what they use.
type MockConnector struct {
	MarkPriceFunc     func(symbol string) (*MarkPrice, error)
	KlinesFunc        func(symbol, interval string, limit int) ([]Kline, error)
	MarketRulesFunc   func(symbol string) (*MarketRules, error)
	USDTBalanceFunc   func() (float64, error)
	PositionsFunc     func() ([]Position, error)
	SetLeverageFunc   func(symbol string, leverage int) (*LeverageResponse, error)
	SetMarginTypeFunc func(symbol, marginType string) error
	PlaceOrderFunc    func(params OrderParams) (*OrderResponse, error)

	PlacedOrders []OrderParams
}

func (m *MockConnector) GetMarkPrice(symbol string) (*MarkPrice, error) {
	if m.MarkPriceFunc != nil {
		return m.MarkPriceFunc(symbol)
	}
	return &MarkPrice{Symbol: symbol}, nil
}

func (m *MockConnector) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	if m.KlinesFunc != nil {
		return m.KlinesFunc(symbol, interval, limit)
	}
	return nil, nil
}

func (m *MockConnector) GetMarketRules(symbol string) (*MarketRules, error) {
	if m.MarketRulesFunc != nil {
		return m.MarketRulesFunc(symbol)
	}
	return &MarketRules{Symbol: symbol, StepSize: 0.001, MinQty: 0.001, ContractSize: 1, TakerFee: 0.0004}, nil
}

func (m *MockConnector) GetUSDTBalance() (float64, error) {
	if m.USDTBalanceFunc != nil {
		return m.USDTBalanceFunc()
	}
	return 0, nil
}

func (m *MockConnector) GetPositions() ([]Position, error) {
	if m.PositionsFunc != nil {
		return m.PositionsFunc()
	}
	return nil, nil
}

func (m *MockConnector) SetLeverage(symbol string, leverage int) (*LeverageResponse, error) {
	if m.SetLeverageFunc != nil {
		return m.SetLeverageFunc(symbol, leverage)
	}
	return &LeverageResponse{Symbol: symbol, Leverage: leverage}, nil
}

func (m *MockConnector) SetMarginType(symbol, marginType string) error {
	if m.SetMarginTypeFunc != nil {
		return m.SetMarginTypeFunc(symbol, marginType)
	}
	return nil
}

func (m *MockConnector) PlaceOrder(params OrderParams) (*OrderResponse, error) {
	m.PlacedOrders = append(m.PlacedOrders, params)
	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(params)
	}
	return &OrderResponse{Symbol: params.Symbol, Side: params.Side, Type: params.Type, OrigQty: params.Quantity, Status: "FILLED"}, nil
}

var _ Connector = (*MockConnector)(nil)
