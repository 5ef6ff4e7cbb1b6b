package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// BaseURL is the production Binance Futures API URL
	BaseURL = "https://fapi.binance.com"
	// TestnetURL is the testnet Binance Futures API URL
	TestnetURL = "https://testnet.binancefuture.com"

	recvWindowMs = "10000"
)

// Client implements Connector against the Binance USD-M futures REST API
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client

	rulesMu sync.RWMutex
	rules   map[string]*MarketRules // symbol -> cached exchangeInfo filters
}

// NewClient creates a new futures REST client
func NewClient(apiKey, secretKey string, testnet bool, timeout time.Duration) *Client {
	baseURL := BaseURL
	if testnet {
		baseURL = TestnetURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	// Trim whitespace from keys - stray characters break signature generation
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		rules:      make(map[string]*MarketRules),
	}
}

// Factory builds per-account clients sharing one request timeout.
type Factory struct {
	Timeout time.Duration
}

func (f *Factory) ConnectorFor(apiKey, secretKey string, testnet bool) Connector {
	return NewClient(apiKey, secretKey, testnet, f.Timeout)
}

// ==================== MARKET DATA ====================

// GetMarkPrice retrieves the mark price for a symbol
func (c *Client) GetMarkPrice(symbol string) (*MarkPrice, error) {
	resp, err := c.publicGet("/fapi/v1/premiumIndex", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("error fetching mark price: %w", err)
	}

	var markPrice MarkPrice
	if err := json.Unmarshal(resp, &markPrice); err != nil {
		return nil, fmt.Errorf("error parsing mark price: %w", err)
	}
	return &markPrice, nil
}

// GetKlines retrieves candlestick data
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	resp, err := c.publicGet("/fapi/v1/klines", map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(resp, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline row at index %d", i)
		}
		klines[i] = Kline{
			OpenTime:  int64(raw[0].(float64)),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: int64(raw[6].(float64)),
		}
	}
	return klines, nil
}

// GetMarketRules returns the trading constraints for a symbol, fetching
// exchangeInfo and the account commission rate on first use and caching the
// result for the process lifetime.
func (c *Client) GetMarketRules(symbol string) (*MarketRules, error) {
	c.rulesMu.RLock()
	if cached, ok := c.rules[symbol]; ok {
		c.rulesMu.RUnlock()
		return cached, nil
	}
	c.rulesMu.RUnlock()

	resp, err := c.publicGet("/fapi/v1/exchangeInfo", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}

	var info ExchangeInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}

	var symbolInfo *SymbolInfo
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			symbolInfo = &info.Symbols[i]
			break
		}
	}
	if symbolInfo == nil {
		return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
	}

	rules := rulesFromSymbolInfo(symbolInfo)

	// Taker fee requires a signed call; default to the standard futures
	// taker rate if the account endpoint fails.
	rules.TakerFee = 0.0004
	if rate, err := c.getCommissionRate(symbol); err == nil {
		rules.TakerFee = rate.TakerCommissionRate
	}

	c.rulesMu.Lock()
	c.rules[symbol] = rules
	c.rulesMu.Unlock()
	return rules, nil
}

func (c *Client) getCommissionRate(symbol string) (*CommissionRate, error) {
	resp, err := c.signedRequest(http.MethodGet, "/fapi/v1/commissionRate", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("error fetching commission rate: %w", err)
	}

	var rate CommissionRate
	if err := json.Unmarshal(resp, &rate); err != nil {
		return nil, fmt.Errorf("error parsing commission rate: %w", err)
	}
	return &rate, nil
}

// ==================== ACCOUNT ====================

// GetUSDTBalance fetches the available USDT balance from the futures account
func (c *Client) GetUSDTBalance() (float64, error) {
	resp, err := c.signedRequest(http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return 0, fmt.Errorf("error fetching account info: %w", err)
	}

	var accountInfo AccountInfo
	if err := json.Unmarshal(resp, &accountInfo); err != nil {
		return 0, fmt.Errorf("error parsing account info: %w", err)
	}

	for _, asset := range accountInfo.Assets {
		if asset.Asset == "USDT" {
			return asset.AvailableBalance, nil
		}
	}
	return 0, nil
}

// GetPositions retrieves all futures positions
func (c *Client) GetPositions() ([]Position, error) {
	resp, err := c.signedRequest(http.MethodGet, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var positions []Position
	if err := json.Unmarshal(resp, &positions); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}
	return positions, nil
}

// ==================== TRADING ====================

// SetLeverage sets the leverage for a symbol
func (c *Client) SetLeverage(symbol string, leverage int) (*LeverageResponse, error) {
	resp, err := c.signedRequest(http.MethodPost, "/fapi/v1/leverage", map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	})
	if err != nil {
		return nil, fmt.Errorf("error setting leverage: %w", err)
	}

	var leverageResp LeverageResponse
	if err := json.Unmarshal(resp, &leverageResp); err != nil {
		return nil, fmt.Errorf("error parsing leverage response: %w", err)
	}
	return &leverageResp, nil
}

// SetMarginType sets the margin type (ISOLATED or CROSSED)
func (c *Client) SetMarginType(symbol, marginType string) error {
	_, err := c.signedRequest(http.MethodPost, "/fapi/v1/marginType", map[string]string{
		"symbol":     symbol,
		"marginType": marginType,
	})
	// Binance errors when the margin type is already set - ignore
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == -4046 {
			return nil
		}
		return fmt.Errorf("error setting margin type: %w", err)
	}
	return nil
}

// PlaceOrder places a futures order. Market entries, reduce-only closes, and
// conditional STOP_MARKET / TAKE_PROFIT_MARKET orders all go through here.
func (c *Client) PlaceOrder(params OrderParams) (*OrderResponse, error) {
	reqParams := map[string]string{
		"symbol":   params.Symbol,
		"side":     params.Side,
		"type":     params.Type,
		"quantity": strconv.FormatFloat(params.Quantity, 'f', -1, 64),
	}
	if params.StopPrice > 0 {
		reqParams["stopPrice"] = strconv.FormatFloat(params.StopPrice, 'f', -1, 64)
	}
	if params.ReduceOnly {
		reqParams["reduceOnly"] = "true"
	}
	if params.NewClientOrderID != "" {
		reqParams["newClientOrderId"] = params.NewClientOrderID
	}

	resp, err := c.signedRequest(http.MethodPost, "/fapi/v1/order", reqParams)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(resp, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}
	return &orderResp, nil
}

// ==================== TRANSPORT ====================

func (c *Client) publicGet(endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	reqURL := c.baseURL + endpoint
	if len(values) > 0 {
		reqURL += "?" + values.Encode()
	}

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

func (c *Client) signedRequest(method, endpoint string, params map[string]string) ([]byte, error) {
	if params == nil {
		params = make(map[string]string)
	}
	params["timestamp"] = strconv.FormatInt(time.Now().UnixMilli(), 10)
	params["recvWindow"] = recvWindowMs

	query := c.signParams(params)

	req, err := http.NewRequest(method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = query
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

// signParams builds the query string and appends the HMAC-SHA256 signature
func (c *Client) signParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	query := values.Encode()

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))

	return query + "&signature=" + signature
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Code != 0 {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}

// Ensure Client implements Connector
var _ Connector = (*Client)(nil)
var _ ConnectorFactory = (*Factory)(nil)
