package exchange

import (
	"errors"
	"fmt"
	"strings"
)

// Binance error codes the engine cares about. The full list lives in the
// exchange docs; only margin exhaustion changes control flow here.
const (
	codeInsufficientMargin = -2019
)

// APIError is a structured error returned by the exchange REST API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// IsInsufficientMargin reports whether err represents a margin-insufficiency
// rejection. Prefers the structured code; falls back to substring matching
// for errors that arrive as raw text.
func IsInsufficientMargin(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeInsufficientMargin {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "-2019")
}
