// Package notification delivers user-facing messages for executions,
// warnings, and P&L alerts. Delivery failures are logged and never
// propagate to the trading path.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"futures-autotrader/internal/account"
)

// Notifier is the single capability the engine uses to reach a user
type Notifier interface {
	Notify(accountID, message string)
}

// LogNotifier writes notifications to the log only, used when no delivery
// channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(accountID, message string) {
	n.logger.Info().Str("account_id", accountID).Str("message", message).Msg("Notification")
}

// TelegramNotifier sends messages through the Telegram bot API, resolving
// each account's chat ID from its settings.
type TelegramNotifier struct {
	botToken   string
	accounts   account.Store
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewTelegramNotifier creates a notifier backed by a Telegram bot
func NewTelegramNotifier(botToken string, accounts account.Store, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:   botToken,
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// Notify sends one message to the account's configured chat. Accounts
// without a chat ID fall back to a log line.
func (n *TelegramNotifier) Notify(accountID, message string) {
	acc, err := n.accounts.Get(accountID)
	if err != nil || acc.Settings.TelegramChatID == 0 {
		n.logger.Info().Str("account_id", accountID).Str("message", message).Msg("Notification (no chat configured)")
		return
	}

	if err := n.send(acc.Settings.TelegramChatID, message); err != nil {
		n.logger.Warn().Err(err).Str("account_id", accountID).Msg("Telegram delivery failed")
	}
}

func (n *TelegramNotifier) send(chatID int64, message string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	resp, err := n.httpClient.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned HTTP %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
