package exchange

import "sync"

// Provider hands out one signed connector per account, created lazily and
// reused across monitor passes so HTTP connections are pooled.
type Provider struct {
	factory ConnectorFactory

	mu    sync.Mutex
	conns map[string]Connector
}

// NewProvider creates a provider over the given factory
func NewProvider(factory ConnectorFactory) *Provider {
	return &Provider{
		factory: factory,
		conns:   make(map[string]Connector),
	}
}

// For returns the account's connector, creating it on first use
func (p *Provider) For(accountID, apiKey, secretKey string, testnet bool) Connector {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[accountID]; ok {
		return conn
	}
	conn := p.factory.ConnectorFor(apiKey, secretKey, testnet)
	p.conns[accountID] = conn
	return conn
}

// Drop discards a cached connector, forcing recreation on next use.
// Called when an account's credentials change or are removed.
func (p *Provider) Drop(accountID string) {
	p.mu.Lock()
	delete(p.conns, accountID)
	p.mu.Unlock()
}
