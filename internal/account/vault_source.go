package account

import (
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// VaultSource resolves account credentials from a Vault KV v2 mount.
// Each account's keys live at <mount>/data/<basePath>/<accountID> with
// api_key, secret_key, and an optional testnet flag.
type VaultSource struct {
	client   *vault.Client
	mount    string
	basePath string
	logger   zerolog.Logger
}

// NewVaultSource connects to Vault and verifies the token
func NewVaultSource(address, token, mount, basePath, caCert string, tlsEnabled bool, logger zerolog.Logger) (*VaultSource, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = address

	if tlsEnabled && caCert != "" {
		if err := cfg.ConfigureTLS(&vault.TLSConfig{CACert: caCert}); err != nil {
			return nil, fmt.Errorf("error configuring vault TLS: %w", err)
		}
	}

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating vault client: %w", err)
	}
	client.SetToken(token)

	// Token self-lookup confirms connectivity and auth in one call
	if _, err := client.Auth().Token().LookupSelf(); err != nil {
		return nil, fmt.Errorf("vault token lookup failed: %w", err)
	}

	log := logger.With().Str("component", "vault_source").Logger()
	log.Info().Str("address", address).Str("mount", mount).Msg("Connected to Vault")

	return &VaultSource{
		client:   client,
		mount:    mount,
		basePath: basePath,
		logger:   log,
	}, nil
}

// Lookup reads one account's API keys from Vault
func (v *VaultSource) Lookup(accountID string) (*Credentials, error) {
	path := fmt.Sprintf("%s/data/%s/%s", v.mount, v.basePath, accountID)

	secret, err := v.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("error reading vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no vault secret at %s", path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected vault secret shape at %s", path)
	}

	creds := &Credentials{FromVault: true}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if v, ok := data["testnet"].(bool); ok {
		creds.Testnet = v
	}

	if !creds.Valid() {
		return nil, fmt.Errorf("vault secret at %s missing api_key or secret_key", path)
	}
	return creds, nil
}

var _ CredentialsSource = (*VaultSource)(nil)
