package account

import "errors"

// StaticSource serves one shared set of exchange keys, for single-operator
// deployments that configure credentials at the process level instead of
// per account or through Vault.
type StaticSource struct {
	creds Credentials
}

// NewStaticSource creates a source over the given keys
func NewStaticSource(apiKey, secretKey string, testnet bool) *StaticSource {
	return &StaticSource{creds: Credentials{APIKey: apiKey, SecretKey: secretKey, Testnet: testnet}}
}

// Lookup returns the shared credentials for every account ID
func (s *StaticSource) Lookup(accountID string) (*Credentials, error) {
	if !s.creds.Valid() {
		return nil, errors.New("no process-level api keys configured")
	}
	creds := s.creds
	return &creds, nil
}

var _ CredentialsSource = (*StaticSource)(nil)
