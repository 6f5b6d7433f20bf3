package entropy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/vault/api"
)

const seedBytes = 64

// VaultSource stores the master seed in a HashiCorp Vault KV secret. The seed
// is generated once, on first use, and read back on every subsequent start so
// that key derivation stays stable across processes and hosts sharing the
// same Vault.
type VaultSource struct {
	client     *api.Client
	secretPath string
}

// NewVaultSource creates a VaultSource reading the seed at secretPath.
func NewVaultSource(client *api.Client, secretPath string) *VaultSource {
	return &VaultSource{client: client, secretPath: secretPath}
}

// Seed returns the master seed from Vault, creating it if absent.
func (s *VaultSource) Seed(ctx context.Context) ([]byte, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.secretPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, s.secretPath, err)
	}

	if seed, ok := extractSeed(secret); ok {
		return seed, nil
	}

	seed := make([]byte, seedBytes)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("%w: generate seed: %v", ErrUnavailable, err)
	}
	_, err = s.client.Logical().WriteWithContext(ctx, s.secretPath, map[string]interface{}{
		"data": map[string]interface{}{
			"seed": hex.EncodeToString(seed),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrUnavailable, s.secretPath, err)
	}
	return seed, nil
}

// extractSeed pulls the hex seed out of a KV v2 read result. Returns false if
// the secret is absent or malformed.
func extractSeed(secret *api.Secret) ([]byte, bool) {
	if secret == nil || secret.Data == nil {
		return nil, false
	}
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	seedHex, ok := inner["seed"].(string)
	if !ok || seedHex == "" {
		return nil, false
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != seedBytes {
		return nil, false
	}
	return seed, true
}
