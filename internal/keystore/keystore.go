// Package keystore derives account key pairs from the installation's master
// secret and a per-account salt.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erc4337/aakeyring/internal/entropy"
)

// KeyStore derives private keys deterministically. The derivation input is
// the master seed plus the account name, so a deleted account can always be
// recreated from its name with the same address.
type KeyStore struct {
	source entropy.Source
}

// New creates a KeyStore backed by the given entropy source.
func New(source entropy.Source) *KeyStore {
	return &KeyStore{source: source}
}

// Derive returns the private key and checksummed address for the given
// account name. Identical name and identical master seed always yield the
// identical key pair.
func (ks *KeyStore) Derive(ctx context.Context, name string) (*ecdsa.PrivateKey, common.Address, error) {
	seed, err := ks.source.Seed(ctx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("derive key for %q: %w", name, err)
	}

	material := crypto.Keccak256(seed, crypto.Keccak256([]byte(name)))
	// ToECDSA rejects the (astronomically rare) candidates outside the curve
	// order. Re-hash with a counter byte until one is accepted so that
	// derivation is total for every name.
	for i := byte(0); ; i++ {
		key, err := crypto.ToECDSA(material)
		if err == nil {
			return key, crypto.PubkeyToAddress(key.PublicKey), nil
		}
		material = crypto.Keccak256(material, []byte{i})
	}
}
