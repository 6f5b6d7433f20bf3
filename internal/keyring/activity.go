package keyring

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/erc4337/aakeyring/internal/state"
)

// The methods below expose the bookkeeping slices of the state document that
// the account-abstraction layer reads and writes: the bundler endpoint table,
// the request id counter, stored signed transactions, and per-account
// user-operation activity. They go through the keyring so the document keeps
// a single owner and every mutation stays persist-then-return.

// NextRequestID increments and persists the request id counter.
func (k *Keyring) NextRequestID(ctx context.Context) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.doc.RequestIDCounter++
	if err := k.saveState(ctx); err != nil {
		k.doc.RequestIDCounter--
		return 0, err
	}
	return k.doc.RequestIDCounter, nil
}

// BundlerURLs returns a copy of the chain id to bundler endpoint table.
func (k *Keyring) BundlerURLs() map[string]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	urls := make(map[string]string, len(k.doc.BundlerURLs))
	for chain, url := range k.doc.BundlerURLs {
		urls[chain] = url
	}
	return urls
}

// AddBundlerURL stores or replaces the bundler endpoint for a chain id.
func (k *Keyring) AddBundlerURL(ctx context.Context, chainID, url string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	previous, had := k.doc.BundlerURLs[chainID]
	k.doc.BundlerURLs[chainID] = url
	if err := k.saveState(ctx); err != nil {
		if had {
			k.doc.BundlerURLs[chainID] = previous
		} else {
			delete(k.doc.BundlerURLs, chainID)
		}
		return err
	}
	return nil
}

// SignedTxs returns the stored signed transactions keyed by request id.
func (k *Keyring) SignedTxs() map[string]json.RawMessage {
	k.mu.Lock()
	defer k.mu.Unlock()
	txs := make(map[string]json.RawMessage, len(k.doc.SignedTxs))
	for id, tx := range k.doc.SignedTxs {
		txs[id] = tx
	}
	return txs
}

// UserOpHashes returns the pending user-operation hashes for an account on a
// chain.
func (k *Keyring) UserOpHashes(accountID, chainID string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.doc.Wallets[accountID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	act, ok := k.doc.Activity[accountID]
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, act.PendingUserOps[chainID]...), nil
}

// TxHashes returns the confirmed transaction hashes for an account on a
// chain.
func (k *Keyring) TxHashes(accountID, chainID string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.doc.Wallets[accountID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	act, ok := k.doc.Activity[accountID]
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, act.TxHashes[chainID]...), nil
}

// RecordUserOpHash adds a pending user-operation hash for an account.
func (k *Keyring) RecordUserOpHash(ctx context.Context, accountID, chainID, userOpHash string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.doc.Wallets[accountID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	act := k.doc.ActivityFor(accountID)
	act.PendingUserOps[chainID] = append(act.PendingUserOps[chainID], userOpHash)
	return k.saveState(ctx)
}

// StoreTxHash records a confirmed transaction hash and retires the pending
// user-operation hash it settles.
func (k *Keyring) StoreTxHash(ctx context.Context, accountID, txHash, userOpHash, chainID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.doc.Wallets[accountID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	act := k.doc.ActivityFor(accountID)
	act.TxHashes[chainID] = append(act.TxHashes[chainID], txHash)

	if userOpHash != "" {
		pending := act.PendingUserOps[chainID]
		for i, hash := range pending {
			if hash == userOpHash {
				act.PendingUserOps[chainID] = append(pending[:i], pending[i+1:]...)
				act.ConfirmedUserOps[chainID] = append(act.ConfirmedUserOps[chainID], userOpHash)
				break
			}
		}
	}
	return k.saveState(ctx)
}

// PendingUserOps returns every pending user-operation hash on a chain across
// all accounts, keyed by account id. Used by the receipt sweep.
func (k *Keyring) PendingUserOps(chainID string) map[string][]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	pending := make(map[string][]string)
	for accountID, act := range k.doc.Activity {
		if hashes := act.PendingUserOps[chainID]; len(hashes) > 0 {
			pending[accountID] = append([]string{}, hashes...)
		}
	}
	return pending
}

// ClearActivity drops all user-operation and transaction bookkeeping.
// Accounts and pending signing requests are untouched.
func (k *Keyring) ClearActivity(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	previousActivity := k.doc.Activity
	previousTxs := k.doc.SignedTxs
	k.doc.Activity = make(map[string]*state.AccountActivity)
	k.doc.SignedTxs = make(map[string]json.RawMessage)
	if err := k.saveState(ctx); err != nil {
		k.doc.Activity = previousActivity
		k.doc.SignedTxs = previousTxs
		return err
	}
	return nil
}

// SignDigest signs a 32-byte digest with an account's owner key. The key
// stays inside the keyring; callers only see the signature.
func (k *Keyring) SignDigest(accountID string, digest []byte) ([]byte, error) {
	k.mu.Lock()
	wallet, ok := k.doc.Wallets[accountID]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	key, err := crypto.HexToECDSA(wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode owner key: %w", err)
	}
	defer zeroKey(key)

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func zeroKey(key *ecdsa.PrivateKey) {
	key.D.SetInt64(0)
}
