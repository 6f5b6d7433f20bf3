// Package state defines the persisted keyring state and its storage backends.
// The whole state is one document, read and written atomically: every mutation
// saves the full document before the operation returns.
package state

import "encoding/json"

// Account identifies a signing identity. The private key never appears here;
// it lives in the wallet record that wraps the account.
type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Options json.RawMessage `json:"options,omitempty"`
	Methods []string        `json:"supportedMethods"`
	Type    string          `json:"type"`
}

// Wallet pairs an account with its private key material (hex, no 0x prefix).
// Wallets are internal to the keyring and never returned to callers.
type Wallet struct {
	Account    Account `json:"account"`
	PrivateKey string  `json:"privateKey"`
}

// SigningRequest is a queued unit of signing work, pending until the host
// approves or rejects it.
type SigningRequest struct {
	ID        string            `json:"id"`
	AccountID string            `json:"account"`
	Scope     string            `json:"scope"`
	Method    string            `json:"method"`
	Params    []json.RawMessage `json:"params"`
}

// AccountActivity records user-operation and transaction hashes per chain for
// one account. Pending hashes move to confirmed once a receipt is observed.
type AccountActivity struct {
	PendingUserOps   map[string][]string `json:"pendingUserOpHashes"`
	ConfirmedUserOps map[string][]string `json:"confirmedUserOpHashes"`
	TxHashes         map[string][]string `json:"txHashes"`
}

// Document is the complete persisted state.
type Document struct {
	Wallets          map[string]Wallet           `json:"wallets"`
	PendingRequests  map[string]SigningRequest   `json:"pendingRequests"`
	SignedTxs        map[string]json.RawMessage  `json:"signedTxs"`
	BundlerURLs      map[string]string           `json:"bundlerUrls"`
	RequestIDCounter uint64                      `json:"requestIdCounter"`
	Activity         map[string]*AccountActivity `json:"smartAccountActivity"`
}

// DefaultBundlerURLs returns the built-in chain id to bundler endpoint table.
func DefaultBundlerURLs() map[string]string {
	return map[string]string{
		"0x539": "http://localhost:3000/rpc", // 1337 - private
	}
}

// NewDocument returns an empty document with the default bundler table.
func NewDocument() *Document {
	return &Document{
		Wallets:         make(map[string]Wallet),
		PendingRequests: make(map[string]SigningRequest),
		SignedTxs:       make(map[string]json.RawMessage),
		BundlerURLs:     DefaultBundlerURLs(),
		Activity:        make(map[string]*AccountActivity),
	}
}

// normalize fills in nil maps after unmarshaling an older or hand-edited
// document so callers can index without nil checks.
func (d *Document) normalize() {
	if d.Wallets == nil {
		d.Wallets = make(map[string]Wallet)
	}
	if d.PendingRequests == nil {
		d.PendingRequests = make(map[string]SigningRequest)
	}
	if d.SignedTxs == nil {
		d.SignedTxs = make(map[string]json.RawMessage)
	}
	if d.BundlerURLs == nil {
		d.BundlerURLs = DefaultBundlerURLs()
	}
	if d.Activity == nil {
		d.Activity = make(map[string]*AccountActivity)
	}
}

// ActivityFor returns the activity record for an account, creating it if
// needed.
func (d *Document) ActivityFor(accountID string) *AccountActivity {
	act, ok := d.Activity[accountID]
	if !ok {
		act = &AccountActivity{
			PendingUserOps:   make(map[string][]string),
			ConfirmedUserOps: make(map[string][]string),
			TxHashes:         make(map[string][]string),
		}
		d.Activity[accountID] = act
	}
	return act
}
