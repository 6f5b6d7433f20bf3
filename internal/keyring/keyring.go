// Package keyring owns the account table, the wallet records, and the
// pending-request ledger. It is the only component that mutates persisted
// state: every operation saves the whole state document before returning.
package keyring

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/erc4337/aakeyring/internal/keystore"
	"github.com/erc4337/aakeyring/internal/log"
	"github.com/erc4337/aakeyring/internal/signing"
	"github.com/erc4337/aakeyring/internal/state"
)

// AccountType tags every account created by this keyring.
const AccountType = "eip155:erc4337"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrNameInUse        = errors.New("account name already in use")
	ErrRequestNotFound  = errors.New("no pending request found")
	ErrEmptyRequestID   = errors.New("request id is required")
	ErrDuplicateRequest = errors.New("request id already pending")
)

// Keyring implements the account-management and request-lifecycle API. All
// operations serialize on one mutex; the request model is one call at a time.
type Keyring struct {
	mu       sync.Mutex
	store    state.Store
	doc      *state.Document
	keys     *keystore.KeyStore
	signer   *signing.Signer
	notifier AccountNotifier
	sink     ResponseSink
}

// New loads the persisted state and builds a Keyring around it.
func New(ctx context.Context, store state.Store, keys *keystore.KeyStore, notifier AccountNotifier, sink ResponseSink) (*Keyring, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load keyring state: %w", err)
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if sink == nil {
		sink = LogSink{}
	}
	k := &Keyring{
		store:    store,
		doc:      doc,
		keys:     keys,
		notifier: notifier,
		sink:     sink,
	}
	k.signer = signing.New(signerResolver{k})
	return k, nil
}

// signerResolver adapts the wallet table to signing.KeyResolver. It does not
// take the keyring mutex: the signer only runs inside ApproveRequest, which
// already holds it. The key never travels further than the signer.
type signerResolver struct{ k *Keyring }

func (r signerResolver) KeyByAddress(address string) (*ecdsa.PrivateKey, error) {
	wallet, err := r.k.walletByAddress(address)
	if err != nil {
		return nil, err
	}
	return crypto.HexToECDSA(wallet.PrivateKey)
}

// ListAccounts returns all accounts.
func (k *Keyring) ListAccounts() []state.Account {
	k.mu.Lock()
	defer k.mu.Unlock()
	accounts := make([]state.Account, 0, len(k.doc.Wallets))
	for _, wallet := range k.doc.Wallets {
		accounts = append(accounts, wallet.Account)
	}
	return accounts
}

// GetAccount returns the account with the given id.
func (k *Keyring) GetAccount(id string) (state.Account, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	wallet, ok := k.doc.Wallets[id]
	if !ok {
		return state.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return wallet.Account, nil
}

// CreateAccount derives a new key pair from the account name and registers
// the account. The name must be unique (case-sensitive exact match).
func (k *Keyring) CreateAccount(ctx context.Context, name string, options json.RawMessage) (state.Account, error) {
	key, address, err := k.keys.Derive(ctx, name)
	if err != nil {
		return state.Account{}, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.nameIsUnique(name, "") {
		return state.Account{}, fmt.Errorf("%w: %s", ErrNameInUse, name)
	}

	account := state.Account{
		ID:      uuid.NewString(),
		Name:    name,
		Address: address.Hex(),
		Options: options,
		Methods: signing.SupportedMethods(),
		Type:    AccountType,
	}

	k.doc.Wallets[account.ID] = state.Wallet{
		Account:    account,
		PrivateKey: fmt.Sprintf("%x", crypto.FromECDSA(key)),
	}
	if err := k.saveState(ctx); err != nil {
		delete(k.doc.Wallets, account.ID)
		return state.Account{}, err
	}

	if err := k.notifier.AccountCreated(ctx, account); err != nil {
		return state.Account{}, fmt.Errorf("notify account creation: %w", err)
	}
	log.Keyring.Info().Str("id", account.ID).Str("address", account.Address).Msg("account created")
	return account, nil
}

// UpdateAccount merges the mutable fields (name, options) onto the stored
// record. Address, supported methods and type always come from the stored
// original, whatever the caller supplied.
func (k *Keyring) UpdateAccount(ctx context.Context, account state.Account) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	wallet, ok := k.doc.Wallets[account.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, account.ID)
	}
	if !k.nameIsUnique(account.Name, account.ID) {
		return fmt.Errorf("%w: %s", ErrNameInUse, account.Name)
	}

	current := wallet.Account
	updated := state.Account{
		ID:      current.ID,
		Name:    account.Name,
		Options: account.Options,
		// Restore read-only properties.
		Address: current.Address,
		Methods: current.Methods,
		Type:    current.Type,
	}

	wallet.Account = updated
	k.doc.Wallets[account.ID] = wallet
	if err := k.saveState(ctx); err != nil {
		wallet.Account = current
		k.doc.Wallets[account.ID] = wallet
		return err
	}

	if err := k.notifier.AccountUpdated(ctx, updated); err != nil {
		return fmt.Errorf("notify account update: %w", err)
	}
	return nil
}

// DeleteAccount removes the wallet record. Deleting an unknown id is a no-op,
// so a retried delete never fails.
func (k *Keyring) DeleteAccount(ctx context.Context, id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.doc.Wallets[id]; ok {
		delete(k.doc.Wallets, id)
		if err := k.saveState(ctx); err != nil {
			return err
		}
	}

	if err := k.notifier.AccountDeleted(ctx, id); err != nil {
		return fmt.Errorf("notify account deletion: %w", err)
	}
	log.Keyring.Info().Str("id", id).Msg("account deleted")
	return nil
}

// FilterAccountChains returns the subset of chains this account can operate
// on. All accounts support every EVM chain, so the id does not affect the
// result.
func (k *Keyring) FilterAccountChains(_ string, chains []string) []string {
	filtered := make([]string, 0, len(chains))
	for _, chain := range chains {
		if IsEVMChain(chain) {
			filtered = append(filtered, chain)
		}
	}
	return filtered
}

// IsEVMChain reports whether a CAIP-2 chain id names an EVM network.
func IsEVMChain(chain string) bool {
	return strings.HasPrefix(chain, "eip155:")
}

// SubmitRequest enqueues a signing request. The keyring is asynchronous:
// execution happens later, when the host approves or rejects the request.
func (k *Keyring) SubmitRequest(ctx context.Context, request state.SigningRequest) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if request.ID == "" {
		return ErrEmptyRequestID
	}
	if _, ok := k.doc.PendingRequests[request.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, request.ID)
	}

	k.doc.PendingRequests[request.ID] = request
	if err := k.saveState(ctx); err != nil {
		delete(k.doc.PendingRequests, request.ID)
		return err
	}
	log.Keyring.Info().Str("id", request.ID).Str("method", request.Method).Msg("request submitted")
	return nil
}

// ListRequests returns all pending requests.
func (k *Keyring) ListRequests() []state.SigningRequest {
	k.mu.Lock()
	defer k.mu.Unlock()
	requests := make([]state.SigningRequest, 0, len(k.doc.PendingRequests))
	for _, req := range k.doc.PendingRequests {
		requests = append(requests, req)
	}
	return requests
}

// GetRequest returns the pending request with the given id.
func (k *Keyring) GetRequest(id string) (state.SigningRequest, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	req, ok := k.doc.PendingRequests[id]
	if !ok {
		return state.SigningRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return req, nil
}

// ApproveRequest executes a pending request and delivers the result to the
// host. A signer failure leaves the request pending so the host can inspect
// it and reject explicitly.
func (k *Keyring) ApproveRequest(ctx context.Context, id string) (json.RawMessage, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	req, ok := k.doc.PendingRequests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	result, err := k.signer.Sign(req.Method, req.Params)
	if err != nil {
		log.Keyring.Warn().Str("id", id).Err(err).Msg("signing failed, request left pending")
		return nil, err
	}

	if err := k.sink.SubmitResponse(ctx, id, result); err != nil {
		return nil, fmt.Errorf("submit response: %w", err)
	}

	if req.Method == signing.MethodSignTransaction || req.Method == signing.MethodSignUserOpTx {
		k.doc.SignedTxs[id] = result
	}
	delete(k.doc.PendingRequests, id)
	if err := k.saveState(ctx); err != nil {
		return nil, err
	}
	log.Keyring.Info().Str("id", id).Str("method", req.Method).Msg("request approved")
	return result, nil
}

// RejectRequest removes a pending request and delivers a null result to the
// host.
func (k *Keyring) RejectRequest(ctx context.Context, id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.doc.PendingRequests[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}

	if err := k.sink.SubmitResponse(ctx, id, nil); err != nil {
		return fmt.Errorf("submit response: %w", err)
	}

	delete(k.doc.PendingRequests, id)
	if err := k.saveState(ctx); err != nil {
		return err
	}
	log.Keyring.Info().Str("id", id).Msg("request rejected")
	return nil
}

// nameIsUnique reports whether no other account uses the name. excludeID
// skips the account being renamed. Caller holds the lock.
func (k *Keyring) nameIsUnique(name, excludeID string) bool {
	for id, wallet := range k.doc.Wallets {
		if id != excludeID && wallet.Account.Name == name {
			return false
		}
	}
	return true
}

// walletByAddress finds the wallet whose account address matches, ignoring
// case. Caller holds the lock.
func (k *Keyring) walletByAddress(address string) (state.Wallet, error) {
	for _, wallet := range k.doc.Wallets {
		if strings.EqualFold(wallet.Account.Address, address) {
			return wallet, nil
		}
	}
	return state.Wallet{}, fmt.Errorf("cannot find wallet for address: %s", address)
}

// saveState persists the whole document. Caller holds the lock.
func (k *Keyring) saveState(ctx context.Context) error {
	if err := k.store.Save(ctx, k.doc); err != nil {
		return fmt.Errorf("persist keyring state: %w", err)
	}
	return nil
}
