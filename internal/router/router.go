package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc4337/aakeyring/internal/aa"
	"github.com/erc4337/aakeyring/internal/bundler"
	"github.com/erc4337/aakeyring/internal/keyring"
	"github.com/erc4337/aakeyring/internal/log"
	"github.com/erc4337/aakeyring/internal/state"
)

var (
	// ErrOriginDenied is returned when the caller origin lacks permission
	// for the requested method. Authorization runs before dispatch, so an
	// unauthorized caller cannot distinguish known from unknown methods.
	ErrOriginDenied = errors.New("origin denied")

	// ErrMethodNotFound is returned for authorized but unrecognized methods.
	ErrMethodNotFound = errors.New("method not found")

	// ErrMissingParam is returned when a method's required first parameter
	// is absent or malformed.
	ErrMissingParam = errors.New("missing or invalid parameter")
)

// SmartAccount is the slice of the smart-account service the router invokes.
// *aa.Service satisfies it.
type SmartAccount interface {
	Summary(ctx context.Context, accountID string) (*aa.AccountSummary, error)
	UserOpCallData(ctx context.Context, accountID string, to common.Address, value *big.Int, data []byte) (hexutil.Bytes, error)
	EstimateCreationGas(ctx context.Context, accountID string) (uint64, error)
	SendUserOperation(ctx context.Context, accountID string, target common.Address, value *big.Int, data []byte) (string, error)
	Notify(ctx context.Context, heading, message string) error
}

// Forwarder forwards raw JSON-RPC calls to the active chain's bundler.
// *bundler.Client satisfies it.
type Forwarder interface {
	Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// Router checks the caller's permission set, then routes the request to the
// keyring, the smart-account service or the bundler.
type Router struct {
	perms   Permissions
	keyring *keyring.Keyring
	sc      SmartAccount
	fwd     Forwarder
	chainID string
}

// New builds a router. fwd may be nil when the active chain has no bundler
// endpoint; pass-through methods then fail with the chain-support error.
func New(perms Permissions, kr *keyring.Keyring, sc SmartAccount, fwd Forwarder, chainID string) *Router {
	if perms == nil {
		perms = DefaultPermissions()
	}
	return &Router{perms: perms, keyring: kr, sc: sc, fwd: fwd, chainID: chainID}
}

// Handle authorizes and dispatches one request.
func (r *Router) Handle(ctx context.Context, origin, method string, params []json.RawMessage) (json.RawMessage, error) {
	if !r.perms.Allows(origin, method) {
		return nil, fmt.Errorf("%w: origin %q cannot call method %q", ErrOriginDenied, origin, method)
	}
	log.Router.Debug().Str("origin", origin).Str("method", method).Msg("dispatch")

	switch {
	case strings.HasPrefix(method, "keyring_"):
		return r.handleKeyring(ctx, method, params)
	case bundler.IsBundlerMethod(method):
		return r.forward(ctx, method, params)
	default:
		return r.handleSmartAccount(ctx, method, params)
	}
}

func (r *Router) handleKeyring(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case MethodListAccounts:
		return marshal(r.keyring.ListAccounts())

	case MethodGetAccount:
		var p struct {
			ID string `json:"id"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		account, err := r.keyring.GetAccount(p.ID)
		if err != nil {
			return nil, err
		}
		return marshal(account)

	case MethodCreateAccount:
		var p struct {
			Name    string          `json:"name"`
			Options json.RawMessage `json:"options"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		account, err := r.keyring.CreateAccount(ctx, p.Name, p.Options)
		if err != nil {
			return nil, err
		}
		return marshal(account)

	case MethodUpdateAccount:
		var account state.Account
		if err := firstParam(params, &account); err != nil {
			return nil, err
		}
		if err := r.keyring.UpdateAccount(ctx, account); err != nil {
			return nil, err
		}
		return null(), nil

	case MethodDeleteAccount:
		var p struct {
			ID string `json:"id"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		if err := r.keyring.DeleteAccount(ctx, p.ID); err != nil {
			return nil, err
		}
		return null(), nil

	case MethodFilterAccountChains:
		var p struct {
			ID     string   `json:"id"`
			Chains []string `json:"chains"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		return marshal(r.keyring.FilterAccountChains(p.ID, p.Chains))

	case MethodListRequests:
		return marshal(r.keyring.ListRequests())

	case MethodGetRequest:
		var p struct {
			ID string `json:"id"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		request, err := r.keyring.GetRequest(p.ID)
		if err != nil {
			return nil, err
		}
		return marshal(request)

	case MethodSubmitRequest:
		var request state.SigningRequest
		if err := firstParam(params, &request); err != nil {
			return nil, err
		}
		if err := r.keyring.SubmitRequest(ctx, request); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"pending":true}`), nil

	case MethodApproveRequest:
		var p struct {
			ID string `json:"id"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		return r.keyring.ApproveRequest(ctx, p.ID)

	case MethodRejectRequest:
		var p struct {
			ID string `json:"id"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		if err := r.keyring.RejectRequest(ctx, p.ID); err != nil {
			return nil, err
		}
		return null(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
}

func (r *Router) handleSmartAccount(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case MethodSmartAccount:
		p, err := accountParam(params)
		if err != nil {
			return nil, err
		}
		summary, err := r.sc.Summary(ctx, p.KeyringAccountID)
		if err != nil {
			return nil, err
		}
		return marshal(summary)

	case MethodGetNextRequestID:
		id, err := r.keyring.NextRequestID(ctx)
		if err != nil {
			return nil, err
		}
		return marshal(id)

	case MethodGetUserOpCallData:
		var p struct {
			KeyringAccountID string `json:"keyringAccountId"`
			To               string `json:"to"`
			Value            string `json:"value"`
			Data             string `json:"data"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		value, err := parseBig(p.Value)
		if err != nil {
			return nil, err
		}
		data, err := parseData(p.Data)
		if err != nil {
			return nil, err
		}
		callData, err := r.sc.UserOpCallData(ctx, p.KeyringAccountID, common.HexToAddress(p.To), value, data)
		if err != nil {
			return nil, err
		}
		return marshal(callData)

	case MethodEstimateCreationGas:
		p, err := accountParam(params)
		if err != nil {
			return nil, err
		}
		gas, err := r.sc.EstimateCreationGas(ctx, p.KeyringAccountID)
		if err != nil {
			return nil, err
		}
		return marshal(gas)

	case MethodSendUserOperation:
		var p struct {
			KeyringAccountID string `json:"keyringAccountId"`
			Target           string `json:"target"`
			Value            string `json:"value"`
			Data             string `json:"data"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		value, err := parseBig(p.Value)
		if err != nil {
			return nil, err
		}
		data, err := parseData(p.Data)
		if err != nil {
			return nil, err
		}
		userOpHash, err := r.sc.SendUserOperation(ctx, p.KeyringAccountID, common.HexToAddress(p.Target), value, data)
		if err != nil {
			return nil, err
		}
		return marshal(userOpHash)

	case MethodGetUserOpHashes:
		p, err := accountParam(params)
		if err != nil {
			return nil, err
		}
		hashes, err := r.keyring.UserOpHashes(p.KeyringAccountID, r.chainID)
		if err != nil {
			return nil, err
		}
		return marshal(hashes)

	case MethodGetTxHashes:
		var p struct {
			KeyringAccountID string `json:"keyringAccountId"`
			ChainID          string `json:"chainId"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		hashes, err := r.keyring.TxHashes(p.KeyringAccountID, p.ChainID)
		if err != nil {
			return nil, err
		}
		return marshal(hashes)

	case MethodStoreTxHash:
		var p struct {
			KeyringAccountID string `json:"keyringAccountId"`
			TxHash           string `json:"txHash"`
			UserOpHash       string `json:"userOpHash"`
			ChainID          string `json:"chainId"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		if err := r.keyring.StoreTxHash(ctx, p.KeyringAccountID, p.TxHash, p.UserOpHash, p.ChainID); err != nil {
			return nil, err
		}
		return null(), nil

	case MethodGetSignedTxs:
		return marshal(r.keyring.SignedTxs())

	case MethodAddBundlerURL:
		// positional: [chainId, url]
		if len(params) < 2 {
			return nil, fmt.Errorf("%w: chain id and url required", ErrMissingParam)
		}
		var chainID, url string
		if err := json.Unmarshal(params[0], &chainID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingParam, err)
		}
		if err := json.Unmarshal(params[1], &url); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingParam, err)
		}
		if err := r.keyring.AddBundlerURL(ctx, chainID, url); err != nil {
			return nil, err
		}
		return marshal(true)

	case MethodGetBundlerURLs:
		return marshal(r.keyring.BundlerURLs())

	case MethodClearActivityData:
		if err := r.keyring.ClearActivity(ctx); err != nil {
			return nil, err
		}
		return marshal(true)

	case MethodNotify:
		var p struct {
			Heading string `json:"heading"`
			Message string `json:"message"`
		}
		if err := firstParam(params, &p); err != nil {
			return nil, err
		}
		if err := r.sc.Notify(ctx, p.Heading, p.Message); err != nil {
			return nil, err
		}
		return null(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
}

func (r *Router) forward(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	if r.fwd == nil {
		return nil, fmt.Errorf("%w: %s", bundler.ErrChainNotSupported, r.chainID)
	}
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = p
	}
	return r.fwd.Send(ctx, method, args...)
}

type accountScopedParam struct {
	KeyringAccountID string `json:"keyringAccountId"`
}

func accountParam(params []json.RawMessage) (accountScopedParam, error) {
	var p accountScopedParam
	err := firstParam(params, &p)
	return p, err
}

func firstParam(params []json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: expected one object parameter", ErrMissingParam)
	}
	if err := json.Unmarshal(params[0], dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingParam, err)
	}
	return nil
}

func marshal(v interface{}) (json.RawMessage, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func null() json.RawMessage {
	return json.RawMessage(`null`)
}

// parseBig accepts a hex (0x) or decimal quantity. Empty means zero.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") {
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q", ErrMissingParam, s)
		}
		return n, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: value %q", ErrMissingParam, s)
	}
	return n, nil
}

// parseData decodes optional 0x-prefixed call data.
func parseData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: data %q", ErrMissingParam, s)
	}
	return data, nil
}
