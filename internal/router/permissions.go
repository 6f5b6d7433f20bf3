// Package router authorizes inbound requests by caller origin and dispatches
// them to the keyring, the smart-account service or the bundler client.
package router

import (
	"github.com/erc4337/aakeyring/internal/bundler"
)

// Keyring-facing method names.
const (
	MethodListAccounts        = "keyring_listAccounts"
	MethodGetAccount          = "keyring_getAccount"
	MethodCreateAccount       = "keyring_createAccount"
	MethodUpdateAccount       = "keyring_updateAccount"
	MethodDeleteAccount       = "keyring_deleteAccount"
	MethodFilterAccountChains = "keyring_filterAccountChains"
	MethodListRequests        = "keyring_listRequests"
	MethodGetRequest          = "keyring_getRequest"
	MethodSubmitRequest       = "keyring_submitRequest"
	MethodApproveRequest      = "keyring_approveRequest"
	MethodRejectRequest       = "keyring_rejectRequest"
)

// Smart-account methods handled locally rather than forwarded.
const (
	MethodSmartAccount        = "sc_account"
	MethodGetNextRequestID    = "aa_getNextRequestId"
	MethodGetUserOpCallData   = "aa_getUserOpCallData"
	MethodEstimateCreationGas = "aa_estimateCreationGas"
	MethodSendUserOperation   = "aa_sendUserOperation"
	MethodGetUserOpHashes     = "aa_getUserOpHashes"
	MethodGetTxHashes         = "aa_getTxHashes"
	MethodStoreTxHash         = "aa_storeTxHash"
	MethodGetSignedTxs        = "aa_getSignedTxs"
	MethodAddBundlerURL       = "aa_addBundlerUrl"
	MethodGetBundlerURLs      = "aa_getBundlerUrls"
	MethodClearActivityData   = "aa_clearActivityData"
	MethodNotify              = "aa_notify"
)

// DefaultDappOrigin is the companion site allowed to call everything.
const DefaultDappOrigin = "http://localhost:8000"

// MetamaskOrigin identifies the wallet host, which drives the account and
// request lifecycle but never talks to the bundler directly.
const MetamaskOrigin = "metamask"

// Permissions maps a caller origin to the set of methods it may invoke.
type Permissions map[string]map[string]struct{}

func keyringMethods() []string {
	return []string{
		MethodListAccounts,
		MethodGetAccount,
		MethodCreateAccount,
		MethodUpdateAccount,
		MethodDeleteAccount,
		MethodFilterAccountChains,
		MethodListRequests,
		MethodGetRequest,
		MethodSubmitRequest,
		MethodApproveRequest,
		MethodRejectRequest,
	}
}

func smartAccountMethods() []string {
	return []string{
		MethodSmartAccount,
		MethodGetNextRequestID,
		MethodGetUserOpCallData,
		MethodEstimateCreationGas,
		MethodSendUserOperation,
		MethodGetUserOpHashes,
		MethodGetTxHashes,
		MethodStoreTxHash,
		MethodGetSignedTxs,
		MethodAddBundlerURL,
		MethodGetBundlerURLs,
		MethodClearActivityData,
		MethodNotify,
	}
}

// DefaultPermissions grants the wallet host the keyring lifecycle and the
// companion dapp the full method surface including bundler pass-through.
func DefaultPermissions() Permissions {
	p := Permissions{}
	p.Grant(MetamaskOrigin, keyringMethods()...)
	p.Grant(DefaultDappOrigin, keyringMethods()...)
	p.Grant(DefaultDappOrigin, smartAccountMethods()...)
	p.Grant(DefaultDappOrigin, bundler.Methods()...)
	return p
}

// NewPermissions builds the permission table from a config-shaped
// origin-to-method-list mapping, layered over the defaults.
func NewPermissions(extra map[string][]string) Permissions {
	p := DefaultPermissions()
	for origin, methods := range extra {
		p.Grant(origin, methods...)
	}
	return p
}

// Grant adds methods to an origin's allowed set.
func (p Permissions) Grant(origin string, methods ...string) {
	set, ok := p[origin]
	if !ok {
		set = map[string]struct{}{}
		p[origin] = set
	}
	for _, m := range methods {
		set[m] = struct{}{}
	}
}

// Allows reports whether the origin may invoke the method.
func (p Permissions) Allows(origin, method string) bool {
	set, ok := p[origin]
	if !ok {
		return false
	}
	_, ok = set[method]
	return ok
}
