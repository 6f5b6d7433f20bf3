// Package signing dispatches approved signing requests to the matching
// cryptographic routine.
package signing

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMethodNotSupported is returned for signing methods outside the
	// dispatch table.
	ErrMethodNotSupported = errors.New("method not supported")

	// ErrVerificationFailed is returned when the address recovered from a
	// produced signature does not match the requested from address.
	ErrVerificationFailed = errors.New("signature verification failed")
)

// Signing method names handled by the dispatcher.
const (
	MethodPersonalSign    = "personal_sign"
	MethodSendTransaction = "eth_sendTransaction"
	MethodSign            = "eth_sign"
	MethodSignTransaction = "eth_signTransaction"
	MethodSignUserOpTx    = "aa_signTransaction"
	MethodSignTypedData   = "eth_signTypedData"
	MethodSignTypedDataV1 = "eth_signTypedData_v1"
	MethodSignTypedDataV2 = "eth_signTypedData_v2"
	MethodSignTypedDataV3 = "eth_signTypedData_v3"
	MethodSignTypedDataV4 = "eth_signTypedData_v4"
)

// SupportedMethods is the fixed method set every keyring account accepts.
func SupportedMethods() []string {
	return []string{
		MethodSendTransaction,
		MethodSign,
		MethodSignTransaction,
		MethodSignTypedDataV1,
		MethodSignTypedDataV2,
		MethodSignTypedDataV3,
		MethodSignTypedDataV4,
		MethodSignTypedData,
		MethodPersonalSign,
	}
}

// KeyResolver resolves the private key for a from address. The keyring's
// wallet table is the only implementation outside tests.
type KeyResolver interface {
	KeyByAddress(address string) (*ecdsa.PrivateKey, error)
}

// Signer turns (from, method, params) into a signature or serialized
// transaction. It holds no state of its own; all state changes happen in the
// keyring.
type Signer struct {
	keys KeyResolver
}

// New creates a Signer backed by the given key resolver.
func New(keys KeyResolver) *Signer {
	return &Signer{keys: keys}
}

// Sign dispatches the method to the matching routine and returns the result
// as JSON.
func (s *Signer) Sign(method string, params []json.RawMessage) (json.RawMessage, error) {
	switch method {
	case MethodPersonalSign, MethodSendTransaction:
		from, message, err := twoStrings(params)
		if err != nil {
			return nil, err
		}
		return s.signPersonalMessage(from, message)

	case MethodSign:
		from, data, err := twoStrings(params)
		if err != nil {
			return nil, err
		}
		return s.signRawMessage(from, data)

	case MethodSignTransaction, MethodSignUserOpTx:
		return s.signTransaction(params)

	case MethodSignTypedData, MethodSignTypedDataV1, MethodSignTypedDataV2,
		MethodSignTypedDataV3, MethodSignTypedDataV4:
		return s.signTypedData(params)

	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodNotSupported, method)
	}
}

// signPersonalMessage signs an EIP-191 personal message and verifies the
// produced signature recovers to the from address before returning it.
func (s *Signer) signPersonalMessage(from, message string) (json.RawMessage, error) {
	key, err := s.keys.KeyByAddress(from)
	if err != nil {
		return nil, err
	}

	data, err := messageBytes(message)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	hash := personalHash(data)
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign personal message: %w", err)
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("%w for account %q: %v", ErrVerificationFailed, from, err)
	}
	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, from) {
		return nil, fmt.Errorf("%w for account %q (got %q)", ErrVerificationFailed, from, recovered)
	}

	sig[64] += 27
	return json.Marshal(hexutil.Encode(sig))
}

// signRawMessage signs a 32-byte hash directly, producing the concatenated
// r||s||v signature.
func (s *Signer) signRawMessage(from, data string) (json.RawMessage, error) {
	key, err := s.keys.KeyByAddress(from)
	if err != nil {
		return nil, err
	}

	hash, err := hexutil.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if len(hash) != 32 {
		return nil, fmt.Errorf("eth_sign data must be a 32-byte hash, got %d bytes", len(hash))
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return json.Marshal(hexutil.Encode(sig))
}

// personalHash computes the EIP-191 hash of a message.
func personalHash(data []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(data))
	return crypto.Keccak256([]byte(prefix), data)
}

// messageBytes decodes a message param. Messages arrive hex-encoded; anything
// else is rejected rather than guessed at.
func messageBytes(message string) ([]byte, error) {
	if !strings.HasPrefix(message, "0x") {
		return nil, fmt.Errorf("message must be 0x-prefixed hex, got %q", message)
	}
	return hexutil.Decode(message)
}

// twoStrings unpacks the common [from, payload] param shape.
func twoStrings(params []json.RawMessage) (string, string, error) {
	if len(params) < 2 {
		return "", "", fmt.Errorf("expected [from, data] params, got %d", len(params))
	}
	var from, payload string
	if err := json.Unmarshal(params[0], &from); err != nil {
		return "", "", fmt.Errorf("decode from address: %w", err)
	}
	if err := json.Unmarshal(params[1], &payload); err != nil {
		return "", "", fmt.Errorf("decode payload: %w", err)
	}
	return from, payload, nil
}
