package aa

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the ERC-4337 (v0.6) payload submitted to a bundler in
// place of a transaction.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// Hash computes the canonical user-operation hash bound to the entry point
// and chain id, as defined by the EntryPoint contract.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) common.Hash {
	packed := make([]byte, 0, 10*32)
	packed = append(packed, padAddress(op.Sender)...)
	packed = append(packed, padBig(bigValue(op.Nonce))...)
	packed = append(packed, crypto.Keccak256(op.InitCode)...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, padBig(bigValue(op.CallGasLimit))...)
	packed = append(packed, padBig(bigValue(op.VerificationGasLimit))...)
	packed = append(packed, padBig(bigValue(op.PreVerificationGas))...)
	packed = append(packed, padBig(bigValue(op.MaxFeePerGas))...)
	packed = append(packed, padBig(bigValue(op.MaxPriorityFeePerGas))...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData)...)

	inner := crypto.Keccak256(packed)

	outer := make([]byte, 0, 3*32)
	outer = append(outer, inner...)
	outer = append(outer, padAddress(entryPoint)...)
	outer = append(outer, padBig(chainID)...)
	return crypto.Keccak256Hash(outer)
}

// SigningDigest returns the EIP-191 digest the smart-account owner signs.
// SimpleAccount validates signatures against the eth-signed-message hash of
// the user-operation hash.
func (op *UserOperation) SigningDigest(entryPoint common.Address, chainID *big.Int) []byte {
	hash := op.Hash(entryPoint, chainID)
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(hash))
	return crypto.Keccak256([]byte(prefix), hash.Bytes())
}

func bigValue(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}

func newHexBig(n *big.Int) *hexutil.Big {
	if n == nil {
		n = new(big.Int)
	}
	return (*hexutil.Big)(new(big.Int).Set(n))
}
