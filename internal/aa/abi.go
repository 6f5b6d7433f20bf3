// Package aa implements the smart-contract-account side of the system:
// counterfactual address and init-code computation, user-operation
// construction and submission, and activity bookkeeping.
package aa

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Method selectors for the handful of fixed contract calls this package
// makes. The payloads themselves stay opaque; only these entry points are
// encoded locally.
var (
	selCreateAccount = selector("createAccount(address,uint256)")
	selGetAddress    = selector("getAddress(address,uint256)")
	selExecute       = selector("execute(address,uint256,bytes)")
	selBalanceOf     = selector("balanceOf(address)")
	selGetNonce      = selector("getNonce(address,uint192)")
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

func padAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func padBig(n *big.Int) []byte {
	if n == nil {
		n = new(big.Int)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

// padBytes right-pads data to a multiple of 32 bytes.
func padBytes(data []byte) []byte {
	if rem := len(data) % 32; rem != 0 {
		return append(data, make([]byte, 32-rem)...)
	}
	return data
}

// initCode builds the factory ++ createAccount(owner, index) calldata that
// deploys the smart account on first use.
func initCode(factory, owner common.Address, index *big.Int) []byte {
	code := make([]byte, 0, 20+4+64)
	code = append(code, factory.Bytes()...)
	code = append(code, selCreateAccount...)
	code = append(code, padAddress(owner)...)
	code = append(code, padBig(index)...)
	return code
}

// executeCallData builds the execute(dest, value, func) calldata the smart
// account runs for a user operation.
func executeCallData(dest common.Address, value *big.Int, data []byte) []byte {
	out := make([]byte, 0, 4+96+len(data)+32)
	out = append(out, selExecute...)
	out = append(out, padAddress(dest)...)
	out = append(out, padBig(value)...)
	out = append(out, padBig(big.NewInt(0x60))...) // offset of the bytes arg
	out = append(out, padBig(big.NewInt(int64(len(data))))...)
	out = append(out, padBytes(data)...)
	return out
}

// getAddressCallData builds the factory getAddress(owner, index) call.
func getAddressCallData(owner common.Address, index *big.Int) []byte {
	out := make([]byte, 0, 4+64)
	out = append(out, selGetAddress...)
	out = append(out, padAddress(owner)...)
	out = append(out, padBig(index)...)
	return out
}

// balanceOfCallData builds the entry-point balanceOf(account) call used for
// the deposit query.
func balanceOfCallData(account common.Address) []byte {
	return append(append([]byte{}, selBalanceOf...), padAddress(account)...)
}

// getNonceCallData builds the entry-point getNonce(sender, 0) call.
func getNonceCallData(sender common.Address) []byte {
	out := make([]byte, 0, 4+64)
	out = append(out, selGetNonce...)
	out = append(out, padAddress(sender)...)
	out = append(out, padBig(new(big.Int))...)
	return out
}
