package signing

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// txParams mirrors the transaction object delivered with eth_signTransaction
// requests. Numeric fields arrive as hex strings; chainId may also arrive as
// a decimal string and is normalized before use.
type txParams struct {
	ChainID              string          `json:"chainId"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	To                   *common.Address `json:"to"`
	GasLimit             *hexutil.Uint64 `json:"gasLimit"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Data                 hexutil.Bytes   `json:"data"`
}

// signTransaction signs a structured transaction. Presence of the fee-market
// fields selects a dynamic-fee (post-London) transaction; absence selects a
// legacy one.
func (s *Signer) signTransaction(params []json.RawMessage) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("expected [from, tx] params, got %d", len(params))
	}
	var from string
	if err := json.Unmarshal(params[0], &from); err != nil {
		return nil, fmt.Errorf("decode from address: %w", err)
	}
	var p txParams
	if err := json.Unmarshal(params[1], &p); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	key, err := s.keys.KeyByAddress(from)
	if err != nil {
		return nil, err
	}

	chainHex, err := NormalizeChainID(p.ChainID)
	if err != nil {
		return nil, err
	}
	chainID, err := hexutil.DecodeBig(chainHex)
	if err != nil {
		return nil, fmt.Errorf("decode chain id %q: %w", chainHex, err)
	}

	var nonce, gas uint64
	if p.Nonce != nil {
		nonce = uint64(*p.Nonce)
	}
	if p.GasLimit != nil {
		gas = uint64(*p.GasLimit)
	}

	var tx *types.Transaction
	var txSigner types.Signer
	if p.MaxFeePerGas != nil || p.MaxPriorityFeePerGas != nil {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: bigOrZero(p.MaxPriorityFeePerGas),
			GasFeeCap: bigOrZero(p.MaxFeePerGas),
			Gas:       gas,
			To:        p.To,
			Value:     bigOrZero(p.Value),
			Data:      p.Data,
		})
		txSigner = types.NewLondonSigner(chainID)
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: bigOrZero(p.GasPrice),
			Gas:      gas,
			To:       p.To,
			Value:    bigOrZero(p.Value),
			Data:     p.Data,
		})
		txSigner = types.NewEIP155Signer(chainID)
	}

	signedTx, err := types.SignTx(tx, txSigner, key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	// The transaction's JSON form carries the signature fields and the
	// transaction-type tag.
	raw, err := json.Marshal(signedTx)
	if err != nil {
		return nil, fmt.Errorf("serialize signed transaction: %w", err)
	}
	return raw, nil
}

// NormalizeChainID returns the chain id as a hex-prefixed string, accepting
// decimal input ("1337" becomes "0x539").
func NormalizeChainID(chainID string) (string, error) {
	if chainID == "" {
		return "", fmt.Errorf("chain id is required")
	}
	if strings.HasPrefix(chainID, "0x") {
		return chainID, nil
	}
	n, err := strconv.ParseUint(chainID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chain id %q: %w", chainID, err)
	}
	return "0x" + strconv.FormatUint(n, 16), nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}
