package signing

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// typedDataOptions carries the signing version, delivered as the optional
// third request param. V1 is the default, matching the legacy typed-array
// format of the original EIP-712 draft.
type typedDataOptions struct {
	Version string `json:"version"`
}

// signTypedData signs structured typed data. V3/V4 use the EIP-712 struct
// hash; V1 (and V2, which never shipped as a distinct format) use the legacy
// typed-array hash.
func (s *Signer) signTypedData(params []json.RawMessage) (json.RawMessage, error) {
	if len(params) < 2 {
		return nil, fmt.Errorf("expected [from, data] params, got %d", len(params))
	}
	var from string
	if err := json.Unmarshal(params[0], &from); err != nil {
		return nil, fmt.Errorf("decode from address: %w", err)
	}

	opts := typedDataOptions{Version: "V1"}
	if len(params) > 2 && len(params[2]) > 0 && string(params[2]) != "null" {
		if err := json.Unmarshal(params[2], &opts); err != nil {
			return nil, fmt.Errorf("decode typed data options: %w", err)
		}
		if opts.Version == "" {
			opts.Version = "V1"
		}
	}

	key, err := s.keys.KeyByAddress(from)
	if err != nil {
		return nil, err
	}

	var hash []byte
	switch strings.ToUpper(opts.Version) {
	case "V1", "V2":
		var fields []typedField
		if err := json.Unmarshal(params[1], &fields); err != nil {
			return nil, fmt.Errorf("decode typed data: %w", err)
		}
		hash, err = legacyTypedDataHash(fields)
		if err != nil {
			return nil, err
		}
	case "V3", "V4":
		var data apitypes.TypedData
		if err := json.Unmarshal(params[1], &data); err != nil {
			return nil, fmt.Errorf("decode typed data: %w", err)
		}
		hash, _, err = apitypes.TypedDataAndHash(data)
		if err != nil {
			return nil, fmt.Errorf("hash typed data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown typed data version %q", opts.Version)
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[64] += 27
	return json.Marshal(hexutil.Encode(sig))
}

// typedField is one entry of the legacy (V1) typed-data array.
type typedField struct {
	Type  string      `json:"type"`
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// legacyTypedDataHash computes keccak256(keccak256(schema) || keccak256(values))
// where schema packs "type name" strings and values pack each value per its
// solidity type.
func legacyTypedDataHash(fields []typedField) ([]byte, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("typed data must not be empty")
	}

	var schema, values []byte
	for _, f := range fields {
		schema = append(schema, []byte(f.Type+" "+f.Name)...)
		packed, err := packSolidityValue(f.Type, f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		values = append(values, packed...)
	}

	return crypto.Keccak256(crypto.Keccak256(schema), crypto.Keccak256(values)), nil
}

// packSolidityValue tightly packs a value per abi.encodePacked semantics for
// the subset of types the legacy format supports.
func packSolidityValue(typ string, value interface{}) ([]byte, error) {
	switch {
	case typ == "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string value for %s", typ)
		}
		return []byte(s), nil

	case typ == "address":
		s, ok := value.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("expected address value for %s", typ)
		}
		return common.HexToAddress(s).Bytes(), nil

	case typ == "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool value for %s", typ)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case typ == "bytes":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string value for %s", typ)
		}
		return hexutil.Decode(s)

	case strings.HasPrefix(typ, "bytes"):
		size, err := strconv.Atoi(typ[len("bytes"):])
		if err != nil || size < 1 || size > 32 {
			return nil, fmt.Errorf("invalid type %s", typ)
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string value for %s", typ)
		}
		raw, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(raw) > size {
			return nil, fmt.Errorf("value too long for %s", typ)
		}
		padded := make([]byte, size)
		copy(padded, raw)
		return padded, nil

	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		bits, err := intBits(typ)
		if err != nil {
			return nil, err
		}
		n, err := toBigInt(value)
		if err != nil {
			return nil, fmt.Errorf("expected integer value for %s: %w", typ, err)
		}
		buf := make([]byte, bits/8)
		return n.FillBytes(buf), nil

	default:
		return nil, fmt.Errorf("unsupported type %s", typ)
	}
}

func intBits(typ string) (int, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(typ, "uint"), "int")
	if digits == "" {
		return 256, nil
	}
	bits, err := strconv.Atoi(digits)
	if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
		return 0, fmt.Errorf("invalid type %s", typ)
	}
	return bits, nil
}

func toBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case float64:
		return big.NewInt(int64(v)), nil
	case string:
		n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), numericBase(v))
		if !ok {
			return nil, fmt.Errorf("cannot parse %q", v)
		}
		return n, nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("cannot parse %q", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported numeric value %T", value)
	}
}

func numericBase(s string) int {
	if strings.HasPrefix(s, "0x") {
		return 16
	}
	return 10
}
