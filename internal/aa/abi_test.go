package aa

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCodeLayout(t *testing.T) {
	factory := common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	code := initCode(factory, owner, big.NewInt(0))
	require.Len(t, code, 20+4+64)

	assert.Equal(t, factory.Bytes(), code[:20])
	assert.Equal(t, "0x5fbfb9cf", hexutil.Encode(code[20:24]))
	assert.Equal(t, padAddress(owner), code[24:56])
	assert.Equal(t, make([]byte, 32), code[56:88])
}

func TestExecuteCallDataLayout(t *testing.T) {
	dest := common.HexToAddress("0x2222222222222222222222222222222222222222")
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	data := executeCallData(dest, big.NewInt(7), payload)

	assert.Equal(t, "0xb61d27f6", hexutil.Encode(data[:4]))
	assert.Equal(t, padAddress(dest), data[4:36])
	assert.Equal(t, big.NewInt(7), new(big.Int).SetBytes(data[36:68]))
	// bytes head points past the three static words
	assert.Equal(t, big.NewInt(0x60), new(big.Int).SetBytes(data[68:100]))
	assert.Equal(t, big.NewInt(4), new(big.Int).SetBytes(data[100:132]))
	assert.Equal(t, payload, data[132:136])
	// tail is padded to a word boundary
	assert.Len(t, data, 132+32)
}

func TestGetAddressCallData(t *testing.T) {
	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data := getAddressCallData(owner, big.NewInt(5))

	require.Len(t, data, 4+64)
	assert.Equal(t, "0x8cb84e18", hexutil.Encode(data[:4]))
	assert.Equal(t, big.NewInt(5), new(big.Int).SetBytes(data[36:]))
}

func TestPadBytes(t *testing.T) {
	assert.Len(t, padBytes(make([]byte, 1)), 32)
	assert.Len(t, padBytes(make([]byte, 32)), 32)
	assert.Len(t, padBytes(make([]byte, 33)), 64)
	assert.Empty(t, padBytes(nil))
}

func TestUserOpHashDeterministic(t *testing.T) {
	entryPoint := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	chainID := big.NewInt(1337)

	op := &UserOperation{
		Sender:               common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Nonce:                newHexBig(big.NewInt(1)),
		InitCode:             hexutil.Bytes{},
		CallData:             hexutil.Bytes{0x01, 0x02},
		CallGasLimit:         newHexBig(big.NewInt(200000)),
		VerificationGasLimit: newHexBig(big.NewInt(1500000)),
		PreVerificationGas:   newHexBig(big.NewInt(50000)),
		MaxFeePerGas:         newHexBig(big.NewInt(1000000000)),
		MaxPriorityFeePerGas: newHexBig(big.NewInt(1000000000)),
		PaymasterAndData:     hexutil.Bytes{},
		Signature:            hexutil.Bytes{},
	}

	first := op.Hash(entryPoint, chainID)
	second := op.Hash(entryPoint, chainID)
	assert.Equal(t, first, second)

	// any bound parameter changes the hash
	assert.NotEqual(t, first, op.Hash(entryPoint, big.NewInt(1)))
	other := *op
	other.Nonce = newHexBig(big.NewInt(2))
	assert.NotEqual(t, first, other.Hash(entryPoint, chainID))
}

func TestSigningDigestUsesPersonalPrefix(t *testing.T) {
	entryPoint := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	op := &UserOperation{
		Sender:           common.HexToAddress("0x4444444444444444444444444444444444444444"),
		InitCode:         hexutil.Bytes{},
		CallData:         hexutil.Bytes{},
		PaymasterAndData: hexutil.Bytes{},
		Signature:        hexutil.Bytes{},
	}

	digest := op.SigningDigest(entryPoint, big.NewInt(1337))
	require.Len(t, digest, 32)
	assert.NotEqual(t, op.Hash(entryPoint, big.NewInt(1337)).Bytes(), digest)
}
