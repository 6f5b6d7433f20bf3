package aa

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc4337/aakeyring/internal/bundler"
	"github.com/erc4337/aakeyring/internal/entropy"
	"github.com/erc4337/aakeyring/internal/keyring"
	"github.com/erc4337/aakeyring/internal/keystore"
	"github.com/erc4337/aakeyring/internal/state"
)

type fixedSource struct{ seed []byte }

func (s fixedSource) Seed(context.Context) ([]byte, error) { return s.seed, nil }

var _ entropy.Source = fixedSource{}

// fakeNode answers the fixed contract calls the service makes by selector.
type fakeNode struct {
	scAddress common.Address
	balance   *big.Int
	nonce     *big.Int
	deposit   *big.Int
	code      []byte
}

func (n *fakeNode) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return n.balance, nil
}

func (n *fakeNode) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return n.code, nil
}

func (n *fakeNode) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	switch {
	case bytes.Equal(call.Data[:4], selGetAddress):
		return padAddress(n.scAddress), nil
	case bytes.Equal(call.Data[:4], selGetNonce):
		return padBig(n.nonce), nil
	case bytes.Equal(call.Data[:4], selBalanceOf):
		return padBig(n.deposit), nil
	}
	return nil, nil
}

func (n *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 300000, nil
}

func (n *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (n *fakeNode) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// fakeBundler records submitted operations and returns canned responses.
type fakeBundler struct {
	estimate   json.RawMessage
	userOpHash string
	receipt    json.RawMessage
	submitted  []*UserOperation
	methods    []string
}

func (b *fakeBundler) Send(_ context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	b.methods = append(b.methods, method)
	switch method {
	case bundler.MethodEstimateUserOpGas:
		return b.estimate, nil
	case bundler.MethodSendUserOperation:
		if op, ok := params[0].(*UserOperation); ok {
			b.submitted = append(b.submitted, op)
		}
		return json.Marshal(b.userOpHash)
	case bundler.MethodGetUserOperationReceipt:
		return b.receipt, nil
	}
	return json.RawMessage(`null`), nil
}

func (b *fakeBundler) EntryPoint() common.Address     { return bundler.DefaultEntryPoint }
func (b *fakeBundler) AccountFactory() common.Address { return bundler.DefaultAccountFactory }
func (b *fakeBundler) ChainID() *big.Int              { return big.NewInt(1337) }

type fakePrompter struct {
	approve bool
	alerts  []string
}

func (p *fakePrompter) Confirm(context.Context, string, string) (bool, error) {
	return p.approve, nil
}

func (p *fakePrompter) Alert(_ context.Context, heading, _ string) error {
	p.alerts = append(p.alerts, heading)
	return nil
}

func newTestService(t *testing.T, node *fakeNode, b Bundler, prompter Prompter) (*Service, *keyring.Keyring, state.Account) {
	t.Helper()
	ctx := context.Background()

	keys := keystore.New(fixedSource{seed: bytes.Repeat([]byte{0x42}, 64)})
	kr, err := keyring.New(ctx, state.NewMemoryStore(), keys, nil, nil)
	require.NoError(t, err)
	account, err := kr.CreateAccount(ctx, "primary", nil)
	require.NoError(t, err)

	return NewService(kr, b, node, "0x539", prompter), kr, account
}

func TestSummary(t *testing.T) {
	node := &fakeNode{
		scAddress: common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"),
		balance:   big.NewInt(1_000_000),
		nonce:     big.NewInt(3),
		deposit:   big.NewInt(500),
	}
	svc, _, account := newTestService(t, node, &fakeBundler{}, &fakePrompter{})

	summary, err := svc.Summary(context.Background(), account.ID)
	require.NoError(t, err)

	assert.Equal(t, node.scAddress.Hex(), summary.Address)
	assert.Equal(t, "1000000", summary.Balance)
	assert.Equal(t, "3", summary.Nonce)
	assert.Equal(t, "0", summary.Index)
	assert.Equal(t, "500", summary.Deposit)
	assert.Equal(t, bundler.DefaultEntryPoint.Hex(), summary.EntryPoint)
	assert.Equal(t, bundler.DefaultAccountFactory.Hex(), summary.FactoryAddress)
	assert.Equal(t, account.Address, summary.OwnerAddress)
	assert.Contains(t, summary.InitCode, "5fbfb9cf")
}

func TestSummaryUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNode{}, &fakeBundler{}, &fakePrompter{})

	_, err := svc.Summary(context.Background(), "missing")
	assert.ErrorIs(t, err, keyring.ErrAccountNotFound)
}

func TestSendUserOperation(t *testing.T) {
	node := &fakeNode{
		scAddress: common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"),
		nonce:     big.NewInt(0),
	}
	b := &fakeBundler{
		estimate:   json.RawMessage(`{"callGasLimit":"0x30d40","verificationGasLimit":"0x186a0","preVerificationGas":"0xc350"}`),
		userOpHash: "0x1111111111111111111111111111111111111111111111111111111111111111",
	}
	svc, kr, account := newTestService(t, node, b, &fakePrompter{approve: true})
	ctx := context.Background()

	hash, err := svc.SendUserOperation(ctx, account.ID, common.HexToAddress("0xbbbb"), big.NewInt(0), nil)
	require.NoError(t, err)
	assert.Equal(t, b.userOpHash, hash)

	require.Len(t, b.submitted, 1)
	op := b.submitted[0]
	assert.Equal(t, node.scAddress, op.Sender)
	// undeployed account gets init code and the bundler's gas estimate
	assert.NotEmpty(t, op.InitCode)
	assert.Equal(t, big.NewInt(0x30d40), op.CallGasLimit.ToInt())
	assert.Equal(t, big.NewInt(0x186a0), op.VerificationGasLimit.ToInt())
	assert.NotEmpty(t, op.Signature)

	// the signature recovers to the keyring account
	digest := op.SigningDigest(bundler.DefaultEntryPoint, big.NewInt(1337))
	sig := make([]byte, len(op.Signature))
	copy(sig, op.Signature)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, account.Address, crypto.PubkeyToAddress(*pub).Hex())

	pending, err := kr.UserOpHashes(account.ID, "0x539")
	require.NoError(t, err)
	assert.Equal(t, []string{b.userOpHash}, pending)
}

func TestSendUserOperationDeployedAccountSkipsInitCode(t *testing.T) {
	node := &fakeNode{
		scAddress: common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"),
		nonce:     big.NewInt(4),
		code:      []byte{0x60, 0x80},
	}
	b := &fakeBundler{userOpHash: "0x22", estimate: json.RawMessage(`{}`)}
	svc, _, account := newTestService(t, node, b, &fakePrompter{approve: true})

	_, err := svc.SendUserOperation(context.Background(), account.ID, common.Address{}, nil, nil)
	require.NoError(t, err)

	require.Len(t, b.submitted, 1)
	assert.Empty(t, b.submitted[0].InitCode)
	assert.Equal(t, big.NewInt(4), b.submitted[0].Nonce.ToInt())
	// empty estimate falls back to defaults
	assert.Equal(t, defaultCallGas, b.submitted[0].CallGasLimit.ToInt())
}

func TestSendUserOperationDenied(t *testing.T) {
	b := &fakeBundler{}
	svc, _, account := newTestService(t, &fakeNode{}, b, &fakePrompter{approve: false})

	_, err := svc.SendUserOperation(context.Background(), account.ID, common.Address{}, nil, nil)
	assert.ErrorIs(t, err, ErrUserDenied)
	assert.Empty(t, b.submitted)
}

func TestSendUserOperationNoBundler(t *testing.T) {
	svc, _, account := newTestService(t, &fakeNode{}, nil, &fakePrompter{approve: true})

	_, err := svc.SendUserOperation(context.Background(), account.ID, common.Address{}, nil, nil)
	assert.ErrorIs(t, err, bundler.ErrChainNotSupported)
}

func TestCheckUserOpReceipts(t *testing.T) {
	node := &fakeNode{scAddress: common.HexToAddress("0xAaAa"), nonce: big.NewInt(0)}
	b := &fakeBundler{
		userOpHash: "0x33",
		estimate:   json.RawMessage(`{}`),
		receipt:    json.RawMessage(`null`),
	}
	svc, kr, account := newTestService(t, node, b, &fakePrompter{approve: true})
	ctx := context.Background()

	_, err := svc.SendUserOperation(ctx, account.ID, common.Address{}, nil, nil)
	require.NoError(t, err)

	// null receipt: still pending, no error
	require.NoError(t, svc.CheckUserOpReceipts(ctx))
	pending, err := kr.UserOpHashes(account.ID, "0x539")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// receipt available: pending hash settles into confirmed + tx hashes
	b.receipt = json.RawMessage(`{"receipt":{"transactionHash":"0xdddd"}}`)
	require.NoError(t, svc.CheckUserOpReceipts(ctx))

	pending, err = kr.UserOpHashes(account.ID, "0x539")
	require.NoError(t, err)
	assert.Empty(t, pending)
	txs, err := kr.TxHashes(account.ID, "0x539")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xdddd"}, txs)
}

func TestCheckUserOpReceiptsNoBundler(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeNode{}, nil, &fakePrompter{})
	assert.NoError(t, svc.CheckUserOpReceipts(context.Background()))
}

func TestParseQuantity(t *testing.T) {
	v, ok := parseQuantity(json.RawMessage(`"0x1e8480"`))
	require.True(t, ok)
	assert.Equal(t, big.NewInt(2_000_000), v)

	v, ok = parseQuantity(json.RawMessage(`"12345"`))
	require.True(t, ok)
	assert.Equal(t, big.NewInt(12345), v)

	v, ok = parseQuantity(json.RawMessage(`67890`))
	require.True(t, ok)
	assert.Equal(t, big.NewInt(67890), v)

	_, ok = parseQuantity(nil)
	assert.False(t, ok)
	_, ok = parseQuantity(json.RawMessage(`"0xzz"`))
	assert.False(t, ok)
}

func TestReceiptTxHash(t *testing.T) {
	_, ok := receiptTxHash(json.RawMessage(`null`))
	assert.False(t, ok)
	_, ok = receiptTxHash(json.RawMessage(`{"receipt":{}}`))
	assert.False(t, ok)

	hash, ok := receiptTxHash(json.RawMessage(`{"receipt":{"transactionHash":"0xbeef"}}`))
	require.True(t, ok)
	assert.Equal(t, "0xbeef", hash)
}
