package aa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/erc4337/aakeyring/internal/bundler"
	"github.com/erc4337/aakeyring/internal/keyring"
	"github.com/erc4337/aakeyring/internal/log"
)

// ErrUserDenied is returned when the user refuses the confirmation dialog.
var ErrUserDenied = errors.New("user denied user operation")

// Fallback gas values used when the bundler's estimate omits a field.
var (
	defaultCallGas         = big.NewInt(200_000)
	defaultVerificationGas = big.NewInt(1_500_000)
	defaultPreVerification = big.NewInt(50_000)
)

// Bundler is the slice of the bundler client the service uses.
type Bundler interface {
	Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	EntryPoint() common.Address
	AccountFactory() common.Address
	ChainID() *big.Int
}

// Node is the read-only execution-node surface the service queries for
// balances, nonces, code and gas. *ethclient.Client satisfies it.
type Node interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Service implements the smart-account operations: counterfactual address
// and init-code computation, the sc_account summary, user-operation
// submission, and the receipt sweep.
type Service struct {
	keyring  *keyring.Keyring
	bundler  Bundler
	node     Node
	chainID  string // hex, e.g. "0x539"
	prompter Prompter
}

// NewService wires the service. bundler may be nil when the active chain has
// no configured endpoint; operations that need it then fail, and the receipt
// sweep becomes a no-op.
func NewService(kr *keyring.Keyring, b Bundler, node Node, chainID string, prompter Prompter) *Service {
	if prompter == nil {
		prompter = DenyPrompter{}
	}
	return &Service{keyring: kr, bundler: b, node: node, chainID: chainID, prompter: prompter}
}

// AccountSummary is the sc_account result.
type AccountSummary struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	Nonce          string `json:"nonce"`
	Index          string `json:"index"`
	EntryPoint     string `json:"entryPoint"`
	FactoryAddress string `json:"factoryAddress"`
	Deposit        string `json:"deposit"`
	OwnerAddress   string `json:"ownerAddress"`
	InitCode       string `json:"initCode"`
}

// Summary assembles the smart-account view for a keyring account: the
// counterfactual address plus its balance, entry-point nonce and deposit.
func (s *Service) Summary(ctx context.Context, accountID string) (*AccountSummary, error) {
	account, err := s.keyring.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	owner := common.HexToAddress(account.Address)

	scAddress, err := s.SmartAccountAddress(ctx, owner)
	if err != nil {
		return nil, err
	}

	balance, err := s.node.BalanceAt(ctx, scAddress, nil)
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	nonce, err := s.entryPointNonce(ctx, scAddress)
	if err != nil {
		return nil, err
	}
	deposit, err := s.deposit(ctx, scAddress)
	if err != nil {
		return nil, err
	}

	return &AccountSummary{
		Address:        scAddress.Hex(),
		Balance:        balance.String(),
		Nonce:          nonce.String(),
		Index:          "0",
		EntryPoint:     s.entryPoint().Hex(),
		FactoryAddress: s.factory().Hex(),
		Deposit:        deposit.String(),
		OwnerAddress:   owner.Hex(),
		InitCode:       hexutil.Encode(initCode(s.factory(), owner, big.NewInt(0))),
	}, nil
}

// SmartAccountAddress resolves the counterfactual smart-account address for
// an owner via the factory's getAddress view.
func (s *Service) SmartAccountAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	factory := s.factory()
	result, err := s.node.CallContract(ctx, ethereum.CallMsg{
		To:   &factory,
		Data: getAddressCallData(owner, big.NewInt(0)),
	}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress: %w", err)
	}
	if len(result) < 32 {
		return common.Address{}, fmt.Errorf("factory getAddress returned %d bytes", len(result))
	}
	return common.BytesToAddress(result[12:32]), nil
}

// UserOpCallData builds the execute calldata for a call from a keyring
// account's smart account.
func (s *Service) UserOpCallData(ctx context.Context, accountID string, to common.Address, value *big.Int, data []byte) (hexutil.Bytes, error) {
	if _, err := s.keyring.GetAccount(accountID); err != nil {
		return nil, err
	}
	return executeCallData(to, value, data), nil
}

// InitCodeFor returns the init code for a keyring account's smart account.
func (s *Service) InitCodeFor(accountID string) (hexutil.Bytes, error) {
	account, err := s.keyring.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return initCode(s.factory(), common.HexToAddress(account.Address), big.NewInt(0)), nil
}

// EstimateCreationGas estimates the gas for deploying the account through
// its factory.
func (s *Service) EstimateCreationGas(ctx context.Context, accountID string) (uint64, error) {
	code, err := s.InitCodeFor(accountID)
	if err != nil {
		return 0, err
	}
	factory := common.BytesToAddress(code[:20])
	return s.node.EstimateGas(ctx, ethereum.CallMsg{To: &factory, Data: code[20:]})
}

// SendUserOperation builds, confirms, signs and submits a user operation for
// the account's smart account. Returns the bundler-assigned user-operation
// hash, which is recorded as pending activity.
func (s *Service) SendUserOperation(ctx context.Context, accountID string, target common.Address, value *big.Int, data []byte) (string, error) {
	if s.bundler == nil {
		return "", fmt.Errorf("%w: %s", bundler.ErrChainNotSupported, s.chainID)
	}
	account, err := s.keyring.GetAccount(accountID)
	if err != nil {
		return "", err
	}
	owner := common.HexToAddress(account.Address)

	sender, err := s.SmartAccountAddress(ctx, owner)
	if err != nil {
		return "", err
	}

	ok, err := s.prompter.Confirm(ctx,
		"Send user operation?",
		fmt.Sprintf("account %s\ntarget %s\ncalldata %s", sender.Hex(), target.Hex(), hexutil.Encode(data)))
	if err != nil {
		return "", fmt.Errorf("confirmation dialog: %w", err)
	}
	if !ok {
		return "", ErrUserDenied
	}

	op, err := s.buildUserOp(ctx, sender, owner, target, value, data)
	if err != nil {
		return "", err
	}

	digest := op.SigningDigest(s.entryPoint(), s.bundler.ChainID())
	sig, err := s.keyring.SignDigest(accountID, digest)
	if err != nil {
		return "", err
	}
	op.Signature = sig

	result, err := s.bundler.Send(ctx, bundler.MethodSendUserOperation, op, s.entryPoint().Hex())
	if err != nil {
		return "", err
	}
	var userOpHash string
	if err := json.Unmarshal(result, &userOpHash); err != nil {
		return "", fmt.Errorf("decode user operation hash: %w", err)
	}

	if err := s.keyring.RecordUserOpHash(ctx, accountID, s.chainID, userOpHash); err != nil {
		return "", err
	}
	log.AA.Info().Str("account", accountID).Str("userOpHash", userOpHash).Msg("user operation submitted")
	return userOpHash, nil
}

// CheckUserOpReceipts sweeps pending user-operation hashes and settles the
// ones that have a receipt. A missing receipt is not an error; the hash is
// retried on the next trigger. An unsupported active chain makes the whole
// sweep a silent no-op.
func (s *Service) CheckUserOpReceipts(ctx context.Context) error {
	if s.bundler == nil {
		return nil
	}

	for accountID, hashes := range s.keyring.PendingUserOps(s.chainID) {
		for _, userOpHash := range hashes {
			result, err := s.bundler.Send(ctx, bundler.MethodGetUserOperationReceipt, userOpHash)
			if err != nil {
				log.AA.Warn().Str("userOpHash", userOpHash).Err(err).Msg("receipt lookup failed")
				continue
			}
			txHash, ok := receiptTxHash(result)
			if !ok {
				continue // not yet included
			}
			if err := s.keyring.StoreTxHash(ctx, accountID, txHash, userOpHash, s.chainID); err != nil {
				return err
			}
			log.AA.Info().Str("userOpHash", userOpHash).Str("txHash", txHash).Msg("user operation confirmed")
		}
	}
	return nil
}

// Notify shows an informational dialog through the host.
func (s *Service) Notify(ctx context.Context, heading, message string) error {
	return s.prompter.Alert(ctx, heading, message)
}

// buildUserOp assembles an unsigned user operation with nonce, init code,
// fees and bundler gas estimates filled in.
func (s *Service) buildUserOp(ctx context.Context, sender, owner, target common.Address, value *big.Int, data []byte) (*UserOperation, error) {
	nonce, err := s.entryPointNonce(ctx, sender)
	if err != nil {
		return nil, err
	}

	var code hexutil.Bytes
	deployed, err := s.node.CodeAt(ctx, sender, nil)
	if err != nil {
		return nil, fmt.Errorf("query account code: %w", err)
	}
	if len(deployed) == 0 {
		code = initCode(s.factory(), owner, big.NewInt(0))
	}

	gasPrice, err := s.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	tipCap, err := s.node.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = gasPrice
	}

	op := &UserOperation{
		Sender:               sender,
		Nonce:                newHexBig(nonce),
		InitCode:             code,
		CallData:             executeCallData(target, value, data),
		CallGasLimit:         newHexBig(defaultCallGas),
		VerificationGasLimit: newHexBig(defaultVerificationGas),
		PreVerificationGas:   newHexBig(defaultPreVerification),
		MaxFeePerGas:         newHexBig(gasPrice),
		MaxPriorityFeePerGas: newHexBig(tipCap),
		PaymasterAndData:     hexutil.Bytes{},
		Signature:            hexutil.Bytes{},
	}

	if estimate, err := s.bundler.Send(ctx, bundler.MethodEstimateUserOpGas, op, s.entryPoint().Hex()); err == nil {
		applyGasEstimate(op, estimate)
	} else {
		log.AA.Warn().Err(err).Msg("gas estimation failed, using defaults")
	}
	return op, nil
}

// entryPointNonce reads the account's nonce from the entry point.
func (s *Service) entryPointNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	entryPoint := s.entryPoint()
	result, err := s.node.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: getNonceCallData(sender),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("entry point getNonce: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// deposit reads the account's entry-point deposit.
func (s *Service) deposit(ctx context.Context, account common.Address) (*big.Int, error) {
	entryPoint := s.entryPoint()
	result, err := s.node.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: balanceOfCallData(account),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("entry point balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

func (s *Service) entryPoint() common.Address {
	if s.bundler != nil {
		return s.bundler.EntryPoint()
	}
	return bundler.DefaultEntryPoint
}

func (s *Service) factory() common.Address {
	if s.bundler != nil {
		return s.bundler.AccountFactory()
	}
	return bundler.DefaultAccountFactory
}

// applyGasEstimate overlays the bundler's gas estimate onto the operation,
// tolerating both verificationGasLimit and the older verificationGas field
// name.
func applyGasEstimate(op *UserOperation, estimate json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(estimate, &fields); err != nil {
		return
	}
	if v, ok := parseQuantity(fields["callGasLimit"]); ok {
		op.CallGasLimit = newHexBig(v)
	}
	if v, ok := parseQuantity(fields["verificationGasLimit"]); ok {
		op.VerificationGasLimit = newHexBig(v)
	} else if v, ok := parseQuantity(fields["verificationGas"]); ok {
		op.VerificationGasLimit = newHexBig(v)
	}
	if v, ok := parseQuantity(fields["preVerificationGas"]); ok {
		op.PreVerificationGas = newHexBig(v)
	}
}

// parseQuantity decodes a JSON-RPC quantity that may arrive as a hex string
// or a bare number.
func parseQuantity(raw json.RawMessage) (*big.Int, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if strings.HasPrefix(asString, "0x") {
			if n, err := hexutil.DecodeBig(asString); err == nil {
				return n, true
			}
			return nil, false
		}
		if n, ok := new(big.Int).SetString(asString, 10); ok {
			return n, true
		}
		return nil, false
	}
	var asNumber uint64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return new(big.Int).SetUint64(asNumber), true
	}
	return nil, false
}

// receiptTxHash extracts the bundle transaction hash from a receipt result.
// Returns false when the receipt is null (user operation not yet included).
func receiptTxHash(result json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	var receipt struct {
		Receipt struct {
			TransactionHash string `json:"transactionHash"`
		} `json:"receipt"`
	}
	if err := json.Unmarshal(result, &receipt); err != nil {
		return "", false
	}
	if receipt.Receipt.TransactionHash == "" {
		return "", false
	}
	return receipt.Receipt.TransactionHash, true
}
