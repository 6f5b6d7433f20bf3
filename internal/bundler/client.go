// Package bundler provides the JSON-RPC client for an ERC-4337 bundler node.
package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/erc4337/aakeyring/internal/log"
)

// ErrChainNotSupported is returned when no bundler endpoint is configured for
// a chain id.
var ErrChainNotSupported = errors.New("chain id not supported")

// Default ERC-4337 contract addresses (EntryPoint v0.6 and the reference
// SimpleAccountFactory).
var (
	DefaultEntryPoint     = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	DefaultAccountFactory = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
)

// Client forwards Account-Abstraction JSON-RPC calls to the bundler endpoint
// configured for one chain. Everything it exposes is fixed at construction.
type Client struct {
	rpc     *rpc.Client
	url     string
	chainID *big.Int
}

// New resolves the bundler URL for the given hex chain id and dials it. An
// unknown chain id (or a configured but empty URL) is a construction error.
func New(ctx context.Context, chainID string, urls map[string]string) (*Client, error) {
	normalized := strings.ToLower(chainID)
	url, ok := urls[normalized]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %s", ErrChainNotSupported, chainID)
	}

	id, err := hexutil.DecodeBig(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q: %w", chainID, err)
	}

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial bundler %s: %w", url, err)
	}

	return &Client{rpc: client, url: url, chainID: id}, nil
}

// Send forwards a method call verbatim and returns the raw decoded result.
func (c *Client) Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.rpc.CallContext(ctx, &result, method, params...); err != nil {
		log.Bundler.Warn().Str("method", method).Err(err).Msg("bundler call failed")
		return nil, fmt.Errorf("bundler %s: %w", method, err)
	}
	return result, nil
}

// EntryPoint returns the default entry-point contract address.
func (c *Client) EntryPoint() common.Address {
	return DefaultEntryPoint
}

// AccountFactory returns the default account-factory contract address.
func (c *Client) AccountFactory() common.Address {
	return DefaultAccountFactory
}

// URL returns the resolved bundler endpoint.
func (c *Client) URL() string {
	return c.url
}

// ChainID returns the numeric chain id the client was constructed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}
