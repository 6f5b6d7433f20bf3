// Package client is a Go client for the aakeyring JSON-RPC service.
package client

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
)

// Account mirrors the service's account representation.
type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Options json.RawMessage `json:"options,omitempty"`
	Methods []string        `json:"supportedMethods"`
	Type    string          `json:"type"`
}

// SigningRequest mirrors the service's queued signing request.
type SigningRequest struct {
	ID        string            `json:"id"`
	AccountID string            `json:"account"`
	Scope     string            `json:"scope"`
	Method    string            `json:"method"`
	Params    []json.RawMessage `json:"params"`
}

// AccountSummary mirrors the sc_account result.
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

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a client for the aakeyring service. The origin is sent with
// every request and must be granted in the service's permission table.
type Client struct {
	baseURL    string
	origin     string
	apiSecret  string
	httpClient *http.Client
	nextID     atomic.Uint64
}

// NewClient creates a new aakeyring client. apiSecret may be empty when the
// service runs without transport authentication.
func NewClient(baseURL, origin, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		origin:    origin,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks the health of the service.
func (c *Client) Health() (string, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("service returned non-OK status: %s, body: %s", resp.Status, string(body))
	}
	return string(body), nil
}

// CreateAccount creates a named account and returns it.
func (c *Client) CreateAccount(name string, options json.RawMessage) (*Account, error) {
	var account Account
	params := map[string]interface{}{"name": name}
	if options != nil {
		params["options"] = options
	}
	if err := c.Call("keyring_createAccount", []interface{}{params}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts retrieves every account managed by the service.
func (c *Client) ListAccounts() ([]Account, error) {
	var accounts []Account
	err := c.Call("keyring_listAccounts", nil, &accounts)
	return accounts, err
}

// GetAccount retrieves one account by id.
func (c *Client) GetAccount(id string) (*Account, error) {
	var account Account
	if err := c.Call("keyring_getAccount", []interface{}{map[string]string{"id": id}}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// DeleteAccount removes an account and its key material.
func (c *Client) DeleteAccount(id string) error {
	return c.Call("keyring_deleteAccount", []interface{}{map[string]string{"id": id}}, nil)
}

// SubmitRequest queues a signing request for later approval.
func (c *Client) SubmitRequest(request SigningRequest) error {
	return c.Call("keyring_submitRequest", []interface{}{request}, nil)
}

// ListRequests retrieves the pending signing requests.
func (c *Client) ListRequests() ([]SigningRequest, error) {
	var requests []SigningRequest
	err := c.Call("keyring_listRequests", nil, &requests)
	return requests, err
}

// ApproveRequest executes a pending request and returns the signing result
// (a signature or serialized transaction, method dependent).
func (c *Client) ApproveRequest(id string) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.Call("keyring_approveRequest", []interface{}{map[string]string{"id": id}}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// RejectRequest discards a pending request.
func (c *Client) RejectRequest(id string) error {
	return c.Call("keyring_rejectRequest", []interface{}{map[string]string{"id": id}}, nil)
}

// SmartAccount retrieves the smart-account view for a keyring account.
func (c *Client) SmartAccount(keyringAccountID string) (*AccountSummary, error) {
	var summary AccountSummary
	err := c.Call("sc_account", []interface{}{map[string]string{"keyringAccountId": keyringAccountID}}, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// SendUserOperation submits a user operation from the account's smart
// account and returns the user-operation hash. value is a decimal or
// 0x-prefixed quantity; data is 0x-prefixed call data.
func (c *Client) SendUserOperation(keyringAccountID, target, value, data string) (string, error) {
	var userOpHash string
	err := c.Call("aa_sendUserOperation", []interface{}{map[string]string{
		"keyringAccountId": keyringAccountID,
		"target":           target,
		"value":            value,
		"data":             data,
	}}, &userOpHash)
	return userOpHash, err
}

// NextRequestID reserves the next request id counter value.
func (c *Client) NextRequestID() (uint64, error) {
	var id uint64
	err := c.Call("aa_getNextRequestId", nil, &id)
	return id, err
}

// BundlerURLs retrieves the chain id to bundler endpoint table.
func (c *Client) BundlerURLs() (map[string]string, error) {
	var urls map[string]string
	err := c.Call("aa_getBundlerUrls", nil, &urls)
	return urls, err
}

// Call performs a raw JSON-RPC call; typed helpers above cover the common
// methods.
func (c *Client) Call(method string, params []interface{}, result interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/rpc", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.origin)
	if c.apiSecret != "" {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set(timestampHeader, timestamp)
		req.Header.Set(signatureHeader, c.calculateSignature(timestamp, reqBody))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) calculateSignature(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
