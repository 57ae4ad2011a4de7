package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"membership-registry/internal/domain"
	"membership-registry/internal/rpc"
	"membership-registry/internal/runtime"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new membership node HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest is the client side of a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport failures are retried; RPC errors are returned as *rpc.Error.
// Resending a transaction is safe: the node rejects a replay with
// DuplicateTransaction.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: rpc.Version,
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpc.Response
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// SendTransaction encodes and submits tx.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx *runtime.Transaction) (*rpc.SendTransactionResult, error) {
	data, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return c.SendEncoded(ctx, data)
}

// SendEncoded submits an already encoded transaction.
func (c *HTTPClient) SendEncoded(ctx context.Context, data []byte) (*rpc.SendTransactionResult, error) {
	params := []interface{}{base64.StdEncoding.EncodeToString(data)}

	var result rpc.SendTransactionResult
	if err := c.call(ctx, rpc.MethodSendTransaction, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction retrieves a committed transaction by signature.
func (c *HTTPClient) GetTransaction(ctx context.Context, signature string) (*rpc.TransactionInfo, error) {
	var result *rpc.TransactionInfo
	if err := c.call(ctx, rpc.MethodGetTransaction, []interface{}{signature}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMembership retrieves a membership record.
func (c *HTTPClient) GetMembership(ctx context.Context, address domain.PublicKey) (*rpc.MembershipInfo, error) {
	var result *rpc.MembershipInfo
	if err := c.call(ctx, rpc.MethodGetMembership, []interface{}{address}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAuthority retrieves the program's asset authority.
func (c *HTTPClient) GetAuthority(ctx context.Context) (*rpc.AuthorityInfo, error) {
	var result *rpc.AuthorityInfo
	if err := c.call(ctx, rpc.MethodGetAuthority, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMint retrieves a mint.
func (c *HTTPClient) GetMint(ctx context.Context, address domain.PublicKey) (*rpc.MintInfo, error) {
	var result *rpc.MintInfo
	if err := c.call(ctx, rpc.MethodGetMint, []interface{}{address}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTokenAccount retrieves a token account.
func (c *HTTPClient) GetTokenAccount(ctx context.Context, address domain.PublicKey) (*rpc.TokenAccountInfo, error) {
	var result *rpc.TokenAccountInfo
	if err := c.call(ctx, rpc.MethodGetTokenAccount, []interface{}{address}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMembershipEvents retrieves the event history of a membership.
func (c *HTTPClient) GetMembershipEvents(ctx context.Context, membership domain.PublicKey) ([]*domain.MembershipEvent, error) {
	var result []*domain.MembershipEvent
	if err := c.call(ctx, rpc.MethodGetMembershipEvents, []interface{}{membership}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DeriveAddresses asks the node for the program addresses of creator.
func (c *HTTPClient) DeriveAddresses(ctx context.Context, creator domain.PublicKey, mint *domain.PublicKey) (*rpc.DerivedAddresses, error) {
	params := []interface{}{creator}
	if mint != nil {
		params = append(params, *mint)
	}

	var result rpc.DerivedAddresses
	if err := c.call(ctx, rpc.MethodDeriveAddresses, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSlot returns the slot of the most recent commit.
func (c *HTTPClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, rpc.MethodGetSlot, nil, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}
