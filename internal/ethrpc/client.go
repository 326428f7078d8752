package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultLogPageSize = 2000 // blocks per eth_getLogs page
)

// Client defines the Ethereum JSON-RPC interface the engine's collaborators use.
type Client interface {
	// CallContract performs eth_call against a contract at a block.
	// blockNumber < 0 means latest. Returns ErrReverted on execution revert.
	CallContract(ctx context.Context, to, data string, blockNumber int64) (string, error)

	// GetLogs retrieves logs matching the filter, paginating over bounded
	// block ranges and returning results in (blockNumber, logIndex) order.
	GetLogs(ctx context.Context, filter LogFilter) ([]Log, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (int64, error)

	// BlockTimestamp returns the unix timestamp of a block.
	BlockTimestamp(ctx context.Context, blockNumber int64) (int64, error)
}

// HTTPClient implements Client using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logPageSize int64
	requestID   atomic.Uint64
}

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

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithLogPageSize sets the block-range size for eth_getLogs pagination.
func WithLogPageSize(n int64) ClientOption {
	return func(c *HTTPClient) {
		c.logPageSize = n
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Ethereum JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logPageSize: DefaultLogPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// isRevert reports whether the RPC error indicates an execution revert.
func (e *rpcError) isRevert() bool {
	return e.Code == 3 || strings.Contains(strings.ToLower(e.Message), "revert")
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
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
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// Reverts and other RPC errors are not retried.
			if rpcResp.Error.isRevert() {
				return fmt.Errorf("%w: %s", ErrReverted, rpcResp.Error.Message)
			}
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

// CallContract performs eth_call against a contract at a block.
func (c *HTTPClient) CallContract(ctx context.Context, to, data string, blockNumber int64) (string, error) {
	block := "latest"
	if blockNumber >= 0 {
		block = int64ToHex(blockNumber)
	}

	params := []interface{}{
		map[string]string{"to": to, "data": data},
		block,
	}

	var result string
	if err := c.call(ctx, "eth_call", params, &result); err != nil {
		return "", err
	}

	// Some nodes signal reverts with empty return data instead of an error.
	if result == "" || result == "0x" {
		return "", fmt.Errorf("%w: empty return data", ErrReverted)
	}
	return result, nil
}

// rawLog is the eth_getLogs wire format.
type rawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
}

// GetLogs retrieves logs matching the filter, paging over bounded block
// ranges so providers with range caps can serve the query.
func (c *HTTPClient) GetLogs(ctx context.Context, filter LogFilter) ([]Log, error) {
	var all []Log

	for from := filter.FromBlock; from <= filter.ToBlock; from += c.logPageSize {
		to := from + c.logPageSize - 1
		if to > filter.ToBlock {
			to = filter.ToBlock
		}

		page, err := c.getLogsPage(ctx, filter, from, to)
		if err != nil {
			return nil, fmt.Errorf("get logs [%d, %d]: %w", from, to, err)
		}
		all = append(all, page...)
	}

	// Pages may arrive unsorted from some providers; re-sort into canonical order.
	sort.Slice(all, func(i, j int) bool {
		if all[i].BlockNumber != all[j].BlockNumber {
			return all[i].BlockNumber < all[j].BlockNumber
		}
		return all[i].LogIndex < all[j].LogIndex
	})

	return all, nil
}

// getLogsPage fetches one block range.
func (c *HTTPClient) getLogsPage(ctx context.Context, filter LogFilter, from, to int64) ([]Log, error) {
	params := map[string]interface{}{
		"fromBlock": int64ToHex(from),
		"toBlock":   int64ToHex(to),
	}
	if filter.Address != "" {
		params["address"] = filter.Address
	}
	if len(filter.Topics0) > 0 {
		params["topics"] = []interface{}{filter.Topics0}
	}

	var raw []rawLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{params}, &raw); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(raw))
	for _, r := range raw {
		block, err := hexToInt64(r.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("log block number: %w", err)
		}
		idx, err := hexToInt64(r.LogIndex)
		if err != nil {
			return nil, fmt.Errorf("log index: %w", err)
		}
		logs = append(logs, Log{
			Address:     strings.ToLower(r.Address),
			Topics:      r.Topics,
			Data:        r.Data,
			BlockNumber: block,
			TxHash:      strings.ToLower(r.TxHash),
			LogIndex:    int(idx),
		})
	}
	return logs, nil
}

// BlockNumber returns the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (int64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return hexToInt64(result)
}

// blockHeader is the subset of eth_getBlockByNumber we read.
type blockHeader struct {
	Timestamp string `json:"timestamp"`
}

// BlockTimestamp returns the unix timestamp of a block.
func (c *HTTPClient) BlockTimestamp(ctx context.Context, blockNumber int64) (int64, error) {
	params := []interface{}{int64ToHex(blockNumber), false}

	var header *blockHeader
	if err := c.call(ctx, "eth_getBlockByNumber", params, &header); err != nil {
		return 0, err
	}
	if header == nil {
		return 0, fmt.Errorf("block %d not found", blockNumber)
	}
	return hexToInt64(header.Timestamp)
}
