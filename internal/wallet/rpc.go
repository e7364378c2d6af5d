package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

var ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")

// RPCClient is a minimal JSON-RPC 2.0 client used for both the NEAR node and the
// EVM provider endpoint. The first URL is primary; others are fallbacks.
type RPCClient struct {
	urls       []string
	headers    map[string]string
	httpClient *http.Client
	requestID  atomic.Int64
}

// NewRPCClient creates a new RPC client with the given endpoint URLs.
func NewRPCClient(urls ...string) *RPCClient {
	return &RPCClient{
		urls:    urls,
		headers: map[string]string{},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHeader sets a header sent on every request (e.g. an RPC provider API key).
func (c *RPCClient) WithHeader(key, value string) *RPCClient {
	if value != "" {
		c.headers[key] = value
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int64
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Request performs a JSON-RPC call and returns the "result" member.
// An RPC error from a node is returned as is; fallbacks are only tried on transport failures.
func (c *RPCClient) Request(ctx context.Context, method string, params any) (gjson.Result, error) {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	var lastErr error
	for _, url := range c.urls {
		result, err := c.doRequest(ctx, url, req)
		if err == nil {
			return result, nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return gjson.Result{}, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return gjson.Result{}, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
}

func (c *RPCClient) doRequest(ctx context.Context, url string, req rpcRequest) (gjson.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return gjson.Result{}, fmt.Errorf("http status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, fmt.Errorf("invalid JSON response (status %d)", resp.StatusCode)
	}

	parsed := gjson.ParseBytes(respBody)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
		return gjson.Result{}, parseRPCError(rpcErr)
	}
	result := parsed.Get("result")
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("response has no result (status %d)", resp.StatusCode)
	}
	return result, nil
}

// parseRPCError reads both the EVM shape ({code, message, data}) and the NEAR shape
// ({name, cause: {name}, message, data}).
func parseRPCError(e gjson.Result) *RPCError {
	out := &RPCError{
		Code:    e.Get("code").Int(),
		Message: e.Get("message").String(),
		Data:    e.Get("data").String(),
	}
	if cause := e.Get("cause.name").String(); cause != "" {
		out.Data = cause
	}
	return out
}
