/*

This file contains the HTTP gateway that talks to the optimizer backend.

Reads are retried with exponential backoff on transport errors and 5xx/408/429 responses.
Rebalance is sent exactly once with an Idempotency-Key so the backend can drop duplicates.

*/

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/elys-network/yield-optimizer/internal/analyzer"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/metrics"
	"github.com/elys-network/yield-optimizer/internal/types"
)

var httpLogger = logger.GetForComponent("http_gateway")

const (
	APIKeyHeader         = "X-API-KEY"
	IdempotencyKeyHeader = "Idempotency-Key"

	maxErrorBodyBytes = 4 << 10
	maxBodyBytes      = 8 << 20
)

// HTTPConfig configures an HTTPGateway.
type HTTPConfig struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// RateLimit is requests per second across all calls; zero disables limiting.
	RateLimit float64
	Burst     int

	// MaxRetries is the number of extra attempts for reads.
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// HTTPGateway implements Gateway against the optimizer REST API.
type HTTPGateway struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        HTTPConfig
}

var _ Gateway = (*HTTPGateway)(nil)

func NewHTTPGateway(cfg HTTPConfig) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	return &HTTPGateway{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: client,
		limiter:    limiter,
		cfg:        cfg,
	}, nil
}

func (g *HTTPGateway) ListProtocols(ctx context.Context) ([]types.Protocol, error) {
	const op = "list_protocols"
	start := time.Now()
	var protocols []types.Protocol
	err := g.read(ctx, op, "/protocols", &protocols)
	if err == nil {
		if verr := analyzer.ValidateProtocols(protocols); verr != nil {
			err = newError(op, types.KindInvalidData, verr)
		}
	}
	g.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return protocols, nil
}

func (g *HTTPGateway) ListUserAssets(ctx context.Context, accountID string) ([]types.Asset, error) {
	const op = "list_assets"
	start := time.Now()
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	var assets []types.Asset
	err := g.read(ctx, op, accountPath(accountID, "assets"), &assets)
	if err == nil {
		if verr := analyzer.ValidateAssets(assets); verr != nil {
			err = newError(op, types.KindInvalidData, verr)
		}
	}
	g.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (g *HTTPGateway) GetUserPortfolio(ctx context.Context, accountID string) (*types.Portfolio, error) {
	const op = "get_portfolio"
	start := time.Now()
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	var portfolio types.Portfolio
	err := g.read(ctx, op, accountPath(accountID, "portfolio"), &portfolio)
	if err == nil {
		if verr := analyzer.ValidatePortfolio(&portfolio); verr != nil {
			err = newError(op, types.KindInvalidData, verr)
		}
	}
	g.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

type optimizeRequest struct {
	RiskLevel int `json:"riskLevel"`
}

// OptimizePortfolio is a POST but has no side effects on the backend, so it is retried like a read.
func (g *HTTPGateway) OptimizePortfolio(ctx context.Context, accountID string, riskLevel int) (*types.OptimizationResult, error) {
	const op = "optimize"
	start := time.Now()
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	if err := checkRiskLevel(riskLevel); err != nil {
		return nil, err
	}

	body, err := json.Marshal(optimizeRequest{RiskLevel: riskLevel})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result types.OptimizationResult
	err = g.retry(ctx, op, func() error {
		return g.do(ctx, op, http.MethodPost, accountPath(accountID, "optimize"), body, nil, &result)
	})
	if err == nil {
		if verr := analyzer.ValidateOptimizationResult(&result); verr != nil {
			err = newError(op, types.KindInvalidData, verr)
		}
	}
	g.record(op, start, err)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type rebalanceRequest struct {
	Allocations []types.Allocation `json:"allocations"`
}

type rebalanceResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
}

// ExecuteRebalance submits the allocation once. It is never retried.
func (g *HTTPGateway) ExecuteRebalance(ctx context.Context, accountID string, allocations []types.Allocation) (bool, error) {
	const op = "rebalance"
	start := time.Now()
	if err := checkAccount(accountID); err != nil {
		return false, err
	}
	if err := analyzer.ValidateAllocations(allocations); err != nil {
		return false, newError(op, types.KindInvalidInput, err)
	}

	body, err := json.Marshal(rebalanceRequest{Allocations: allocations})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	key := uuid.NewString()
	headers := map[string]string{IdempotencyKeyHeader: key}

	var resp rebalanceResponse
	err = g.do(ctx, op, http.MethodPost, accountPath(accountID, "rebalance"), body, headers, &resp)
	g.record(op, start, err)
	if err != nil {
		httpLogger.Error().
			Err(err).
			Str("account", accountID).
			Str("idempotencyKey", key).
			Msg("Rebalance submission failed")
		return false, err
	}

	httpLogger.Info().
		Str("account", accountID).
		Str("idempotencyKey", key).
		Str("transactionId", resp.TransactionID).
		Bool("success", resp.Success).
		Msg("Rebalance submitted")
	return resp.Success, nil
}

func (g *HTTPGateway) read(ctx context.Context, op, path string, out any) error {
	return g.retry(ctx, op, func() error {
		return g.do(ctx, op, http.MethodGet, path, nil, nil, out)
	})
}

// retry runs attempt with exponential backoff. Errors that are not worth retrying are
// wrapped as permanent so backoff returns them immediately.
func (g *HTTPGateway) retry(ctx context.Context, op string, attempt func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialBackoff
	b.MaxInterval = g.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	tries := 0
	return backoff.Retry(func() error {
		if tries > 0 {
			metrics.RecordGatewayRetry(op)
		}
		tries++
		err := attempt()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		httpLogger.Warn().Err(err).Str("op", op).Int("attempt", tries).Msg("Gateway read failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, g.cfg.MaxRetries), ctx))
}

func retryable(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	return gwErr.Kind == types.KindNetwork
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, body []byte, headers map[string]string, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		// Wait fails early when the next token would arrive after the deadline.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(op, Classify(ctxErr), ctxErr)
		}
		return newError(op, types.KindTimeout, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	endpoint := g.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return newError(op, types.KindInvalidInput, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set(APIKeyHeader, g.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpLogger.Debug().Str("method", method).Str("path", path).Msg("Calling optimizer backend")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(op, Classify(ctxErr), ctxErr)
		}
		return newError(op, types.KindNetwork, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &Error{
			Op:         op,
			Kind:       statusKind(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, strings.TrimSpace(string(msg))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return newError(op, types.KindInvalidData, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (g *HTTPGateway) record(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(Classify(err))
	}
	metrics.RecordGatewayRequest(op, outcome, time.Since(start))
}

// statusKind maps an HTTP status to an error kind. Server-side and throttling statuses are
// transient; everything else is the backend refusing the request.
func statusKind(code int) types.ErrorKind {
	switch {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return types.KindNetwork
	case code == http.StatusUnprocessableEntity, code == http.StatusBadRequest:
		return types.KindInvalidInput
	default:
		return types.KindRejected
	}
}

func accountPath(accountID, resource string) string {
	return "/accounts/" + url.PathEscape(accountID) + "/" + resource
}
