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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"offboarding/ocm/internal/obs"
	"offboarding/ocm/internal/util"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrNetwork        = errors.New("network request failed")
	ErrMissingBackend = errors.New("base url and anon key are required")
	ErrMissingToken   = errors.New("access token is required")
)

type Options struct {
	BaseURL        string
	AnonKey        string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client talks to the PostgREST and GoTrue endpoints of one backend project.
// A Client is safe for concurrent use; WithToken returns a copy bound to a caller.
type Client struct {
	baseURL string
	anonKey string
	token   string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	anonKey := strings.TrimSpace(opts.AnonKey)
	if baseURL == "" || anonKey == "" {
		return nil, ErrMissingBackend
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return &Client{
		baseURL: baseURL,
		anonKey: anonKey,
		timeout: timeout,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// WithToken returns a shallow copy that authenticates as the given access token.
func (c *Client) WithToken(accessToken string) *Client {
	clone := *c
	clone.token = strings.TrimSpace(accessToken)
	return &clone
}

type call struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	anonymous bool
	prefer    string
}

// do executes one request under the client timeout and returns the raw JSON payload.
// An empty body decodes as JSON null.
func (c *Client) do(ctx context.Context, req call) (json.RawMessage, error) {
	if !req.anonymous && c.token == "" {
		return nil, ErrMissingToken
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.operation, err)
		}
		body = bytes.NewReader(encoded)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.operation, err)
	}
	requestID := util.NewRequestID()
	httpReq.Header.Set("apikey", c.anonKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	bearer := c.token
	if bearer == "" {
		bearer = c.anonKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	if req.prefer != "" {
		httpReq.Header.Set("Prefer", req.prefer)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(started)
	if err != nil {
		obs.ObserveGatewayRequest(req.operation, "network_error", elapsed.Seconds())
		c.logger.Warn("gateway request failed",
			zap.String("operation", req.operation),
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.String("request_id", requestID),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, req.operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		obs.ObserveGatewayRequest(req.operation, "network_error", elapsed.Seconds())
		return nil, fmt.Errorf("%w: read %s response: %v", ErrNetwork, req.operation, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("null")
	}

	c.logger.Debug("gateway request",
		zap.String("operation", req.operation),
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("duration", elapsed),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		obs.ObserveGatewayRequest(req.operation, "http_error", elapsed.Seconds())
		return nil, newHTTPError(resp.StatusCode, raw)
	}
	if !json.Valid(raw) {
		obs.ObserveGatewayRequest(req.operation, "invalid_payload", elapsed.Seconds())
		return nil, fmt.Errorf("decode %s response: invalid json", req.operation)
	}
	obs.ObserveGatewayRequest(req.operation, "ok", elapsed.Seconds())
	return json.RawMessage(raw), nil
}

func (c *Client) rest(ctx context.Context, operation, method, table string, query url.Values, body any) (json.RawMessage, error) {
	return c.do(ctx, call{
		operation: operation,
		method:    method,
		path:      "/rest/v1/" + table,
		query:     query,
		body:      body,
		prefer:    "return=representation",
	})
}

func (c *Client) rpc(ctx context.Context, function string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	return c.do(ctx, call{
		operation: "rpc." + function,
		method:    http.MethodPost,
		path:      "/rest/v1/rpc/" + function,
		body:      params,
		prefer:    "return=representation",
	})
}

// decodeRows accepts a JSON array, a single object or null.
func decodeRows[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var row T
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		return []T{row}, nil
	}
	var rows []T
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func eq(value string) string {
	return "eq." + value
}

// inList builds a PostgREST in.(...) filter with each value double-quoted.
func inList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
