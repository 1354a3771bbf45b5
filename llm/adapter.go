package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/version"
)

// ErrNoDialect is returned by NewWithDialect for a nil dialect.
var ErrNoDialect = errors.New("llm: dialect is required")

const maxResponseBytes = 8 << 20

// Adapter is a config-driven LLM client that works with any provider via
// a Dialect.
//
// Adapter implements:
//   - provider.RequestResponse[CompletionRequest, CompletionResponse]
//   - provider.Closeable
type Adapter struct {
	cfg     Config
	dialect Dialect
	client  *http.Client
}

var (
	_ provider.RequestResponse[CompletionRequest, CompletionResponse] = (*Adapter)(nil)
	_ provider.Closeable                                              = (*Adapter)(nil)
)

// New creates an adapter using the dialect named in cfg.
func New(cfg Config) (*Adapter, error) {
	cfg.ApplyDefaults()
	dialect, err := GetDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	return NewWithDialect(dialect, cfg)
}

// NewWithDialect creates an adapter with an explicit dialect instance.
func NewWithDialect(dialect Dialect, cfg Config) (*Adapter, error) {
	if dialect == nil {
		return nil, ErrNoDialect
	}
	cfg.Dialect = dialect.Name()
	cfg.ApplyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base_url is required for dialect %q", cfg.Dialect)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		cfg:     cfg,
		dialect: dialect,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the adapter name.
func (a *Adapter) Name() string { return a.cfg.Name }

// Dialect returns the dialect used by this adapter.
func (a *Adapter) Dialect() Dialect { return a.dialect }

// IsAvailable probes the dialect's health endpoint. Dialects without one
// are assumed available.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	hp := a.dialect.HealthPath()
	if hp == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+hp, http.NoBody)
	if err != nil {
		return false
	}
	a.dialect.Authorize(req, a.cfg.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}

// Close releases idle connections.
func (a *Adapter) Close(context.Context) error {
	a.client.CloseIdleConnections()
	return nil
}

// Execute sends a completion request and returns the full response.
func (a *Adapter) Execute(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	a.applyDefaults(&req)

	payload, err := a.dialect.BuildRequest(req)
	if err != nil {
		return CompletionResponse{}, taskerrors.InvalidInput("model", err.Error()).WithCause(err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+a.dialect.ChatPath(), bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	a.dialect.Authorize(httpReq, a.cfg.APIKey)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CompletionResponse{}, ctxErr
		}
		return CompletionResponse{}, taskerrors.ServiceUnavailable(a.Name()).WithCause(err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // read-only body

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return CompletionResponse{}, taskerrors.ExternalServiceError(a.Name(), err)
	}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return CompletionResponse{}, a.statusError(httpResp.StatusCode, respBody)
	}

	result, err := a.dialect.ParseResponse(respBody)
	if err != nil {
		appErr := taskerrors.ExternalServiceError(a.Name(), fmt.Errorf("parse response: %w", err))
		appErr.Retryable = false
		return CompletionResponse{}, appErr
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	return *result, nil
}

// statusError classifies a non-2xx reply: 429 and 5xx are retryable,
// other client errors are not.
func (a *Adapter) statusError(status int, body []byte) error {
	cause := fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusTooManyRequests:
		return taskerrors.RateLimited().WithCause(cause)
	case status >= http.StatusInternalServerError:
		return taskerrors.ExternalServiceError(a.Name(), cause).WithDetail("status", status)
	}
	appErr := taskerrors.ExternalServiceError(a.Name(), cause).WithDetail("status", status)
	appErr.Retryable = false
	return appErr
}

func (a *Adapter) applyDefaults(req *CompletionRequest) {
	if req.Model == "" {
		req.Model = a.cfg.Model
	}
	if req.Temperature == 0 {
		req.Temperature = a.cfg.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = a.cfg.MaxTokens
	}
}
