package llm

import (
	"context"
	"errors"

	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/logger"
	"github.com/kbukum/taskflow/observability"
	"github.com/kbukum/taskflow/provider"
)

// Client is a completion provider, possibly wrapped in middleware.
type Client = provider.RequestResponse[CompletionRequest, CompletionResponse]

// NewClient builds the adapter for cfg and wraps it with logging,
// tracing, metrics (when m is non-nil) and the configured resilience
// policies, outermost first.
func NewClient(cfg Config, log *logger.Logger, m *observability.Metrics) (Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	adapter, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	var metrics provider.Middleware[CompletionRequest, CompletionResponse]
	if m != nil {
		metrics = provider.WithMetrics[CompletionRequest, CompletionResponse](m)
	}
	return provider.Apply[CompletionRequest, CompletionResponse](adapter,
		provider.WithLogging[CompletionRequest, CompletionResponse](log.WithComponent("llm")),
		provider.WithTracing[CompletionRequest, CompletionResponse]("llm"),
		metrics,
		provider.Resilient[CompletionRequest, CompletionResponse](cfg.Resilience()),
	), nil
}

// ModelCapability exposes c as the capability model-call nodes use.
func ModelCapability(c Client) dag.ModelCapability {
	return provider.Adapt(c, c.Name(),
		func(_ context.Context, req dag.ModelRequest) (CompletionRequest, error) {
			if req.Prompt == "" {
				return CompletionRequest{}, errors.New("llm: empty prompt")
			}
			return CompletionRequest{
				Model:        req.Model,
				SystemPrompt: req.System,
				Messages:     []Message{{Role: "user", Content: req.Prompt}},
				Temperature:  req.Temperature,
				MaxTokens:    req.MaxTokens,
			}, nil
		},
		func(resp CompletionResponse) (dag.ModelResponse, error) {
			return dag.ModelResponse{Text: resp.Content, Model: resp.Model}, nil
		},
	)
}

// Complete sends system and user prompts and returns the text response.
func Complete(ctx context.Context, c Client, system, user string) (string, error) {
	resp, err := c.Execute(ctx, CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
