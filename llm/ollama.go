package llm

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Ollama speaks Ollama's native /api/chat endpoint.
type Ollama struct{}

var _ Dialect = Ollama{}

func (Ollama) Name() string       { return "ollama" }
func (Ollama) ChatPath() string   { return "/api/chat" }
func (Ollama) HealthPath() string { return "/api/tags" }

// Authorize is a no-op; Ollama has no authentication.
func (Ollama) Authorize(*http.Request, string) {}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

func (Ollama) BuildRequest(req CompletionRequest) (any, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}
	body := ollamaChatRequest{Model: req.Model, Messages: req.messages()}
	if req.Temperature != 0 || req.MaxTokens != 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	return body, nil
}

func (Ollama) ParseResponse(body []byte) (*CompletionResponse, error) {
	var resp ollamaChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return &CompletionResponse{
		Content: resp.Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}
