package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// OpenAI speaks the chat completions API shared by OpenAI and compatible
// gateways.
type OpenAI struct{}

var _ Dialect = OpenAI{}

func (OpenAI) Name() string       { return "openai" }
func (OpenAI) ChatPath() string   { return "/chat/completions" }
func (OpenAI) HealthPath() string { return "/models" }

func (OpenAI) Authorize(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (OpenAI) BuildRequest(req CompletionRequest) (any, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}
	body := openaiRequest{Model: req.Model, Messages: req.messages(), MaxTokens: req.MaxTokens}
	if req.Temperature != 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	return body, nil
}

func (OpenAI) ParseResponse(body []byte) (*CompletionResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}
	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}
