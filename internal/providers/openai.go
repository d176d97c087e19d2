package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// OpenAIBackend implements CompletionBackend for OpenAI-compatible APIs
// (OpenAI, Groq, OpenRouter, DeepSeek, VLLM, etc.)
type OpenAIBackend struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retryConfig  RetryConfig
}

// NewOpenAIBackend creates an adapter for an OpenAI-compatible chat
// completions API. The per-call deadline comes from the caller's context,
// so the HTTP client carries no timeout of its own.
func NewOpenAIBackend(apiKey, apiBase, defaultModel string) *OpenAIBackend {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	return &OpenAIBackend{
		name:         "openai",
		apiKey:       apiKey,
		apiBase:      apiBase,
		defaultModel: defaultModel,
		client:       &http.Client{},
		retryConfig:  DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the automatic retry budget.
func (b *OpenAIBackend) WithRetryConfig(cfg RetryConfig) *OpenAIBackend {
	b.retryConfig = cfg
	return b
}

func (b *OpenAIBackend) Name() string { return b.name }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the message list and returns the first choice's text.
// Transient failures are retried once automatically per DefaultRetryConfig.
func (b *OpenAIBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}
	body, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", b.name, err)
	}

	return RetryDo(ctx, b.retryConfig, func() (string, error) {
		return b.doRequest(ctx, body)
	})
}

func (b *OpenAIBackend) doRequest(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", b.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", b.classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", b.classifyStatus(resp)
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", b.name, err)
	}
	if oaiResp.Error != nil {
		return "", &Error{Kind: FailureUnavailable, Backend: b.name,
			Err: fmt.Errorf("api error: %s", oaiResp.Error.Message)}
	}
	if len(oaiResp.Choices) == 0 {
		return "", &Error{Kind: FailureUnavailable, Backend: b.name,
			Err: errors.New("response has no choices")}
	}
	return strings.TrimSpace(oaiResp.Choices[0].Message.Content), nil
}

func (b *OpenAIBackend) classifyTransportError(err error) error {
	kind := FailureUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FailureTimeout
	}
	return &Error{Kind: kind, Backend: b.name, Err: err}
}

func (b *OpenAIBackend) classifyStatus(resp *http.Response) error {
	// Read a bounded slice of the body for the error message.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	kind := FailureUnavailable
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = FailureRateLimited
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		kind = FailureTimeout
	}
	return &Error{Kind: kind, Backend: b.name,
		Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))}
}
