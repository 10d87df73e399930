// Package llm talks to an OpenAI-compatible API for chat completions and
// embeddings. Failures are classified into ServiceError kinds so the
// orchestration layer can decide between splitting, waiting and aborting.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Completion is the decoded result of a chat completion call. Token counts
// come from the service's usage block and feed the rate budget.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Completer is the narrow generation surface the orchestrator depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// Client calls the chat completions endpoint of an OpenAI-compatible
// service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewClient builds a completion client. maxTokens caps the response length
// requested from the service.
func NewClient(baseURL, apiKey, model string, maxTokens int) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends one system+user exchange and returns the model's reply.
func (c *Client) Complete(ctx context.Context, system, user string) (Completion, error) {
	reqBody := chatRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, &ServiceError{Kind: KindFatal, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Completion{}, classifyHTTPError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Completion{}, &ServiceError{
			Kind:    KindMalformed,
			Message: fmt.Sprintf("failed to decode completion response: %v", err),
		}
	}
	if len(decoded.Choices) == 0 {
		return Completion{}, &ServiceError{Kind: KindMalformed, Message: "completion response has no choices"}
	}

	return Completion{
		Text:         decoded.Choices[0].Message.Content,
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
	}, nil
}

func classifyHTTPError(resp *http.Response) *ServiceError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)

	kind := KindFatal
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(msg, "context_length_exceeded"):
		kind = KindContextExceeded
	}

	return &ServiceError{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
}
