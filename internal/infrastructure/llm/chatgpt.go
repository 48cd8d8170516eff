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

	"PersonaCollector/internal/config"
	"PersonaCollector/internal/domain"
	"PersonaCollector/internal/fetch"
	"PersonaCollector/internal/ports"
)

// ChatGPTClient implements ports.LanguageModel backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.LanguageModel = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has everything it needs to call the API.
func (c *ChatGPTClient) Configured() bool {
	return c != nil && c.apiKey != "" && c.endpoint != "" && c.model != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *ChatGPTClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("chatgpt client: %w", domain.ErrNotConfigured)
	}

	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = c.systemPrompt
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(systemPrompt)},
			{Role: "user", Content: userPrompt},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &fetch.FetchError{Kind: domain.KindTransport, Attempts: 1, URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		kind := domain.KindHTTP
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = domain.KindRateLimited
		}
		return "", &fetch.FetchError{
			Kind:       kind,
			Attempts:   1,
			StatusCode: resp.StatusCode,
			URL:        c.endpoint,
			Err:        fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("chatgpt response: %w: %v", fetch.ErrDecode, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chatgpt response: %w: no choices", fetch.ErrDecode)
	}

	return decoded.Choices[0].Message.Content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a customer-research analyst. Answer with a single JSON object."
	}
	return prompt
}
