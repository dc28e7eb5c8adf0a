package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stockchat/internal/util"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI interprets queries with the chat completions API.
type OpenAI struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	now         func() time.Time
	log         *slog.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAI creates an OpenAI interpreter.
func NewOpenAI(cfg Config) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{},
		now:         time.Now,
		log:         slog.Default().With("interpreter", "openai"),
	}
}

// Interpret sends query with the system prompt and decodes the reply.
func (c *OpenAI) Interpret(ctx context.Context, query string) (any, error) {
	if c.apiKey == "" {
		return nil, failed("openai", fmt.Errorf("API key not configured"))
	}
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: SystemPrompt(c.now())},
			{Role: "user", Content: query},
		},
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	var text string
	err = util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var err error
		text, err = c.complete(ctx, payload)
		return err
	})
	if err != nil {
		return nil, failed("openai", err)
	}
	c.log.Debug("completion received", "model", c.model, "elapsed", time.Since(start), "len", len(text))
	return decodeText(text)
}

func (c *OpenAI) complete(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", util.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
	case resp.StatusCode != http.StatusOK:
		return "", util.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var out openAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", util.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil {
		return "", util.Permanent(fmt.Errorf("API error: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", util.Permanent(fmt.Errorf("no completion returned"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
