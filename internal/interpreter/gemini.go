package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// Gemini interprets queries with the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	now         func() time.Time
	log         *slog.Logger
}

// NewGemini creates a Gemini interpreter.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		client:      client,
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		now:         time.Now,
		log:         slog.Default().With("interpreter", "gemini"),
	}, nil
}

// Interpret sends query with the system prompt and decodes the reply.
func (g *Gemini) Interpret(ctx context.Context, query string) (any, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	temperature := g.temperature
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(query, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt(g.now()), genai.RoleUser),
			Temperature:       &temperature,
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return nil, failed("gemini", err)
	}
	text := resp.Text()
	g.log.Debug("completion received", "model", g.model, "len", len(text))
	return decodeText(text)
}
