// Package interpreter turns a free-form question into the raw, untyped plan
// payload consumed by the plan validator. Implementations call an LLM
// directly (OpenAI, Gemini) or delegate to an existing backend.
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockchat/internal/domain"
	"stockchat/internal/plan"
)

// Interpreter returns the decoded JSON object describing a plan for query.
type Interpreter interface {
	Interpret(ctx context.Context, query string) (any, error)
}

// Func adapts a function to the Interpreter interface.
type Func func(ctx context.Context, query string) (any, error)

// Interpret calls f.
func (f Func) Interpret(ctx context.Context, query string) (any, error) { return f(ctx, query) }

// Config selects and configures an implementation.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// New builds the Interpreter named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Interpreter, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	case "remote":
		return NewRemote(cfg.BaseURL, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown interpreter provider %q", cfg.Provider)
}

// decodeText extracts and decodes the JSON object from model output.
func decodeText(text string) (any, error) {
	body, ok := plan.ExtractJSON(text)
	if !ok {
		return nil, domain.NewError(domain.CodeMalformedPlan, "interpreter returned no JSON object", nil)
	}
	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, domain.NewError(domain.CodeMalformedPlan, "interpreter returned invalid JSON", err)
	}
	return raw, nil
}

func failed(provider string, err error) error {
	return domain.NewError(domain.CodeInterpreter, provider+" request failed", err)
}

// withTimeout applies d when ctx has no deadline of its own.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
