package interpreter

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

// Remote delegates interpretation to a backend exposing
// POST /api/process_query {"query": ...}.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemote creates a Remote interpreter.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Interpret posts the query and returns the decoded plan object.
func (r *Remote) Interpret(ctx context.Context, query string) (any, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/process_query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, failed("remote", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed("remote", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failed("remote", fmt.Errorf("status %d: %s", resp.StatusCode, detail(body)))
	}
	return decodeText(string(body))
}

// detail pulls FastAPI-style {"detail": ...} messages out of error bodies.
func detail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}
