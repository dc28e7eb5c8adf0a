// Package stockchat is a Go SDK for the stockchat-server API.
package stockchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client provides a Go SDK for interacting with the stockchat-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new stockchat API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Accepted acknowledges a submitted query.
type Accepted struct {
	QueryID    string `json:"queryId"`
	Generation uint64 `json:"generation"`
}

// Row is one date of the aligned table; nil values are absent.
type Row struct {
	Date   string              `json:"date"`
	Values map[string]*float64 `json:"values"`
}

// Table is the rendered multi-series table.
type Table struct {
	Symbols []string `json:"symbols"`
	Rows    []Row    `json:"rows"`
}

// NewsItem is a news headline.
type NewsItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Publisher string    `json:"publisher"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// Diagnostic reports an action that did not succeed.
type Diagnostic struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
}

// Selection is the chart selection state.
type Selection struct {
	Mode   string `json:"mode"`
	Window struct {
		From string `json:"from"`
		To   string `json:"to"`
		Full bool   `json:"full"`
	} `json:"window"`
}

// State is the server's renderable state.
type State struct {
	Status      string                    `json:"status"`
	Loading     bool                      `json:"loading"`
	Error       string                    `json:"error"`
	Description string                    `json:"description"`
	Title       string                    `json:"title"`
	Symbols     []string                  `json:"symbols"`
	Colors      map[string]string         `json:"colors"`
	Table       Table                     `json:"table"`
	Selection   Selection                 `json:"selection"`
	Metrics     map[string]map[string]any `json:"metrics"`
	News        []NewsItem                `json:"news"`
	Diagnostics []Diagnostic              `json:"diagnostics"`
}

// Done reports whether the current query has finished.
func (s *State) Done() bool {
	return s.Status == "ready" || s.Status == "error"
}

// QueryRecord is one logged query.
type QueryRecord struct {
	QueryID     string    `json:"queryId"`
	Text        string    `json:"text"`
	Description string    `json:"description"`
	Actions     int       `json:"actions"`
	Failed      int       `json:"failed"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stockchat: status %d: %s", e.Status, e.Detail)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Detail: e.Detail}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit starts a query.
func (c *Client) Submit(ctx context.Context, query string) (*Accepted, error) {
	var out Accepted
	if err := c.do(ctx, http.MethodPost, "/api/query", map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State returns the current state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var out State
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask submits query and polls until it finishes or ctx is done.
func (c *Client) Ask(ctx context.Context, query string, poll time.Duration) (*State, error) {
	if _, err := c.Submit(ctx, query); err != nil {
		return nil, err
	}
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		st, err := c.State(ctx)
		if err != nil {
			return nil, err
		}
		if st.Done() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Gesture sends a date-domain gesture: kind is start, move or end.
func (c *Client) Gesture(ctx context.Context, kind, date string) (*State, error) {
	var out State
	in := map[string]string{"kind": kind}
	if date != "" {
		in["date"] = date
	}
	if err := c.do(ctx, http.MethodPost, "/api/chart/gesture", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Zoom selects [from, to] in zoom mode.
func (c *Client) Zoom(ctx context.Context, from, to string) (*State, error) {
	if _, err := c.SetMode(ctx, "zoom"); err != nil {
		return nil, err
	}
	if _, err := c.Gesture(ctx, "start", from); err != nil {
		return nil, err
	}
	if _, err := c.Gesture(ctx, "move", to); err != nil {
		return nil, err
	}
	return c.Gesture(ctx, "end", "")
}

// SetMode sets the chart mode; "" cycles to the next mode.
func (c *Client) SetMode(ctx context.Context, mode string) (*State, error) {
	var out State
	if err := c.do(ctx, http.MethodPost, "/api/chart/mode", map[string]string{"mode": mode}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset zooms out to the full table.
func (c *Client) Reset(ctx context.Context) (*State, error) {
	var out State
	if err := c.do(ctx, http.MethodPost, "/api/chart/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History lists recent queries.
func (c *Client) History(ctx context.Context, limit int) ([]QueryRecord, error) {
	var out struct {
		Queries []QueryRecord `json:"queries"`
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if err := c.do(ctx, http.MethodGet, "/api/history?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Queries, nil
}

// Watch streams state updates over the WebSocket endpoint until ctx is
// done or the connection drops; the channel is then closed.
func (c *Client) Watch(ctx context.Context) (<-chan *State, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	out := make(chan *State, 16)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var msg struct {
				Type string `json:"type"`
				Data State  `json:"data"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "snapshot" {
				continue
			}
			select {
			case out <- &msg.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
