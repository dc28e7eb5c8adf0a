package stockchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	c := NewClient(baseURL + "/")

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != baseURL {
		t.Errorf("expected baseURL %q, got %q", baseURL, c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestAskPollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/query":
			var in map[string]string
			json.NewDecoder(r.Body).Decode(&in)
			if in["query"] != "apple" {
				t.Errorf("query = %q", in["query"])
			}
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(Accepted{QueryID: "q1", Generation: 1})
		case "/api/state":
			status := "fetching"
			if polls.Add(1) >= 3 {
				status = "ready"
			}
			json.NewEncoder(w).Encode(map[string]any{
				"status": status,
				"title":  "AAPL Stock Performance",
				"table": map[string]any{
					"symbols": []string{"AAPL"},
					"rows":    []any{map[string]any{"date": "2024-01-02", "values": map[string]any{"AAPL": nil}}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Ask(context.Background(), "apple", time.Millisecond)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if st.Status != "ready" || st.Title != "AAPL Stock Performance" {
		t.Errorf("state = %+v", st)
	}
	if v := st.Table.Rows[0].Values["AAPL"]; v != nil {
		t.Errorf("absent value decoded as %v", *v)
	}
	if n := polls.Load(); n != 3 {
		t.Errorf("polls = %d, want 3", n)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title":"Bad Request","status":400,"detail":"Please enter a query"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Detail != "Please enter a query" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "3" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode(map[string]any{"queries": []any{map[string]any{"queryId": "q1", "text": "apple"}}})
	}))
	defer srv.Close()

	recs, err := NewClient(srv.URL).History(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Text != "apple" {
		t.Errorf("recs = %+v", recs)
	}
}
