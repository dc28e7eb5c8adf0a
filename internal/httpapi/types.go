// Package httpapi serves the stockchat state over REST and WebSocket: query
// submission, the renderable snapshot, chart gestures and the query log.
package httpapi

import (
	"context"

	"stockchat/internal/chart"
	"stockchat/internal/domain"
	"stockchat/internal/session"
)

// Service is the orchestrator surface the API drives.
type Service interface {
	Submit(text string) (domain.Query, error)
	Snapshot() *session.Snapshot
	Gesture(g chart.Gesture) *session.Snapshot
	Pointer(in chart.PointerInput) *session.Snapshot
	ToggleMode() *session.Snapshot
	SetMode(m chart.Mode) *session.Snapshot
	ResetZoom() *session.Snapshot
	Readout(date string) (chart.Readout, error)
}

// History lists logged queries.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.QueryRecord, error)
}

// QueryRequest submits a question.
type QueryRequest struct {
	Query string `json:"query" doc:"Free-form question about one or more stocks"`
}

// QueryAccepted acknowledges an asynchronous query.
type QueryAccepted struct {
	QueryID    string `json:"queryId"`
	Generation uint64 `json:"generation"`
}

// GestureRequest is a chart gesture. Pointer events carry offsetX and
// axisWidth; date-domain events carry date.
type GestureRequest struct {
	Kind      chart.GestureKind `json:"kind" enum:"start,move,end"`
	Date      string            `json:"date,omitempty" required:"false"`
	OffsetX   float64           `json:"offsetX,omitempty" required:"false"`
	AxisWidth float64           `json:"axisWidth,omitempty" required:"false"`
}

// ModeRequest selects a chart mode; an empty mode advances to the next.
type ModeRequest struct {
	Mode string `json:"mode,omitempty" required:"false" doc:"zoom, difference or view"`
}

// envelope frames WebSocket messages.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
