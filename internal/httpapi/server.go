package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockchat/internal/chart"
	"stockchat/internal/domain"
	"stockchat/internal/session"
)

// NewServer builds the HTTP handler. history and hub may be nil, which
// disables /api/history and /ws.
func NewServer(svc Service, history History, hub *Hub) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	cfg := huma.DefaultConfig("stockchat API", "1.0.0")
	api := humachi.New(router, cfg)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if _, err := w.Write([]byte("ok")); err != nil {
			slog.Debug("healthz response write failed", "error", err)
		}
	})
	if hub != nil {
		router.Get("/ws", hub.ServeWS(func() any { return svc.Snapshot() }))
	}

	registerQueryHandlers(api, svc)
	registerChartHandlers(api, svc)
	if history != nil {
		registerHistoryHandlers(api, history)
	}
	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *domain.Error
	if errors.As(err, &coded) {
		switch coded.Code {
		case domain.CodeInvalidInput:
			return huma.Error400BadRequest(coded.Message)
		case domain.CodeMalformedPlan:
			return huma.Error422UnprocessableEntity(coded.Message)
		case domain.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case domain.CodeTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case domain.CodeInterpreter, domain.CodeFetchFailed:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

type snapshotOutput struct {
	Body *session.Snapshot
}

func registerQueryHandlers(api huma.API, svc Service) {
	type queryInput struct {
		Body QueryRequest
	}
	type queryOutput struct {
		Body QueryAccepted
	}
	huma.Register(api, huma.Operation{OperationID: "submit-query", Method: http.MethodPost, Path: "/api/query", Summary: "Submit a question; results stream into the state", Tags: []string{"Query"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *queryInput) (*queryOutput, error) {
			q, err := svc.Submit(input.Body.Query)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &queryOutput{}
			out.Body = QueryAccepted{QueryID: q.ID, Generation: q.Generation}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-state", Method: http.MethodGet, Path: "/api/state", Summary: "Get the renderable state", Tags: []string{"Query"}},
		func(ctx context.Context, input *struct{}) (*snapshotOutput, error) {
			return &snapshotOutput{Body: svc.Snapshot()}, nil
		})
}

func registerChartHandlers(api huma.API, svc Service) {
	type gestureInput struct {
		Body GestureRequest
	}
	huma.Register(api, huma.Operation{OperationID: "chart-gesture", Method: http.MethodPost, Path: "/api/chart/gesture", Summary: "Apply a pointer or touch gesture", Tags: []string{"Chart"}},
		func(ctx context.Context, input *gestureInput) (*snapshotOutput, error) {
			g := input.Body
			if g.AxisWidth > 0 {
				return &snapshotOutput{Body: svc.Pointer(chart.PointerInput{Kind: g.Kind, OffsetX: g.OffsetX, AxisWidth: g.AxisWidth})}, nil
			}
			if g.Kind != chart.GestureEnd && g.Date == "" {
				return nil, huma.Error400BadRequest("gesture needs a date or offsetX with axisWidth")
			}
			return &snapshotOutput{Body: svc.Gesture(chart.Gesture{Kind: g.Kind, Date: g.Date})}, nil
		})

	type modeInput struct {
		Body *ModeRequest
	}
	huma.Register(api, huma.Operation{OperationID: "chart-mode", Method: http.MethodPost, Path: "/api/chart/mode", Summary: "Set or cycle the chart mode", Tags: []string{"Chart"}},
		func(ctx context.Context, input *modeInput) (*snapshotOutput, error) {
			if input.Body == nil || input.Body.Mode == "" {
				return &snapshotOutput{Body: svc.ToggleMode()}, nil
			}
			m, err := chart.ParseMode(input.Body.Mode)
			if err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			return &snapshotOutput{Body: svc.SetMode(m)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "chart-reset", Method: http.MethodPost, Path: "/api/chart/reset", Summary: "Zoom out to the full table", Tags: []string{"Chart"}},
		func(ctx context.Context, input *struct{}) (*snapshotOutput, error) {
			return &snapshotOutput{Body: svc.ResetZoom()}, nil
		})

	type readoutInput struct {
		Date string `query:"date" required:"true" doc:"Row date (YYYY-MM-DD)"`
	}
	type readoutOutput struct {
		Body chart.Readout
	}
	huma.Register(api, huma.Operation{OperationID: "chart-readout", Method: http.MethodGet, Path: "/api/chart/readout", Summary: "Hover readout at a date", Tags: []string{"Chart"}},
		func(ctx context.Context, input *readoutInput) (*readoutOutput, error) {
			r, err := svc.Readout(input.Date)
			if err != nil {
				return nil, mapErr(err)
			}
			return &readoutOutput{Body: r}, nil
		})
}

func registerHistoryHandlers(api huma.API, history History) {
	type historyInput struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"500"`
	}
	type historyOutput struct {
		Body struct {
			Queries []domain.QueryRecord `json:"queries"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-history", Method: http.MethodGet, Path: "/api/history", Summary: "List recent queries", Tags: []string{"History"}},
		func(ctx context.Context, input *historyInput) (*historyOutput, error) {
			recs, err := history.Recent(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &historyOutput{}
			out.Body.Queries = recs
			return out, nil
		})
}
