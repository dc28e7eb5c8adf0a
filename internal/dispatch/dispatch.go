// Package dispatch executes the actions of a validated plan against the
// configured fetchers. Actions run concurrently and fail independently;
// every action yields exactly one Outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockchat/internal/domain"
	"stockchat/internal/fetch"
)

// Status tags the result of one action.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusFailure     Status = "fetch_failure"
	StatusEmpty       Status = "empty"
	StatusUnsupported Status = "unsupported"
)

// Preview is emitted once per plan before any fetch completes.
type Preview struct {
	Description string           `json:"description"`
	KeyDates    []domain.KeyDate `json:"keyDates"`
	Actions     int              `json:"actions"`
}

// Outcome is the result of one action. Only the payload field matching
// Action.Type is set.
type Outcome struct {
	Index       int           `json:"index"`
	Action      domain.Action `json:"action"`
	Status      Status        `json:"status"`
	CompareMode bool          `json:"compareMode,omitempty"`

	Series   map[string]domain.Series   `json:"series,omitempty"`
	Metrics  domain.RawMetrics          `json:"metrics,omitempty"`
	News     []domain.NewsItem          `json:"news,omitempty"`
	Earnings map[string]domain.Earnings `json:"earnings,omitempty"`

	Err     error         `json:"-"`
	Elapsed time.Duration `json:"elapsed"`
}

// Message returns the outcome's error message, or "".
func (o *Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Event is delivered to the dispatch callback. Exactly one of Preview and
// Outcome is set.
type Event struct {
	Preview *Preview
	Outcome *Outcome
}

// Options bounds a Dispatcher.
type Options struct {
	// FetchTimeout bounds each action's fetch. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration
	// MaxConcurrency caps concurrently running actions. Zero means no cap.
	MaxConcurrency int
}

// DefaultFetchTimeout is used when Options.FetchTimeout is zero.
const DefaultFetchTimeout = 15 * time.Second

// Dispatcher routes actions to fetchers.
type Dispatcher struct {
	sources fetch.Sources
	timeout time.Duration
	limit   int
	log     *slog.Logger
}

// New creates a Dispatcher over sources. Nil sources make their actions
// fail with fetch_failed.
func New(sources fetch.Sources, opts Options) *Dispatcher {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Dispatcher{
		sources: sources,
		timeout: opts.FetchTimeout,
		limit:   opts.MaxConcurrency,
		log:     slog.Default().With("component", "dispatch"),
	}
}

// Dispatch runs every action of plan. emit receives the preview first and
// then one outcome per action in completion order; it is never called
// concurrently. Dispatch returns the outcomes indexed by action position
// once all have completed. Cancelling ctx makes pending fetches fail.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *domain.ActionPlan, emit func(Event)) []*Outcome {
	if emit == nil {
		emit = func(Event) {}
	}
	var emitMu sync.Mutex
	send := func(ev Event) {
		emitMu.Lock()
		defer emitMu.Unlock()
		emit(ev)
	}

	keyDates := plan.KeyDates
	if keyDates == nil {
		keyDates = []domain.KeyDate{}
	}
	send(Event{Preview: &Preview{
		Description: plan.Description,
		KeyDates:    keyDates,
		Actions:     len(plan.Actions),
	}})

	outcomes := make([]*Outcome, len(plan.Actions))
	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for i, action := range plan.Actions {
		g.Go(func() error {
			start := time.Now()
			o := d.run(ctx, i, action)
			o.Elapsed = time.Since(start)
			outcomes[i] = o

			d.log.Debug("action completed",
				"index", i,
				"type", action.Type,
				"symbols", action.Symbols,
				"status", o.Status,
				"elapsed_ms", o.Elapsed.Milliseconds(),
				"error", o.Message(),
			)
			send(Event{Outcome: o})
			// Failures travel in the outcome so siblings keep running.
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (d *Dispatcher) run(ctx context.Context, i int, a domain.Action) *Outcome {
	o := &Outcome{Index: i, Action: a}
	if !a.Supported() {
		o.Status = StatusUnsupported
		reason := a.Reason
		if reason == "" {
			reason = fmt.Sprintf("action type %q is not supported", a.RawType)
		}
		o.Err = domain.NewError(domain.CodeUnsupportedAction, reason, nil)
		return o
	}

	fctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var err error
	switch a.Type {
	case domain.ActionHistory, domain.ActionCompare:
		o.CompareMode = a.CompareMode()
		err = d.history(fctx, a, o)
	case domain.ActionMetrics:
		err = d.metrics(fctx, a, o)
	case domain.ActionNews:
		err = d.news(fctx, a, o)
	case domain.ActionEarnings:
		err = d.earnings(fctx, a, o)
	}
	if err != nil {
		o.Status = StatusFailure
		o.Err = d.classify(ctx, fctx, err)
		return o
	}
	if o.Status == "" {
		o.Status = StatusSuccess
	}
	return o
}

// classify wraps a fetch error with timeout when the per-fetch deadline,
// not the caller, ended the call.
func (d *Dispatcher) classify(parent, fctx context.Context, err error) error {
	if domain.CodeOf(err) != "" {
		return err
	}
	if parent.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.CodeTimeout, fmt.Sprintf("fetch timed out after %s", d.timeout), err)
	}
	return domain.NewError(domain.CodeFetchFailed, "fetch failed", err)
}

func noSource(kind string) error {
	return domain.NewError(domain.CodeFetchFailed, "no "+kind+" source configured", nil)
}

func empty(o *Outcome, what string) {
	o.Status = StatusEmpty
	o.Err = domain.NewError(domain.CodeEmptyResult, "no "+what+" found", nil)
}

func (d *Dispatcher) history(ctx context.Context, a domain.Action, o *Outcome) error {
	if d.sources.History == nil {
		return noSource("history")
	}
	series, err := d.sources.History.History(ctx, a.Symbols, a.StartDate, a.EndDate)
	if err != nil {
		return err
	}
	o.Series = make(map[string]domain.Series, len(a.Symbols))
	points := 0
	for _, sym := range a.Symbols {
		s := series[sym]
		if s == nil {
			s = domain.Series{}
		}
		o.Series[sym] = s
		points += len(s)
	}
	if points == 0 {
		empty(o, "price history")
	}
	return nil
}

func (d *Dispatcher) metrics(ctx context.Context, a domain.Action, o *Outcome) error {
	if d.sources.Metrics == nil {
		return noSource("metrics")
	}
	raw, err := d.sources.Metrics.Metrics(ctx, a.Symbols, a.MetricNames)
	if err != nil {
		return err
	}
	o.Metrics = domain.RawMetrics{}
	for _, sym := range a.Symbols {
		if values := raw[sym]; len(values) > 0 {
			o.Metrics[sym] = values
		}
	}
	if len(o.Metrics) == 0 {
		empty(o, "metrics")
	}
	return nil
}

// news fetches each symbol concurrently and merges the items in symbol
// order. The action fails only when every symbol fails.
func (d *Dispatcher) news(ctx context.Context, a domain.Action, o *Outcome) error {
	if d.sources.News == nil {
		return noSource("news")
	}
	items := make([][]domain.NewsItem, len(a.Symbols))
	errs := make([]error, len(a.Symbols))
	var wg sync.WaitGroup
	for i, sym := range a.Symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items[i], errs[i] = d.sources.News.News(ctx, sym)
		}()
	}
	wg.Wait()

	o.News = []domain.NewsItem{}
	failed := 0
	for i, sym := range a.Symbols {
		if errs[i] != nil {
			failed++
			d.log.Warn("news fetch failed", "symbol", sym, "error", errs[i])
			continue
		}
		o.News = append(o.News, items[i]...)
	}
	if failed == len(a.Symbols) {
		return errors.Join(errs...)
	}
	if len(o.News) == 0 {
		empty(o, "news")
	}
	return nil
}

func (d *Dispatcher) earnings(ctx context.Context, a domain.Action, o *Outcome) error {
	if d.sources.Earnings == nil {
		return noSource("earnings")
	}
	raw, err := d.sources.Earnings.Earnings(ctx, a.Symbols)
	if err != nil {
		return err
	}
	o.Earnings = make(map[string]domain.Earnings, len(a.Symbols))
	found := false
	for _, sym := range a.Symbols {
		e, ok := raw[sym]
		if !ok {
			continue
		}
		o.Earnings[sym] = e
		found = found || !e.Empty()
	}
	if !found {
		empty(o, "earnings")
	}
	return nil
}
