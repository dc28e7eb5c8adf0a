// Package session is the orchestrator: it owns the lifecycle of the current
// query, runs interpretation, validation and dispatch, adopts results into
// renderable state and exposes the chart state machine.
package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockchat/internal/align"
	"stockchat/internal/chart"
	"stockchat/internal/dashboard"
	"stockchat/internal/dispatch"
	"stockchat/internal/domain"
	"stockchat/internal/interpreter"
	"stockchat/internal/plan"
)

// EmptyQueryMessage is returned for blank submissions.
const EmptyQueryMessage = "Please enter a query"

// QueryLog records finished queries.
type QueryLog interface {
	Record(ctx context.Context, rec domain.QueryRecord) error
}

// Options wires an Orchestrator.
type Options struct {
	Interpreter interpreter.Interpreter
	Validator   *plan.Validator
	Dispatcher  *dispatch.Dispatcher
	Palette     dashboard.Palette
	AxisPolicy  align.AxisPolicy
	// KeyDateDays is the hover distance for key date annotations.
	KeyDateDays int
	QueryLog    QueryLog
}

// state is the derived state of the current query. Maps and slices are
// replaced, never mutated, once a snapshot may reference them.
type state struct {
	query       *domain.Query
	status      Status
	err         string
	errCode     string
	description string
	keyDates    []domain.KeyDate
	planSymbols []string
	actions     int
	pending     int

	series      map[string]domain.Series
	symbols     []string
	compareMode bool
	colors      map[string]string
	title       string
	metrics     domain.MetricBundle
	news        map[int][]domain.NewsItem
	earnings    map[string]domain.Earnings

	sections    map[string]Section
	diagnostics []Diagnostic
	succeeded   int
	failed      int
	updatedAt   time.Time
}

func emptyState(now time.Time) state {
	return state{
		status:    StatusIdle,
		keyDates:  []domain.KeyDate{},
		series:    map[string]domain.Series{},
		colors:    map[string]string{},
		metrics:   domain.MetricBundle{},
		news:      map[int][]domain.NewsItem{},
		earnings:  map[string]domain.Earnings{},
		sections:  map[string]Section{},
		updatedAt: now,
	}
}

// Orchestrator composes the pipeline for one user at a time. Every
// completion carries the generation of its query and is dropped unless it
// is still the latest.
type Orchestrator struct {
	interp     interpreter.Interpreter
	validator  *plan.Validator
	dispatcher *dispatch.Dispatcher
	palette    dashboard.Palette
	policy     align.AxisPolicy
	keyDays    int
	queryLog   QueryLog
	chart      *chart.Machine

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	st     state

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan *Snapshot

	now func() time.Time
	log *slog.Logger
}

// New creates an Orchestrator. Palette, validator and axis policy default
// when unset.
func New(opts Options) *Orchestrator {
	if opts.Validator == nil {
		opts.Validator = plan.NewValidator(nil)
	}
	if len(opts.Palette) == 0 {
		opts.Palette = dashboard.DefaultPalette
	}
	if opts.AxisPolicy == "" {
		opts.AxisPolicy = align.AxisUnion
	}
	if opts.KeyDateDays <= 0 {
		opts.KeyDateDays = 3
	}
	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		interp:     opts.Interpreter,
		validator:  opts.Validator,
		dispatcher: opts.Dispatcher,
		palette:    opts.Palette,
		policy:     opts.AxisPolicy,
		keyDays:    opts.KeyDateDays,
		queryLog:   opts.QueryLog,
		chart:      chart.NewMachine(),
		base:       base,
		stop:       stop,
		subs:       make(map[int]chan *Snapshot),
		now:        time.Now,
		log:        slog.Default().With("component", "session"),
	}
	o.st = emptyState(o.now())
	return o
}

// Submit starts a new query in the background and returns immediately. Any
// query still in flight is cancelled and its results are discarded.
func (o *Orchestrator) Submit(text string) (domain.Query, error) {
	q, ctx, cancel, err := o.begin(o.base, text)
	if err != nil {
		return domain.Query{}, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.execute(ctx, q)
	}()
	return q, nil
}

// Ask runs a query to completion and returns the resulting snapshot. A
// stale_response error is returned with the snapshot when a newer query
// superseded this one.
func (o *Orchestrator) Ask(ctx context.Context, text string) (*Snapshot, error) {
	q, qctx, cancel, err := o.begin(ctx, text)
	if err != nil {
		return nil, err
	}
	defer cancel()
	o.execute(qctx, q)

	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.snapshotLocked()
	if o.gen != q.Generation {
		return snap, domain.NewError(domain.CodeStaleResponse, "query superseded by a newer submission", nil)
	}
	if snap.Status == StatusError {
		return snap, domain.NewError(snap.ErrorCode, snap.Error, nil)
	}
	return snap, nil
}

// begin registers a new generation, cancels the previous query and resets
// all derived state before anything is dispatched.
func (o *Orchestrator) begin(parent context.Context, text string) (domain.Query, context.Context, context.CancelFunc, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Query{}, nil, nil, domain.NewError(domain.CodeInvalidInput, EmptyQueryMessage, nil)
	}
	if o.base.Err() != nil {
		return domain.Query{}, nil, nil, errors.New("session closed")
	}

	ctx, cancel := context.WithCancel(parent)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	q := domain.Query{
		ID:          uuid.NewString(),
		Text:        text,
		Generation:  o.gen,
		SubmittedAt: o.now(),
	}
	o.cancel = cancel
	o.st = emptyState(q.SubmittedAt)
	o.st.query = &q
	o.st.status = StatusInterpreting
	o.chart.Load(nil)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Info("query submitted", "query_id", q.ID, "generation", q.Generation, "text", q.Text)
	o.publish(snap)
	return q, ctx, cancel, nil
}

func (o *Orchestrator) execute(ctx context.Context, q domain.Query) {
	if o.interp == nil {
		o.fail(q, domain.NewError(domain.CodeInterpreter, "no interpreter configured", nil))
		return
	}
	raw, err := o.interp.Interpret(ctx, q.Text)
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.NewError(domain.CodeInterpreter, "query interpretation failed", err)
		}
		o.fail(q, err)
		return
	}
	p, err := o.validator.Validate(raw)
	if err != nil {
		o.fail(q, err)
		return
	}
	if !o.adoptPlan(q.Generation, p) {
		return
	}
	if o.dispatcher == nil {
		o.fail(q, domain.NewError(domain.CodeFetchFailed, "no dispatcher configured", nil))
		return
	}
	o.dispatcher.Dispatch(ctx, p, func(ev dispatch.Event) {
		o.apply(q.Generation, ev)
	})
	o.finish(q)
}

// current reports whether gen is the latest generation. Callers hold o.mu.
func (o *Orchestrator) current(gen uint64, what string) bool {
	if gen == o.gen {
		return true
	}
	o.log.Debug("stale completion dropped", "what", what, "generation", gen, "current", o.gen)
	return false
}

func (o *Orchestrator) adoptPlan(gen uint64, p *domain.ActionPlan) bool {
	o.mu.Lock()
	if !o.current(gen, "plan") {
		o.mu.Unlock()
		return false
	}
	o.st.planSymbols = p.Symbols()
	o.st.colors = o.palette.Assign(o.st.planSymbols)
	o.st.status = StatusFetching
	o.st.actions = len(p.Actions)
	o.st.pending = len(p.Actions)
	sections := make(map[string]Section)
	for _, a := range p.Actions {
		if name := sectionOf(a.Type); name != "" {
			s := sections[name]
			s.Status = SectionLoading
			s.Pending++
			sections[name] = s
		}
	}
	o.st.sections = sections
	o.st.updatedAt = o.now()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(snap)
	return true
}

func (o *Orchestrator) apply(gen uint64, ev dispatch.Event) {
	o.mu.Lock()
	if !o.current(gen, "dispatch event") {
		o.mu.Unlock()
		return
	}
	switch {
	case ev.Preview != nil:
		o.st.description = ev.Preview.Description
		o.st.keyDates = ev.Preview.KeyDates
	case ev.Outcome != nil:
		o.applyOutcomeLocked(ev.Outcome)
	}
	o.st.updatedAt = o.now()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(snap)
}

// applyOutcomeLocked merges one outcome into its own section. Each section
// is rebuilt from copies and swapped in whole.
func (o *Orchestrator) applyOutcomeLocked(out *dispatch.Outcome) {
	st := &o.st
	st.pending--
	switch out.Status {
	case dispatch.StatusSuccess:
		st.succeeded++
	case dispatch.StatusFailure:
		st.failed++
	}
	if out.Status != dispatch.StatusSuccess {
		st.diagnostics = append(slices.Clip(st.diagnostics), Diagnostic{
			Index:   out.Index,
			Action:  out.Action.RawType,
			Symbols: out.Action.Symbols,
			Status:  out.Status,
			Code:    domain.CodeOf(out.Err),
			Message: message(out.Err),
		})
	}

	if out.Status == dispatch.StatusSuccess {
		switch out.Action.Type {
		case domain.ActionHistory, domain.ActionCompare:
			o.adoptSeriesLocked(out)
		case domain.ActionMetrics:
			metrics := maps.Clone(st.metrics)
			for sym, values := range dashboard.NormalizeMetrics(out.Metrics) {
				metrics[sym] = values
			}
			st.metrics = metrics
		case domain.ActionNews:
			news := maps.Clone(st.news)
			news[out.Index] = out.News
			st.news = news
		case domain.ActionEarnings:
			earnings := maps.Clone(st.earnings)
			for sym, e := range out.Earnings {
				earnings[sym] = e
			}
			st.earnings = earnings
		}
	}

	name := sectionOf(out.Action.Type)
	if name == "" {
		return
	}
	sections := maps.Clone(st.sections)
	s := sections[name]
	s.Pending--
	if rank(out.Status) > rank(s.Status) {
		s.Status = out.Status
		s.Code = domain.CodeOf(out.Err)
		s.Message = message(out.Err)
	}
	sections[name] = s
	st.sections = sections
}

// adoptSeriesLocked merges history by symbol, realigns the whole table and
// hands it to the chart.
func (o *Orchestrator) adoptSeriesLocked(out *dispatch.Outcome) {
	st := &o.st
	series := maps.Clone(st.series)
	for sym, s := range out.Series {
		if len(s) > 0 {
			series[sym] = s
		}
	}

	order := st.planSymbols
	if len(order) == 0 {
		order = out.Action.Symbols
	}
	symbols := make([]string, 0, len(series))
	for _, sym := range order {
		if _, ok := series[sym]; ok {
			symbols = append(symbols, sym)
		}
	}

	st.series = series
	st.symbols = symbols
	st.compareMode = st.compareMode || out.CompareMode || len(symbols) > 1
	st.title = chart.Title(symbols)
	o.chart.Load(align.Align(symbols, series, o.policy))
}

func (o *Orchestrator) fail(q domain.Query, err error) {
	o.mu.Lock()
	if !o.current(q.Generation, "error") {
		o.mu.Unlock()
		return
	}
	o.st.status = StatusError
	o.st.err = message(err)
	o.st.errCode = domain.CodeOf(err)
	o.st.updatedAt = o.now()
	snap := o.snapshotLocked()
	rec := o.recordLocked(q, snap)
	o.mu.Unlock()

	o.log.Warn("query failed", "query_id", q.ID, "error", err)
	o.publish(snap)
	o.record(rec)
}

func (o *Orchestrator) finish(q domain.Query) {
	o.mu.Lock()
	if !o.current(q.Generation, "completion") {
		o.mu.Unlock()
		return
	}
	o.st.status = StatusReady
	o.st.updatedAt = o.now()
	snap := o.snapshotLocked()
	rec := o.recordLocked(q, snap)
	o.mu.Unlock()

	o.log.Info("query completed",
		"query_id", q.ID,
		"generation", q.Generation,
		"succeeded", rec.Succeeded,
		"failed", rec.Failed,
		"duration_ms", rec.Duration.Milliseconds(),
	)
	o.publish(snap)
	o.record(rec)
}

func (o *Orchestrator) recordLocked(q domain.Query, snap *Snapshot) domain.QueryRecord {
	return domain.QueryRecord{
		QueryID:     q.ID,
		Text:        q.Text,
		Description: snap.Description,
		Actions:     o.st.actions,
		Succeeded:   o.st.succeeded,
		Failed:      o.st.failed,
		Status:      string(snap.Status),
		Error:       snap.Error,
		SubmittedAt: q.SubmittedAt,
		Duration:    o.now().Sub(q.SubmittedAt),
	}
}

func (o *Orchestrator) record(rec domain.QueryRecord) {
	if o.queryLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.queryLog.Record(ctx, rec); err != nil {
		o.log.Warn("query log write failed", "query_id", rec.QueryID, "error", err)
	}
}

// message returns the user-facing part of err.
func message(err error) string {
	if err == nil {
		return ""
	}
	var coded *domain.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() *Snapshot {
	st := &o.st
	view := o.chart.View()

	indexes := slices.Sorted(maps.Keys(st.news))
	news := []domain.NewsItem{}
	for _, i := range indexes {
		news = append(news, st.news[i]...)
	}

	snap := &Snapshot{
		Status:      st.status,
		Loading:     st.status == StatusInterpreting || st.status == StatusFetching,
		Error:       st.err,
		ErrorCode:   st.errCode,
		Description: st.description,
		KeyDates:    st.keyDates,
		Title:       st.title,
		CompareMode: st.compareMode,
		Symbols:     slices.Clone(st.symbols),
		Colors:      st.colors,
		Table:       view,
		Selection:   o.chart.State(),
		Markers:     chart.Markers(view, st.keyDates),
		Metrics:     st.metrics,
		News:        news,
		Earnings:    st.earnings,
		Sections:    maps.Clone(st.sections),
		Diagnostics: slices.Clone(st.diagnostics),
		UpdatedAt:   st.updatedAt,
	}
	if snap.Symbols == nil {
		snap.Symbols = []string{}
	}
	if snap.Diagnostics == nil {
		snap.Diagnostics = []Diagnostic{}
	}
	if st.query != nil {
		q := *st.query
		snap.Query = &q
	}
	return snap
}

// ---------------------------------------------------------------------------
// Chart interaction
// ---------------------------------------------------------------------------

// Gesture applies a date-domain gesture to the chart.
func (o *Orchestrator) Gesture(g chart.Gesture) *Snapshot {
	o.chart.Handle(g)
	return o.changed()
}

// Pointer applies a raw pointer or touch event to the chart.
func (o *Orchestrator) Pointer(in chart.PointerInput) *Snapshot {
	o.chart.Feed(in)
	return o.changed()
}

// ToggleMode advances the chart mode.
func (o *Orchestrator) ToggleMode() *Snapshot {
	o.chart.ToggleMode()
	return o.changed()
}

// SetMode switches the chart mode.
func (o *Orchestrator) SetMode(m chart.Mode) *Snapshot {
	o.chart.SetMode(m)
	return o.changed()
}

// ResetZoom restores the full table.
func (o *Orchestrator) ResetZoom() *Snapshot {
	o.chart.Reset()
	return o.changed()
}

// Readout returns the hover readout at date with nearby key dates.
func (o *Orchestrator) Readout(date string) (chart.Readout, error) {
	r, ok := o.chart.Readout(date)
	if !ok {
		return chart.Readout{}, domain.NewError(domain.CodeNotFound, "no row for date "+date, nil)
	}
	o.mu.Lock()
	keyDates := o.st.keyDates
	o.mu.Unlock()
	r.KeyDates = chart.NearbyKeyDates(date, keyDates, o.keyDays)
	sort.SliceStable(r.KeyDates, func(i, j int) bool { return r.KeyDates[i].Date < r.KeyDates[j].Date })
	return r, nil
}

func (o *Orchestrator) changed() *Snapshot {
	o.mu.Lock()
	o.st.updatedAt = o.now()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snap)
	return snap
}

// Close cancels any query in flight, waits for background work and closes
// every subscription.
func (o *Orchestrator) Close() {
	o.stop()
	o.wg.Wait()
	o.closeSubscribers()
}
