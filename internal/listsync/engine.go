// internal/listsync/engine.go
package listsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jobboard/internal/domain"
	"jobboard/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on an engine that has been closed.
var ErrClosed = errors.New("listing engine closed")

// Status is the load state of an engine.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Options configures an Engine.
type Options struct {
	Scope    domain.FeedScope
	PageSize int

	// OnApplied, if set, is called after every in-scope feed event the
	// engine folds in, whether or not it changed the collection. It runs
	// on the caller's goroutine without the engine lock held.
	OnApplied func(domain.FeedEvent)
}

// Engine keeps an in-memory, live copy of the postings table and serves
// a searchable, paginated view of it. All state changes go through one
// mutex; feed events are applied in delivery order by a single goroutine.
type Engine struct {
	source    domain.SnapshotSource
	feed      domain.ChangeFeed
	scope     domain.FeedScope
	pageSize  int
	onApplied func(domain.FeedEvent)
	logger    *zap.Logger
	tracer    trace.Tracer

	mu       sync.RWMutex
	postings []domain.Posting
	status   Status
	loadErr  error
	view     ViewState
	closed   bool
	changes  chan struct{}

	// fetching counts snapshot fetches in flight. While it is non-zero,
	// applied feed events are also appended to pending so a fetch that
	// started before them can replay them onto its snapshot.
	fetching int
	pending  []domain.FeedEvent

	// subMu serializes Subscribe and Close.
	subMu  sync.Mutex
	active *activeSubscription
}

// NewEngine creates an engine in the loading state. feed may be nil for
// engines that only ever serve snapshots.
func NewEngine(source domain.SnapshotSource, feed domain.ChangeFeed, opts Options, logger *zap.Logger) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Engine{
		source:    source,
		feed:      feed,
		scope:     opts.Scope,
		pageSize:  opts.PageSize,
		onApplied: opts.OnApplied,
		logger:    logger.With(zap.String("component", "listsync")),
		tracer:    otel.Tracer("jobboard-listsync"),
		status:    StatusLoading,
		view:      NewViewState(opts.PageSize),
		changes:   make(chan struct{}, 1),
	}
}

// Initialize fetches the full snapshot and installs it. On failure the
// collection is left empty and the engine reports StatusFailed; there is
// no retry.
func (e *Engine) Initialize(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "listsync.Initialize")
	defer span.End()

	mark := e.beginFetch()
	postings, err := e.source.Snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.endFetch()
	if e.closed {
		e.logger.Debug("dropping snapshot that completed after close")
		return ErrClosed
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load snapshot")
		metrics.SnapshotLoadsTotal.WithLabelValues("failed").Inc()
		e.logger.Error("failed to load postings snapshot", zap.Error(err))

		e.postings = nil
		e.status = StatusFailed
		e.loadErr = err
		metrics.PostingsLoaded.Set(0)
		e.signal()
		return fmt.Errorf("load postings snapshot: %w", err)
	}

	e.install(postings, mark)
	span.SetAttributes(attribute.Int("postings.count", len(e.postings)))
	e.logger.Info("postings snapshot loaded", zap.Int("count", len(e.postings)))
	return nil
}

// Resync replaces the collection with a fresh snapshot. Unlike Initialize
// a failed fetch keeps the current collection.
func (e *Engine) Resync(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "listsync.Resync")
	defer span.End()

	mark := e.beginFetch()
	postings, err := e.source.Snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.endFetch()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resync snapshot")
		metrics.SnapshotLoadsTotal.WithLabelValues("failed").Inc()
		e.logger.Warn("resync failed, keeping current postings", zap.Error(err))
		return fmt.Errorf("resync postings: %w", err)
	}
	if e.closed {
		return ErrClosed
	}
	e.install(postings, mark)
	e.logger.Debug("postings resynced", zap.Int("count", len(e.postings)))
	return nil
}

// beginFetch registers a snapshot fetch and returns the position in the
// pending log from which its replay starts.
func (e *Engine) beginFetch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetching++
	return len(e.pending)
}

// endFetch must be called with mu held.
func (e *Engine) endFetch() {
	e.fetching--
	if e.fetching == 0 {
		e.pending = nil
	}
}

// install replaces the collection with a fetched snapshot, then replays
// the feed events applied since mark. It must be called with mu held.
func (e *Engine) install(postings []domain.Posting, mark int) {
	sorted := make([]domain.Posting, len(postings))
	copy(sorted, postings)
	sortNewestFirst(sorted)

	for _, ev := range e.pending[mark:] {
		sorted, _ = Reduce(sorted, ev)
	}

	e.postings = sorted
	e.status = StatusReady
	e.loadErr = nil
	metrics.SnapshotLoadsTotal.WithLabelValues("success").Inc()
	metrics.PostingsLoaded.Set(float64(len(sorted)))
	e.signal()
}

type activeSubscription struct {
	sub    domain.Subscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// release closes the handle exactly once and waits for the pump to exit.
func (a *activeSubscription) release() error {
	a.once.Do(func() {
		a.cancel()
		a.err = a.sub.Close()
		<-a.done
	})
	return a.err
}

// Subscribe opens the change feed for the engine's table and starts
// applying its events. Calling it again releases the previous
// subscription first, so at most one is ever active.
func (e *Engine) Subscribe(ctx context.Context) error {
	if e.feed == nil {
		return errors.New("listing engine has no change feed")
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()

	if e.isClosed() {
		return ErrClosed
	}
	if e.active != nil {
		if err := e.active.release(); err != nil {
			e.logger.Warn("failed to release previous subscription", zap.Error(err))
		}
		e.active = nil
	}

	sub, err := e.feed.Subscribe(ctx, e.scope)
	if err != nil {
		return fmt.Errorf("subscribe to %s.%s: %w", e.scope.Schema, e.scope.Table, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	a := &activeSubscription{sub: sub, cancel: cancel, done: make(chan struct{})}
	e.active = a
	go e.pump(pumpCtx, a)

	e.logger.Info("subscribed to change feed",
		zap.String("schema", e.scope.Schema),
		zap.String("table", e.scope.Table))
	return nil
}

func (e *Engine) pump(ctx context.Context, a *activeSubscription) {
	defer close(a.done)
	events := a.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				e.logger.Warn("change feed closed by source")
				return
			}
			e.ApplyFeedEvent(ev)
		}
	}
}

// ApplyFeedEvent folds one change event into the collection and reports
// whether it changed anything. Events for other tables are ignored.
func (e *Engine) ApplyFeedEvent(ev domain.FeedEvent) bool {
	if !e.scope.Matches(ev) {
		metrics.FeedEventsTotal.WithLabelValues(string(ev.Kind), "ignored").Inc()
		return false
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if e.fetching > 0 {
		e.pending = append(e.pending, ev)
	}
	next, changed := Reduce(e.postings, ev)
	if changed {
		e.postings = next
		metrics.PostingsLoaded.Set(float64(len(next)))
		e.signal()
	}
	e.mu.Unlock()

	outcome := "noop"
	if changed {
		outcome = "applied"
	}
	metrics.FeedEventsTotal.WithLabelValues(string(ev.Kind), outcome).Inc()
	if e.onApplied != nil {
		e.onApplied(ev)
	}
	if !changed {
		e.logger.Debug("feed event had no effect",
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.PostingID()))
	}
	return changed
}

// SetSearchQuery replaces the active search text. The cursor is kept.
func (e *Engine) SetSearchQuery(q string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = e.view.WithQuery(q)
	e.signal()
}

// LoadMore reveals another page of matches.
func (e *Engine) LoadMore() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = e.view.More(e.pageSize)
	e.signal()
}

// CurrentView returns the first Visible postings matching the active query.
func (e *Engine) CurrentView() []domain.Posting {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Render(e.postings, e.view).Items
}

// Render derives a page for a caller-owned view state, leaving the
// engine's own state untouched.
func (e *Engine) Render(state ViewState) View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Render(e.postings, state)
}

// View returns the engine's own rendered page.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Render(e.postings, e.view)
}

// ViewState returns the engine's search text and cursor.
func (e *Engine) ViewState() ViewState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// PageSize is the LoadMore increment.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Postings returns a copy of the full canonical collection.
func (e *Engine) Postings() []domain.Posting {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Posting, len(e.postings))
	copy(out, e.postings)
	return out
}

// Status returns the load state and, for StatusFailed, the load error.
func (e *Engine) Status() (Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status, e.loadErr
}

// Changes delivers a signal after any state change. Signals coalesce.
func (e *Engine) Changes() <-chan struct{} {
	return e.changes
}

// signal must be called with mu held.
func (e *Engine) signal() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close releases the subscription, if any. Snapshots that complete
// afterwards are dropped. Close is safe to call more than once.
func (e *Engine) Close() error {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.active == nil {
		return nil
	}
	err := e.active.release()
	e.active = nil
	if err != nil {
		return fmt.Errorf("release subscription: %w", err)
	}
	e.logger.Info("change feed subscription released")
	return nil
}
