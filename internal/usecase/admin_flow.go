// internal/usecase/admin_flow.go
package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/errors"
	"jobboard/internal/metrics"
	"jobboard/internal/notify"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxNotifyFailures = 50

// NotifyFailure records a notification that could not be delivered.
type NotifyFailure struct {
	PostingID string    `json:"posting_id"`
	Role      string    `json:"role"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// AdminFlowOptions configures an AdminFlow.
type AdminFlowOptions struct {
	PublicBaseURL string
	NotifyTimeout time.Duration
}

// AdminFlow implements the administrator's create/update/delete surface
// and keeps the admin's local list of postings in step with the store.
type AdminFlow struct {
	store    domain.PostingStore
	notifier domain.Notifier
	validate *validator.Validate
	opts     AdminFlowOptions
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.RWMutex
	local    []domain.Posting
	failures []NotifyFailure

	inflight sync.WaitGroup
}

// NewAdminFlow creates an AdminFlow with an empty local list.
func NewAdminFlow(store domain.PostingStore, notifier domain.Notifier, opts AdminFlowOptions, logger *zap.Logger) *AdminFlow {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 30 * time.Second
	}
	return &AdminFlow{
		store:    store,
		notifier: notifier,
		validate: NewPostingValidator(),
		opts:     opts,
		logger:   logger.With(zap.String("component", "admin-flow")),
		tracer:   otel.Tracer("jobboard-usecase"),
		now:      time.Now,
	}
}

func (f *AdminFlow) authorize(session domain.Session) error {
	if session.Token == "" {
		return errors.Unauthorized("sign in required", nil)
	}
	if !session.Valid(f.now()) {
		return errors.Unauthorized("session expired, sign in again", domain.ErrSessionExpired)
	}
	return nil
}

// Load replaces the local list with the store's snapshot.
func (f *AdminFlow) Load(ctx context.Context, session domain.Session) ([]domain.Posting, error) {
	ctx, span := f.tracer.Start(ctx, "service.AdminLoad")
	defer span.End()

	if err := f.authorize(session); err != nil {
		span.RecordError(err)
		return nil, err
	}

	postings, err := f.store.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load postings from store")
		f.logger.Error("failed to load postings", zap.Error(err))
		return nil, err
	}

	f.mu.Lock()
	f.local = append([]domain.Posting(nil), postings...)
	f.mu.Unlock()
	span.SetAttributes(attribute.Int("postings.count", len(postings)))
	return f.List(), nil
}

// List returns a copy of the local list.
func (f *AdminFlow) List() []domain.Posting {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Posting, len(f.local))
	copy(out, f.local)
	return out
}

// Create validates fields, inserts the posting and prepends the stored
// record to the local list. The channel notification is sent in the
// background; its failure never undoes the insert.
func (f *AdminFlow) Create(ctx context.Context, session domain.Session, fields domain.PostingFields) (*domain.Posting, error) {
	ctx, span := f.tracer.Start(ctx, "service.CreatePosting")
	defer span.End()

	if err := f.check(session, fields); err != nil {
		span.RecordError(err)
		metrics.AdminMutationsTotal.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}

	created, err := f.store.Insert(ctx, fields)
	if err == nil && created == nil {
		err = stderrors.New("failed to create posting: no data returned")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert posting")
		metrics.AdminMutationsTotal.WithLabelValues("create", "failed").Inc()
		f.logger.Error("error creating posting", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("posting.id", created.ID))

	f.mu.Lock()
	f.local = append([]domain.Posting{*created}, f.local...)
	f.mu.Unlock()
	metrics.AdminMutationsTotal.WithLabelValues("create", "success").Inc()
	f.logger.Info("posting created", zap.String("id", created.ID), zap.String("role", created.Role))

	f.notifyAsync(*created)
	return created, nil
}

// Update validates fields and replaces the posting with the store's copy.
func (f *AdminFlow) Update(ctx context.Context, session domain.Session, id string, fields domain.PostingFields) (*domain.Posting, error) {
	ctx, span := f.tracer.Start(ctx, "service.UpdatePosting")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	if err := f.check(session, fields); err != nil {
		span.RecordError(err)
		metrics.AdminMutationsTotal.WithLabelValues("update", "rejected").Inc()
		return nil, err
	}

	updated, err := f.store.Update(ctx, id, fields)
	if err == nil && updated == nil {
		err = stderrors.New("no data returned from update")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update posting")
		metrics.AdminMutationsTotal.WithLabelValues("update", "failed").Inc()
		f.logger.Error("error updating posting", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	f.mu.Lock()
	for i := range f.local {
		if f.local[i].ID == id {
			f.local[i] = *updated
		}
	}
	f.mu.Unlock()
	metrics.AdminMutationsTotal.WithLabelValues("update", "success").Inc()
	return updated, nil
}

// Delete removes the posting from the store, then from the local list.
func (f *AdminFlow) Delete(ctx context.Context, session domain.Session, id string) error {
	ctx, span := f.tracer.Start(ctx, "service.DeletePosting")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	if err := f.authorize(session); err != nil {
		span.RecordError(err)
		metrics.AdminMutationsTotal.WithLabelValues("delete", "rejected").Inc()
		return err
	}

	if err := f.store.Delete(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete posting")
		metrics.AdminMutationsTotal.WithLabelValues("delete", "failed").Inc()
		f.logger.Error("error deleting posting", zap.String("id", id), zap.Error(err))
		return err
	}

	f.mu.Lock()
	kept := f.local[:0:0]
	for _, p := range f.local {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	f.local = kept
	f.mu.Unlock()
	metrics.AdminMutationsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

func (f *AdminFlow) check(session domain.Session, fields domain.PostingFields) error {
	if err := f.authorize(session); err != nil {
		return err
	}
	if err := validateFields(f.validate, fields); err != nil {
		return errors.InvalidInput("posting form is invalid", err)
	}
	return nil
}

func (f *AdminFlow) notifyAsync(p domain.Posting) {
	text := notify.Compose(p, f.opts.PublicBaseURL)

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.opts.NotifyTimeout)
		defer cancel()
		ctx, span := f.tracer.Start(ctx, "service.NotifyPosting",
			trace.WithAttributes(attribute.String("posting.id", p.ID)))
		defer span.End()

		if err := f.notifier.Notify(ctx, text); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "notification failed")
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			f.logger.Warn("failed to send posting notification",
				zap.String("id", p.ID),
				zap.Error(err))
			f.recordFailure(NotifyFailure{PostingID: p.ID, Role: p.Role, Error: err.Error(), At: f.now()})
			return
		}
		metrics.NotificationsTotal.WithLabelValues("success").Inc()
	}()
}

func (f *AdminFlow) recordFailure(nf NotifyFailure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, nf)
	if len(f.failures) > maxNotifyFailures {
		f.failures = f.failures[len(f.failures)-maxNotifyFailures:]
	}
}

// NotifyFailures returns recent notification failures, oldest first.
func (f *AdminFlow) NotifyFailures() []NotifyFailure {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]NotifyFailure(nil), f.failures...)
}

// Close waits for background notifications to finish or ctx to expire.
func (f *AdminFlow) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
