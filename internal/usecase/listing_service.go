package usecase

import (
	"context"
	stderrors "errors"

	"jobboard/internal/domain"
	"jobboard/internal/errors"
	"jobboard/internal/listsync"
	"jobboard/internal/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PostingReader is the read side of a posting store.
type PostingReader interface {
	domain.SnapshotSource
	Get(ctx context.Context, id string) (*domain.Posting, error)
}

// ListingPage is one rendered page of the public listing.
type ListingPage struct {
	listsync.View
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PostingDetail is a single posting with its shareable link.
type PostingDetail struct {
	domain.Posting
	Tags      []string `json:"tags"`
	DetailURL string   `json:"detail_url"`
}

// ListingService serves the public read surface: pages from the live
// engine and point reads from the store.
type ListingService struct {
	engine  *listsync.Engine
	reader  PostingReader
	baseURL string
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewListingService(engine *listsync.Engine, reader PostingReader, baseURL string, logger *zap.Logger) *ListingService {
	return &ListingService{
		engine:  engine,
		reader:  reader,
		baseURL: baseURL,
		logger:  logger.With(zap.String("component", "listing-service")),
		tracer:  otel.Tracer("jobboard-usecase"),
	}
}

// Page renders the first visible matches of query. A non-positive visible
// falls back to the engine's page size.
func (s *ListingService) Page(ctx context.Context, query string, visible int) ListingPage {
	_, span := s.tracer.Start(ctx, "service.Page")
	defer span.End()

	if visible <= 0 {
		visible = s.engine.PageSize()
	}
	span.SetAttributes(attribute.String("query", query), attribute.Int("visible", visible))

	state := listsync.ViewState{Query: query, Visible: visible}
	page := ListingPage{View: s.engine.Render(state)}
	status, err := s.engine.Status()
	page.Status = status.String()
	if err != nil {
		page.Error = err.Error()
	}
	return page
}

func (s *ListingService) Detail(ctx context.Context, id string) (*PostingDetail, error) {
	ctx, span := s.tracer.Start(ctx, "service.Detail")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	p, err := s.reader.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, domain.ErrPostingNotFound) {
			return nil, errors.NotFound("Job not found", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get posting from store")
		return nil, err
	}
	return &PostingDetail{
		Posting:   *p,
		Tags:      p.Tags(),
		DetailURL: notify.DetailURL(s.baseURL, p.ID),
	}, nil
}

// Snapshot reads the full collection from the store, newest first.
func (s *ListingService) Snapshot(ctx context.Context) ([]domain.Posting, error) {
	ctx, span := s.tracer.Start(ctx, "service.Snapshot")
	defer span.End()

	postings, err := s.reader.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read snapshot from store")
		s.logger.Error("snapshot read failed", zap.Error(err))
		return nil, err
	}
	if postings == nil {
		postings = []domain.Posting{}
	}
	return postings, nil
}
