package nats

import (
	"context"
	"encoding/json"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/errors"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("jobboard/nats")

// DefaultSubject carries change events for the postings table.
const DefaultSubject = "jobboard.changes.jobs"

type Options struct {
	URL         string
	Subject     string
	ConnTimeout time.Duration
}

// Connect dials NATS and keeps reconnecting for as long as the process runs.
func Connect(opts Options) (*nats.Conn, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Timeout(opts.ConnTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Unavailable("connecting to NATS", err)
	}
	return conn, nil
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewPublisher(conn *nats.Conn, subject string, logger *zap.Logger) domain.FeedPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &natsPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With(zap.String("component", "nats-publisher")),
	}
}

func (p *natsPublisher) Publish(ctx context.Context, event domain.FeedEvent) error {
	_, span := tracer.Start(ctx, "PublishFeedEvent")
	defer span.End()

	data, err := encodeEvent(event)
	if err != nil {
		span.RecordError(err)
		return errors.Internal("marshaling feed event", err)
	}

	span.SetAttributes(
		attribute.String("nats.subject", p.subject),
		attribute.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(p.subject, data); err != nil {
		span.RecordError(err)
		p.logger.Error("failed to publish feed event",
			zap.String("id", event.PostingID()),
			zap.Error(err))
		return errors.Unavailable("publishing to NATS", err)
	}

	p.logger.Debug("published feed event",
		zap.String("id", event.PostingID()),
		zap.String("type", string(event.Kind)),
		zap.String("subject", p.subject))
	return nil
}

func (p *natsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func encodeEvent(event domain.FeedEvent) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(data []byte) (domain.FeedEvent, error) {
	var event domain.FeedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, err
	}
	switch event.Kind {
	case domain.FeedInsert, domain.FeedUpdate, domain.FeedDelete:
	default:
		return event, errors.InvalidInput("unknown feed event type "+string(event.Kind), nil)
	}
	return event, nil
}
