// internal/infra/postgres/store.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"jobboard/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const postingColumns = `id::text, role, company, company_url, description, heading, applylink, "desc", created_at`

// invalidTextRepresentation is raised when an id is not a valid UUID.
const invalidTextRepresentation = "22P02"

// NewPool opens a connection pool.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Store is the Postgres-backed posting store.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
	tracer trace.Tracer
}

var _ domain.PostingStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, scope domain.FeedScope, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		table:  pgx.Identifier{scope.Schema, scope.Table}.Sanitize(),
		logger: logger.With(zap.String("component", "postgres-store")),
		tracer: otel.Tracer("jobboard-postgres"),
	}
}

func scanPosting(row pgx.Row) (*domain.Posting, error) {
	var p domain.Posting
	if err := row.Scan(&p.ID, &p.Role, &p.Company, &p.CompanyURL, &p.Description, &p.Heading, &p.ApplyLink, &p.Desc, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// notFound maps a missing row or malformed id to ErrPostingNotFound.
func notFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation
}

func (s *Store) Snapshot(ctx context.Context) ([]domain.Posting, error) {
	ctx, span := s.tracer.Start(ctx, "repo.postgres.Snapshot")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+postingColumns+` FROM `+s.table+` ORDER BY created_at DESC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query postings")
		return nil, err
	}
	defer rows.Close()

	var out []domain.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("postings.count", len(out)))
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Posting, error) {
	ctx, span := s.tracer.Start(ctx, "repo.postgres.Get")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	p, err := scanPosting(s.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM `+s.table+` WHERE id = $1`, id))
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrPostingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get posting")
		return nil, err
	}
	return p, nil
}

func (s *Store) Insert(ctx context.Context, f domain.PostingFields) (*domain.Posting, error) {
	ctx, span := s.tracer.Start(ctx, "repo.postgres.Insert")
	defer span.End()

	p, err := scanPosting(s.pool.QueryRow(ctx, `
		INSERT INTO `+s.table+` (role, company, company_url, description, heading, applylink, "desc")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+postingColumns,
		f.Role, f.Company, f.CompanyURL, f.Description, f.Heading, f.ApplyLink, f.Desc,
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert posting")
		return nil, err
	}
	span.SetAttributes(attribute.String("posting.id", p.ID))
	return p, nil
}

func (s *Store) Update(ctx context.Context, id string, f domain.PostingFields) (*domain.Posting, error) {
	ctx, span := s.tracer.Start(ctx, "repo.postgres.Update")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	p, err := scanPosting(s.pool.QueryRow(ctx, `
		UPDATE `+s.table+`
		SET role = $2, company = $3, company_url = $4, description = $5, heading = $6, applylink = $7, "desc" = $8
		WHERE id = $1
		RETURNING `+postingColumns,
		id, f.Role, f.Company, f.CompanyURL, f.Description, f.Heading, f.ApplyLink, f.Desc,
	))
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrPostingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update posting")
		return nil, err
	}
	return p, nil
}

// Delete removes a posting. A missing or malformed id deletes nothing and
// is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "repo.postgres.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete posting")
		return err
	}
	span.SetAttributes(attribute.Int64("rows_affected", tag.RowsAffected()))
	return nil
}
