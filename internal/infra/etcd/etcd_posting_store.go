// internal/infra/etcd/etcd_posting_store.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"jobboard/internal/domain"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type etcdPostingStore struct {
	client *clientv3.Client
	dir    string
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewPostingStore creates a posting store backed by etcd. Each posting is
// a JSON value under <prefix>/postings/<id>.
func NewPostingStore(client *clientv3.Client, prefix string, logger *zap.Logger) domain.PostingStore {
	return &etcdPostingStore{
		client: client,
		dir:    postingsDir(prefix),
		logger: logger.With(zap.String("component", "etcd-posting-store")),
		tracer: otel.Tracer("jobboard-etcd-store"),
		now:    time.Now,
	}
}

func (r *etcdPostingStore) key(id string) string {
	return r.dir + id
}

// Snapshot lists every posting, newest first.
func (r *etcdPostingStore) Snapshot(ctx context.Context) ([]domain.Posting, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Snapshot")
	defer span.End()

	resp, err := r.client.Get(ctx, r.dir,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list postings from etcd")
		return nil, fmt.Errorf("failed to list postings from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	postings := make([]domain.Posting, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var p domain.Posting
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			r.logger.Warn("failed to unmarshal posting from etcd", zap.String("key", string(kv.Key)), zap.Error(err))
			continue
		}
		postings = append(postings, p)
	}
	sort.SliceStable(postings, func(i, j int) bool {
		return postings[i].CreatedAt.After(postings[j].CreatedAt)
	})
	return postings, nil
}

func (r *etcdPostingStore) Get(ctx context.Context, id string) (*domain.Posting, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Get")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	resp, err := r.client.Get(ctx, r.key(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get posting from etcd")
		return nil, fmt.Errorf("failed to get posting %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrPostingNotFound
	}

	var p domain.Posting
	if err := json.Unmarshal(resp.Kvs[0].Value, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal posting %s from JSON: %w", id, err)
	}
	return &p, nil
}

// Insert assigns an id and creation time and writes the posting only if
// the key does not exist yet.
func (r *etcdPostingStore) Insert(ctx context.Context, fields domain.PostingFields) (*domain.Posting, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Insert")
	defer span.End()

	p := domain.Posting{ID: uuid.NewString(), CreatedAt: r.now().UTC()}
	fields.Apply(&p)
	span.SetAttributes(attribute.String("posting.id", p.ID))

	value, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal posting to JSON: %w", err)
	}

	key := r.key(p.ID)
	txn, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put posting to etcd")
		return nil, fmt.Errorf("failed to save posting %s to etcd: %w", p.ID, err)
	}
	if !txn.Succeeded {
		return nil, fmt.Errorf("posting %s already exists", p.ID)
	}
	return &p, nil
}

// Update overwrites the editable fields, failing if the posting changed
// between the read and the write.
func (r *etcdPostingStore) Update(ctx context.Context, id string, fields domain.PostingFields) (*domain.Posting, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Update")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	key := r.key(id)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get posting from etcd")
		return nil, fmt.Errorf("failed to get posting %s from etcd: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrPostingNotFound
	}

	var p domain.Posting
	if err := json.Unmarshal(resp.Kvs[0].Value, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal posting %s from JSON: %w", id, err)
	}
	fields.Apply(&p)

	value, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal posting to JSON: %w", err)
	}
	txn, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", resp.Kvs[0].ModRevision)).
		Then(clientv3.OpPut(key, string(value))).
		Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put posting to etcd")
		return nil, fmt.Errorf("failed to update posting %s in etcd: %w", id, err)
	}
	if !txn.Succeeded {
		return nil, fmt.Errorf("posting %s was modified concurrently, reload and retry", id)
	}
	return &p, nil
}

// Delete removes a posting. Deleting a missing id is not an error.
func (r *etcdPostingStore) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("posting.id", id))

	resp, err := r.client.Delete(ctx, r.key(id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete posting from etcd")
		return fmt.Errorf("failed to delete posting %s from etcd: %w", id, err)
	}
	span.SetAttributes(attribute.Int64("etcd.deleted", resp.Deleted))
	return nil
}
