// internal/infra/etcd/etcd_session_store.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"jobboard/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// SessionStore keeps admin sessions under <prefix>/sessions/, each
// attached to a lease that expires with the session.
type SessionStore struct {
	client *clientv3.Client
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewSessionStore(client *clientv3.Client, prefix string, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		dir:    sessionsDir(prefix),
		logger: logger.With(zap.String("component", "etcd-session-store")),
		now:    time.Now,
	}
}

// leaseTTL rounds the remaining session lifetime up to whole seconds.
func leaseTTL(remaining time.Duration) int64 {
	return int64(math.Ceil(remaining.Seconds()))
}

func (s *SessionStore) Save(ctx context.Context, session domain.Session) error {
	remaining := session.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return domain.ErrSessionExpired
	}

	leaseResp, err := s.client.Grant(ctx, leaseTTL(remaining))
	if err != nil {
		return fmt.Errorf("failed to grant session lease: %w", err)
	}

	value, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if _, err := s.client.Put(ctx, s.dir+session.Token, string(value), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to put session key: %w", err)
	}
	s.logger.Debug("session stored", zap.Int64("lease_id", int64(leaseResp.ID)), zap.Int64("ttl", leaseResp.TTL))
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (domain.Session, error) {
	resp, err := s.client.Get(ctx, s.dir+token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	var session domain.Session
	if err := json.Unmarshal(resp.Kvs[0].Value, &session); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

// Delete revokes the session's lease, which removes the key with it.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	resp, err := s.client.Get(ctx, s.dir+token)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil
	}

	lease := clientv3.LeaseID(resp.Kvs[0].Lease)
	if lease == clientv3.NoLease {
		_, err = s.client.Delete(ctx, s.dir+token)
		return err
	}
	if _, err := s.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("failed to revoke session lease: %w", err)
	}
	return nil
}
