package etcd

import (
	"context"
	"sync"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/metrics"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

type etcdLeaderElectionManager struct {
	client   *clientv3.Client
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
	mutex    sync.RWMutex
	nodeID   string
	key      string
	ttl      time.Duration
	logger   *zap.Logger
}

// NewLeaderElectionManager creates a manager that campaigns for the relay
// leadership key under prefix.
func NewLeaderElectionManager(client *clientv3.Client, prefix, nodeID string, ttl time.Duration, logger *zap.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client: client,
		nodeID: nodeID,
		key:    leaderKey(prefix),
		ttl:    ttl,
		logger: logger.With(zap.String("component", "leader-election")),
	}
}

func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	ttl := int(m.ttl.Seconds())
	if ttl < 1 {
		ttl = 1
	}
	// If this node dies the lease expires and another node can win.
	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(ttl))
	if err != nil {
		return nil, err
	}

	election := concurrency.NewElection(session, m.key)
	if err := election.Campaign(ctx, m.nodeID); err != nil {
		_ = session.Close()
		return nil, err
	}

	m.mutex.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(1)
	m.logger.Info("became relay leader", zap.String("node_id", m.nodeID))

	return session.Done(), nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	election, session := m.election, m.session
	m.isLeader = false
	m.election, m.session = nil, nil
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(0)

	if election == nil {
		return nil
	}
	m.logger.Info("resigning relay leadership", zap.String("node_id", m.nodeID))
	err := election.Resign(ctx)
	_ = session.Close()
	return err
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}
