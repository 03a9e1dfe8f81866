package etcd

import (
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// DefaultPrefix is the root under which every jobboard key lives.
const DefaultPrefix = "/jobboard"

// NewClient dials etcd with gRPC client tracing enabled.
func NewClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
		DialOptions: []grpc.DialOption{
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		},
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

func postingsDir(prefix string) string {
	return path.Join(prefix, "postings") + "/"
}

func sessionsDir(prefix string) string {
	return path.Join(prefix, "sessions") + "/"
}

func leaderKey(prefix string) string {
	return path.Join(prefix, "relay-leader")
}
