// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "jobboard/internal/api/http"
	"jobboard/internal/auth"
	"jobboard/internal/cache"
	rediscache "jobboard/internal/cache/redis"
	"jobboard/internal/config"
	"jobboard/internal/domain"
	"jobboard/internal/infra/etcd"
	natsfeed "jobboard/internal/infra/nats"
	"jobboard/internal/infra/postgres"
	"jobboard/internal/infra/telegram"
	"jobboard/internal/listsync"
	"jobboard/internal/logging"
	"jobboard/internal/scheduler"
	"jobboard/internal/tracing"
	"jobboard/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// backend is the posting store selected by store.driver together with its
// change feed. etcd is set whenever endpoints are configured, even for the
// postgres driver, since sessions and relay election can live there.
type backend struct {
	store domain.PostingStore
	feed  domain.ChangeFeed
	etcd  *clientv3.Client
}

func scopeOf(cfg *config.Config) domain.FeedScope {
	return domain.FeedScope{Schema: cfg.Store.Schema, Table: cfg.Store.Table}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

func newBackend(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b := &backend{}
	if len(cfg.Etcd.Endpoints) > 0 {
		client, err := etcd.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.Timeout)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
		b.etcd = client
		logger.Info("connected to etcd", zap.Strings("endpoints", cfg.Etcd.Endpoints))
	}

	switch cfg.Store.Driver {
	case "etcd":
		b.store = etcd.NewPostingStore(b.etcd, cfg.Etcd.Prefix, logger)
		b.feed = etcd.NewWatchFeed(b.etcd, cfg.Etcd.Prefix, scopeOf(cfg), logger)
	default:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})

		if cfg.Postgres.AutoMigrate {
			migrator := postgres.NewMigrator(pool, logger)
			if err := migrator.Up(ctx, postgres.Migrations(cfg.Store.Schema, cfg.Store.Table)); err != nil {
				return nil, err
			}
		}
		store := postgres.NewStore(pool, scopeOf(cfg), logger)
		b.store = store
		b.feed = postgres.NewNotifyFeed(pool, store, logger)
	}
	logger.Info("posting store ready", zap.String("driver", cfg.Store.Driver))
	return b, nil
}

func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	opts := cache.Options{
		DefaultTTL:    cfg.Redis.CacheTTL,
		RedisURL:      cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}
	var c cache.Cache
	if cfg.Redis.Addr == "" {
		logger.Info("no redis.addr set, using in-process cache")
		c = cache.NewMemory(opts)
	} else {
		rc := rediscache.New(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			return nil, err
		}
		c = rc
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return c.Close() }})
	return c, nil
}

func newCachedStore(b *backend, c cache.Cache, cfg *config.Config, logger *zap.Logger) *cache.PostingStore {
	return cache.NewPostingStore(b.store, c, cfg.Redis.CacheTTL, logger)
}

func newSessionStore(b *backend, c cache.Cache, cfg *config.Config, logger *zap.Logger) domain.SessionStore {
	if cfg.Store.Driver == "etcd" {
		return etcd.NewSessionStore(b.etcd, cfg.Etcd.Prefix, logger)
	}
	return cache.NewSessionStore(c)
}

func newNotifier(cfg *config.Config, logger *zap.Logger) domain.Notifier {
	return telegram.NewNotifier(telegram.Options{
		APIBase:       cfg.Telegram.APIBase,
		BotToken:      cfg.Telegram.BotToken,
		ChatID:        cfg.Telegram.ChatID,
		Timeout:       cfg.Telegram.Timeout,
		RatePerSecond: cfg.Telegram.RatePerSecond,
	}, logger)
}

// newEngine builds the server's listing engine. Every feed event it folds
// in also evicts the cached detail row, relay or not.
func newEngine(lc fx.Lifecycle, b *backend, store *cache.PostingStore, cfg *config.Config, logger *zap.Logger) *listsync.Engine {
	engine := listsync.NewEngine(b.store, b.feed, listsync.Options{
		Scope:     scopeOf(cfg),
		PageSize:  cfg.Listing.PageSize,
		OnApplied: store.EvictChanged,
	}, logger)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return engine.Close() }})
	return engine
}

func newAuthService(sessions domain.SessionStore, cfg *config.Config, logger *zap.Logger) *auth.Service {
	return auth.NewService(sessions, auth.Options{
		Email:        cfg.Admin.Email,
		PasswordHash: cfg.Admin.PasswordHash,
		SessionTTL:   cfg.Admin.SessionTTL,
	}, logger)
}

func newAdminFlow(lc fx.Lifecycle, store *cache.PostingStore, notifier domain.Notifier, cfg *config.Config, logger *zap.Logger) *usecase.AdminFlow {
	flow := usecase.NewAdminFlow(store, notifier, usecase.AdminFlowOptions{
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		NotifyTimeout: cfg.Telegram.Timeout * 2,
	}, logger)
	lc.Append(fx.Hook{OnStop: flow.Close})
	return flow
}

func newListingService(engine *listsync.Engine, store *cache.PostingStore, cfg *config.Config, logger *zap.Logger) *usecase.ListingService {
	return usecase.NewListingService(engine, store, cfg.HTTP.PublicBaseURL, logger)
}

func newMux(engine *listsync.Engine, listing *usecase.ListingService, authService *auth.Service, flow *usecase.AdminFlow, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpapi.RegisterHealth(mux, engine)
	httpapi.NewListingHandler(listing, logger).RegisterRoutes(mux)
	httpapi.NewAdminHandler(authService, flow, logger).RegisterRoutes(mux)
	return mux
}

func startTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	shutdown, err := tracing.InitTracer("jobboard-server", cfg.Tracing.Enabled, logger)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

// startEngine loads the snapshot and subscribes. A failed load leaves the
// listing empty and is reported on /healthz; the server still starts.
func startEngine(lc fx.Lifecycle, engine *listsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := engine.Initialize(ctx); err != nil {
				logger.Error("initial snapshot failed", zap.Error(err))
			}
			if err := engine.Subscribe(ctx); err != nil {
				logger.Error("failed to subscribe to change feed", zap.Error(err))
			}
			return nil
		},
	})
}

func startRelay(lc fx.Lifecycle, b *backend, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.Relay.Enabled {
		return nil
	}
	conn, err := natsfeed.Connect(natsfeed.Options{
		URL:         cfg.NATS.URL,
		Subject:     cfg.NATS.Subject,
		ConnTimeout: cfg.NATS.ConnTimeout,
	})
	if err != nil {
		return err
	}
	publisher := natsfeed.NewPublisher(conn, cfg.NATS.Subject, logger)

	nodeID := uuid.NewString()
	var leader domain.LeaderElectionManager
	if b.etcd != nil {
		leader = etcd.NewLeaderElectionManager(b.etcd, cfg.Etcd.Prefix, nodeID, cfg.Relay.ElectionTTL, logger)
	}
	relay := usecase.NewRelayService(leader, b.feed, scopeOf(cfg), publisher, nodeID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				_ = relay.Start(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			publisher.Close()
			return nil
		},
	})
	return nil
}

func startResync(lc fx.Lifecycle, engine *listsync.Engine, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Listing.ResyncSchedule == "" {
		return nil
	}
	s, err := scheduler.NewResyncScheduler(cfg.Listing.ResyncSchedule, engine, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() { _ = s.Start(ctx) }()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return nil
}

func startHTTPServer(lc fx.Lifecycle, mux *http.ServeMux, cfg *config.Config, logger *zap.Logger) {
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           httpapi.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting HTTP API server", zap.String("addr", cfg.HTTP.ListenAddr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	app := fx.New(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newBackend,
			newCache,
			newCachedStore,
			newSessionStore,
			newNotifier,
			newEngine,
			newAuthService,
			newAdminFlow,
			newListingService,
			newMux,
		),
		fx.Invoke(
			startTracing,
			startEngine,
			startRelay,
			startResync,
			startHTTPServer,
		),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Fatal(err)
	}
}
