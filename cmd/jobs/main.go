// Command jobs is a terminal reader for a running job board server.
//
// Usage:
//
//	jobs [--server URL] [--nats URL] [--subject SUBJECT] [--page-size N]
//
// With --nats the list stays live through the relayed change feed;
// without it the list is a snapshot that 'refresh' reloads.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"jobboard/internal/browser"
	"jobboard/internal/config"
	"jobboard/internal/domain"
	httpinfra "jobboard/internal/infra/http"
	natsfeed "jobboard/internal/infra/nats"
	"jobboard/internal/listsync"
	"jobboard/internal/logging"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	flagSet := flag.NewFlagSet("jobs", flag.ContinueOnError)
	server := flagSet.StringP("server", "s", envOr("JOBBOARD_SERVER", "http://localhost:8080"), "Job board server base URL")
	natsURL := flagSet.String("nats", os.Getenv("JOBBOARD_NATS_URL"), "NATS URL for live updates")
	subject := flagSet.String("subject", natsfeed.DefaultSubject, "NATS subject carrying change events")
	schema := flagSet.String("schema", "public", "Schema of the postings table")
	table := flagSet.String("table", "jobs", "Postings table")
	pageSize := flagSet.IntP("page-size", "n", listsync.DefaultPageSize, "Postings per page")
	timeout := flagSet.Duration("timeout", 15*time.Second, "HTTP timeout")
	verbose := flagSet.BoolP("verbose", "v", false, "Log to stderr")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
	if *pageSize <= 0 {
		fmt.Fprintln(os.Stderr, "error: --page-size must be positive")
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := logging.New(config.LogConfig{Level: "debug", Development: true})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	client := httpinfra.NewSnapshotClient(*server, *timeout)

	var feed domain.ChangeFeed
	if *natsURL != "" {
		conn, err := natsfeed.Connect(natsfeed.Options{URL: *natsURL, Subject: *subject, ConnTimeout: 5 * time.Second})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		defer conn.Close()
		feed = natsfeed.NewChangeFeed(conn, *subject, logger)
	}

	engine := listsync.NewEngine(client, feed, listsync.Options{
		Scope:    domain.FeedScope{Schema: *schema, Table: *table},
		PageSize: *pageSize,
	}, logger)
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	// A failed load is shown by the browser; there is no retry.
	_ = engine.Initialize(ctx)
	if feed != nil {
		if err := engine.Subscribe(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "warning: live updates unavailable:", err)
		}
	}

	if err := browser.New(engine, client, *server, os.Stdout).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
