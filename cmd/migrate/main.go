package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"jobboard/internal/auth"
	"jobboard/internal/infra/postgres"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	flagSet := flag.NewFlagSet("migrate", flag.ExitOnError)
	dsn := flagSet.String("dsn", os.Getenv("JOBBOARD_POSTGRES_DSN"), "Postgres connection string")
	schemaName := flagSet.String("schema", "public", "Schema of the postings table")
	table := flagSet.String("table", "jobs", "Postings table")
	down := flagSet.Int("down", 0, "Roll back the N most recent migrations instead of applying")
	hashPassword := flagSet.Bool("hash-password", false, "Read an admin password from stdin, print its admin.password_hash value and exit")
	_ = flagSet.Parse(os.Args[1:])

	if *hashPassword {
		if err := writePasswordHash(os.Stdin, os.Stdout); err != nil {
			log.Fatalf("hash password: %v", err)
		}
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *dsn == "" {
		logger.Fatal("--dsn or JOBBOARD_POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, *dsn, 2)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	migrator := postgres.NewMigrator(pool, logger)
	migrations := postgres.Migrations(*schemaName, *table)

	if *down == 0 {
		if err := migrator.Up(ctx, migrations); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		logger.Info("All migrations completed successfully")
		return
	}

	if err := migrator.CreateMigrationsTable(ctx); err != nil {
		logger.Fatal("Failed to create migrations table", zap.Error(err))
	}
	applied, err := migrator.GetAppliedMigrations(ctx)
	if err != nil {
		logger.Fatal("Failed to get applied migrations", zap.Error(err))
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version > migrations[j].Version })
	rolledBack := 0
	for _, migration := range migrations {
		if rolledBack == *down {
			break
		}
		if _, ok := applied[migration.Version]; !ok {
			continue
		}
		logger.Info("Rolling back migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))
		if err := migrator.RollbackMigration(ctx, migration); err != nil {
			logger.Fatal("Failed to roll back migration", zap.Int("version", migration.Version), zap.Error(err))
		}
		rolledBack++
	}
	logger.Info("Rollback completed", zap.Int("count", rolledBack))
}

// writePasswordHash reads a password from the first line of in and writes
// its bcrypt hash to out.
func writePasswordHash(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no password on stdin")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return errors.New("password is empty")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
