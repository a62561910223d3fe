package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"pvetax/internal/config"
	"pvetax/internal/db"
	"pvetax/internal/logging"
	"pvetax/migrations"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", err)
	}
	logger := logging.New(cfg.LogLevel)
	database, err := db.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		fatal("failed to connect database", err)
	}
	defer database.Close()

	if err := migrate(context.Background(), database, logger); err != nil {
		fatal("migration failed", err)
	}
}

func fatal(msg string, err error) {
	logging.New("error").Error(msg, "error", err)
	os.Exit(1)
}

// migrate applies every embedded file not yet recorded in schema_migrations.
// A file and its record commit together.
func migrate(ctx context.Context, database *sqlx.DB, logger *slog.Logger) error {
	if _, err := database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		var done bool
		if err := database.GetContext(ctx, &done, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name); err != nil {
			return fmt.Errorf("read migration state: %w", err)
		}
		if done {
			continue
		}
		err := db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			if err := applyFile(ctx, tx, name); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		applied++
		logger.Info("migration applied", "file", name)
	}
	logger.Info("migrations complete", "applied", applied, "total", len(files))
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applyFile runs the statements above the Down marker.
func applyFile(ctx context.Context, tx execer, name string) error {
	content, err := fs.ReadFile(migrations.Files, name)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)
	for i, stmt := range splitSQL(up) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

// splitSQL breaks a script into statements at lines ending in ';'. Comment
// lines are dropped, so a ';' inside a comment never ends a statement.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(script))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current.WriteString(scanner.Text())
		current.WriteByte('\n')
		if strings.HasSuffix(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, current.String())
	}
	return statements
}
