package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrations returns the embedded migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations())
	if err != nil {
		return nil, fmt.Errorf("goose new provider: %w", err)
	}
	return provider, nil
}

// MigrationResult describes one applied migration.
type MigrationResult struct {
	Version  int64  `json:"version"`
	Path     string `json:"path"`
	Duration string `json:"duration"`
}

// Migrate applies all pending migrations.
func Migrate(ctx context.Context, db *sql.DB) ([]MigrationResult, error) {
	provider, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	applied := make([]MigrationResult, 0, len(results))
	for _, r := range results {
		applied = append(applied, MigrationResult{
			Version:  r.Source.Version,
			Path:     r.Source.Path,
			Duration: r.Duration.String(),
		})
	}
	return applied, nil
}

// MigrationStatus describes one known migration.
type MigrationStatus struct {
	Version int64  `json:"version"`
	Path    string `json:"path"`
	State   string `json:"state"`
}

// Status lists every embedded migration with its state.
func Status(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	provider, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			State:   string(s.State),
		})
	}
	return out, nil
}
