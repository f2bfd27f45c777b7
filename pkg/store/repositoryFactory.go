package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/squadpage/mailroom/pkg/config"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// NewRepository builds the configured store backend. The site's default
// deployment runs on its SQLite file; postgres and mongo cover hosted
// installs.
func NewRepository(ctx context.Context, cfg config.DbSettings) (OutboxStore, error) {
	switch cfg.Type {
	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, err
		}
		// A single connection keeps concurrent claimers from tripping
		// over SQLite table locks; correctness does not depend on it.
		db.SetMaxOpenConns(1)
		return NewSQLiteRepository(db)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		repo := NewPostgresRepository(db)
		if err := repo.EnsureSchema(); err != nil {
			return nil, err
		}
		return repo, nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, err
		}
		return NewMongoRepository(ctx, client, cfg.Database, "outbox_jobs")
	default:
		return nil, fmt.Errorf("unsupported DB type: %s", cfg.Type)
	}
}
