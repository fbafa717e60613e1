package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kevinvandever/secureask/internal/store"
)

// initStore opens the configured persistence backend. SQLite needs no DSN;
// it falls back to a file next to the binary.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "secureask.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
