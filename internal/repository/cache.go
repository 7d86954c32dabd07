// Package repository provides a PostgreSQL-backed encrypted store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/atinyakov/smsglue/internal/store"
)

// PostgresCacheRepository implements store.Store on the cache_entries table.
type PostgresCacheRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB

	once sync.Once
	key  string
	err  error
}

// NewPostgresCacheRepository creates a repository on an initialized database.
// db must already carry the schema created by db.InitPostgres.
func NewPostgresCacheRepository(db *sql.DB) *PostgresCacheRepository {
	return &PostgresCacheRepository{DB: db}
}

// Initialize loads the process key, generating it on first start.
// Only the first call does work.
func (r *PostgresCacheRepository) Initialize(ctx context.Context) (string, error) {
	r.once.Do(func() {
		r.key, r.err = store.LoadOrCreateKey(ctx, r)
	})
	return r.key, r.err
}

// Save upserts blob into the (category, id) row.
func (r *PostgresCacheRepository) Save(ctx context.Context, category, id, blob string) error {
	if !store.ValidID(category) || !store.ValidID(id) {
		return fmt.Errorf("save %s/%s: %w", category, id, store.ErrInvalidID)
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO cache_entries (category, id, blob, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (category, id) DO UPDATE SET
			blob = EXCLUDED.blob,
			updated_at = EXCLUDED.updated_at
	`, category, id, blob)
	if err != nil {
		return fmt.Errorf("save %s: %w", category, err)
	}
	return nil
}

// Load returns the stored blob. Query errors and missing rows are both absent.
func (r *PostgresCacheRepository) Load(ctx context.Context, category, id string) (string, bool) {
	var blob string
	err := r.DB.QueryRowContext(ctx,
		`SELECT blob FROM cache_entries WHERE category = $1 AND id = $2`,
		category, id,
	).Scan(&blob)
	if err != nil {
		return "", false
	}
	return blob, true
}

// Clear deletes the row if present.
func (r *PostgresCacheRepository) Clear(ctx context.Context, category, id string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE category = $1 AND id = $2`,
		category, id,
	)
	if err != nil {
		return fmt.Errorf("clear %s: %w", category, err)
	}
	return nil
}

// Sweep deletes rows of category written before olderThan.
func (r *PostgresCacheRepository) Sweep(ctx context.Context, category string, olderThan time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE category = $1 AND updated_at < $2`,
		category, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", category, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
