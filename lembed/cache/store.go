// Package cache persists computed embeddings in a libsql database,
// keyed by model id and content hash. It backs the pipeline's
// read-through cache so repeated texts skip inference entirely.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	internal "github.com/venthic/localembed/lembed"
	"github.com/venthic/localembed/lembed/embedding"
)

// Store is an embedding cache over a libsql connection. Safe for
// concurrent use; database/sql pools the underlying connections.
type Store struct {
	db *sql.DB
}

var _ embedding.VectorCache = (*Store)(nil)

// Config carries Store construction settings.
type Config struct {
	// DSN is a file: path or a remote libsql URL. Defaults to the
	// application cache database.
	DSN string
	// AuthToken authenticates remote DSNs. Ignored for file: DSNs.
	AuthToken string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// Open connects to the cache database, creating the schema and, for
// file DSNs, the parent directory as needed.
func Open(cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = internal.DefaultCacheDSN
	}

	switch {
	case strings.HasPrefix(dsn, "file:"):
		if err := os.MkdirAll(filepath.Dir(strings.TrimPrefix(dsn, "file:")), 0o755); err != nil {
			return nil, fmt.Errorf("could not create cache directory: %w", err)
		}
	case !strings.Contains(dsn, "://"):
		// A bare filesystem path.
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("could not create cache directory: %w", err)
		}
		dsn = "file:" + dsn
	case cfg.AuthToken != "":
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid cache dsn: %w", err)
		}
		q := u.Query()
		q.Set("authToken", cfg.AuthToken)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// init sets up the embeddings table.
func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		model_id     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		dims         INTEGER NOT NULL,
		vector       BLOB NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model_id, content_hash)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create embeddings table: %w", err)
	}
	return nil
}

// Get returns the cached vector for (modelID, text), reporting a miss
// when no row exists.
func (s *Store) Get(ctx context.Context, modelID, text string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT vector FROM embeddings WHERE model_id = ? AND content_hash = ?",
		modelID, HashText(text),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup failed: %w", err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("cache row for model %s is corrupt: %w", modelID, err)
	}
	return vec, true, nil
}

// Put stores vec for (modelID, text), replacing any previous entry.
func (s *Store) Put(ctx context.Context, modelID, text string, vec []float32) error {
	if modelID == "" {
		return errors.New("model id is required")
	}
	if len(vec) == 0 {
		return errors.New("refusing to cache an empty vector")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO embeddings (model_id, content_hash, dims, vector) VALUES (?, ?, ?, ?)",
		modelID, HashText(text), len(vec), EncodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Purge drops every cached vector for modelID and returns the number
// of rows removed.
func (s *Store) Purge(ctx context.Context, modelID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE model_id = ?", modelID)
	if err != nil {
		return 0, fmt.Errorf("cache purge failed: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("purged cached embeddings", "model", modelID, "rows", removed)
	return removed, nil
}

// Count reports the number of cached vectors across all models.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
