package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/nugulmap/markers/internal/db"
)

// PostgresStore implements Store on a JSONB table using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS markers (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
	written_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_markers_region ON markers ((doc->>'region'));
CREATE INDEX IF NOT EXISTS idx_markers_type ON markers ((doc->>'type'));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM markers WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", id)
	}
	return decodeDocument(raw, id)
}

func (s *PostgresStore) Put(ctx context.Context, id string, doc Document) error {
	raw, err := encodeDocument(doc, id)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO markers (id, doc, written_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, written_at = now()`,
		id, raw,
	)
	return eris.Wrapf(err, "postgres: put %s", id)
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, id string, doc Document) (bool, error) {
	raw, err := encodeDocument(doc, id)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO markers (id, doc, written_at) VALUES ($1, $2, now()) ON CONFLICT (id) DO NOTHING`,
		id, raw,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: put if absent %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Patch(ctx context.Context, id string, fields Document) error {
	raw, err := encodeDocument(fields, id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE markers SET doc = doc || $2::jsonb, written_at = now() WHERE id = $1`,
		id, raw,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: patch %s", id)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM markers WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: delete %s", id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT id, doc FROM markers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Region != "" {
		query += fmt.Sprintf(` AND doc->>'region' = $%d`, argIdx)
		args = append(args, filter.Region)
		argIdx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(` AND doc->>'type' = $%d`, argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	query += ` ORDER BY id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Skip > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Skip)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list markers")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan marker")
		}
		doc, err := decodeDocument(raw, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Doc: doc})
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list markers iterate")
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM markers`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count markers")
	}
	return n, nil
}

func encodeDocument(doc Document, id string) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal document %s", id)
	}
	return raw, nil
}

func decodeDocument(raw []byte, id string) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal document %s", id)
	}
	return doc, nil
}
