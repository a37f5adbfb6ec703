package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite and the JSON1 functions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force for every write.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS markers (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL DEFAULT '{}',
	written_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_markers_region ON markers(json_extract(doc, '$.region'));
CREATE INDEX IF NOT EXISTS idx_markers_type ON markers(json_extract(doc, '$.type'));
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM markers WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", id)
	}
	return decodeDocument([]byte(raw), id)
}

func (s *SQLiteStore) Put(ctx context.Context, id string, doc Document) error {
	raw, err := encodeDocument(doc, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO markers (id, doc, written_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, written_at = excluded.written_at`,
		id, string(raw),
	)
	return eris.Wrapf(err, "sqlite: put %s", id)
}

func (s *SQLiteStore) PutIfAbsent(ctx context.Context, id string, doc Document) (bool, error) {
	raw, err := encodeDocument(doc, id)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (id, doc, written_at) VALUES (?, ?, datetime('now')) ON CONFLICT (id) DO NOTHING`,
		id, string(raw),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: put if absent %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) Patch(ctx context.Context, id string, fields Document) error {
	raw, err := encodeDocument(fields, id)
	if err != nil {
		return err
	}
	// json_patch drops keys whose patch value is null; updates never carry nulls.
	res, err := s.db.ExecContext(ctx,
		`UPDATE markers SET doc = json_patch(doc, ?), written_at = datetime('now') WHERE id = ?`,
		string(raw), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT id, doc FROM markers WHERE 1=1`
	var args []any

	if filter.Region != "" {
		query += ` AND json_extract(doc, '$.region') = ?`
		args = append(args, filter.Region)
	}
	if filter.Type != "" {
		query += ` AND json_extract(doc, '$.type') = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Skip > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list markers")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan marker")
		}
		doc, err := decodeDocument([]byte(raw), id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Doc: doc})
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list markers iterate")
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM markers`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count markers")
	}
	return n, nil
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "marker %s", id)
	}
	return nil
}
