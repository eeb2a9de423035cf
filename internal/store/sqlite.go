package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentic-traveler/traveler/internal/traveler"
)

// SQLiteStore persists traveler records as JSON text in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps read-modify-write merges serialized.
	db.SetMaxOpenConns(1)

	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS traveler_records (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			doc TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, externalID string) (traveler.Record, Ref, error) {
	var id, raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, doc FROM traveler_records WHERE external_id=? LIMIT 1`,
		externalID,
	).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return traveler.Record{}, "", ErrNotFound
	}
	if err != nil {
		return traveler.Record{}, "", fmt.Errorf("lookup record: %w", err)
	}
	rec, err := decodeRecord([]byte(raw))
	if err != nil {
		return traveler.Record{}, "", err
	}
	return rec, Ref(id), nil
}

func (s *SQLiteStore) Merge(ctx context.Context, ref Ref, patch Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM traveler_records WHERE id=?`, string(ref)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load record for merge: %w", err)
	}

	next, err := patchDocument([]byte(raw), patch)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE traveler_records SET doc=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		string(next), string(ref),
	); err != nil {
		return fmt.Errorf("merge record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec traveler.Record) (Ref, error) {
	if err := validateNew(rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	raw, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	var existing int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM traveler_records WHERE external_id=? OR id=?`,
		rec.ExternalID, rec.ID,
	).Scan(&existing); err != nil {
		return "", fmt.Errorf("check existing record: %w", err)
	}
	if existing > 0 {
		return "", ErrAlreadyExists
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO traveler_records (id, external_id, doc) VALUES (?, ?, ?)`,
		rec.ID, rec.ExternalID, string(raw),
	); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	return Ref(rec.ID), nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]traveler.Record, error) {
	query := `SELECT doc FROM traveler_records ORDER BY external_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []traveler.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
