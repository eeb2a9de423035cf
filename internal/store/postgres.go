package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-traveler/traveler/internal/traveler"
)

// PostgresStore persists traveler records as JSONB documents in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS traveler_records (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_traveler_records_external ON traveler_records (external_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, externalID string) (traveler.Record, Ref, error) {
	var (
		id  string
		raw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, doc FROM traveler_records WHERE external_id=$1 LIMIT 1`,
		externalID,
	).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return traveler.Record{}, "", ErrNotFound
	}
	if err != nil {
		return traveler.Record{}, "", fmt.Errorf("lookup record: %w", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return traveler.Record{}, "", err
	}
	return rec, Ref(id), nil
}

func (s *PostgresStore) Merge(ctx context.Context, ref Ref, patch Patch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM traveler_records WHERE id=$1 FOR UPDATE`, string(ref)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load record for merge: %w", err)
	}

	next, err := patchDocument(raw, patch)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE traveler_records SET doc=$2, updated_at=now() WHERE id=$1`,
		string(ref), next,
	); err != nil {
		return fmt.Errorf("merge record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec traveler.Record) (Ref, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO traveler_records (id, external_id, doc) VALUES ($1, $2, $3)`,
		rec.ID, rec.ExternalID, raw,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("create record: %w", err)
	}
	return Ref(rec.ID), nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]traveler.Record, error) {
	query := `SELECT doc FROM traveler_records ORDER BY external_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []traveler.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		rec, err := decodeRecord(raw)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
