package backlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the backlog in PostgreSQL.
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
		`CREATE TABLE IF NOT EXISTS chunk_backlog (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			response_id TEXT NOT NULL,
			sequence_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			is_final BOOLEAN NOT NULL DEFAULT FALSE,
			attempts INTEGER NOT NULL DEFAULT 0,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_backlog_response ON chunk_backlog (response_id, sequence_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Push(ctx context.Context, item Item) error {
	item = prepare(item)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chunk_backlog (id, response_id, sequence_id, text, is_final, attempts, enqueued_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID,
		item.Chunk.ResponseID,
		item.Chunk.SequenceID,
		item.Chunk.Text,
		item.Chunk.IsFinal,
		item.Attempts,
		item.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("push backlog item: %w", err)
	}
	return nil
}

const pgSelectItems = `SELECT id, response_id, sequence_id, text, is_final, attempts, enqueued_at
	FROM chunk_backlog ORDER BY seq ASC`

func scanPostgresItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Chunk.ResponseID, &it.Chunk.SequenceID, &it.Chunk.Text,
		&it.Chunk.IsFinal, &it.Attempts, &it.EnqueuedAt)
	return it, err
}

func (s *PostgresStore) Front(ctx context.Context) (Item, error) {
	it, err := scanPostgresItem(s.pool.QueryRow(ctx, pgSelectItems+` LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrEmpty
	}
	if err != nil {
		return Item{}, fmt.Errorf("backlog front: %w", err)
	}
	return it, nil
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunk_backlog WHERE id=$1`, id); err != nil {
		return fmt.Errorf("remove backlog item: %w", err)
	}
	return nil
}

func (s *PostgresStore) Bump(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`UPDATE chunk_backlog SET attempts = attempts + 1 WHERE id=$1 RETURNING attempts`, id,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump backlog item: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunk_backlog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, pgSelectItems+` LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, limit)
	for rows.Next() {
		it, err := scanPostgresItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backlog row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backlog rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
