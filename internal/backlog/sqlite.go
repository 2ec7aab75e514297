package backlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the backlog in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite backlog path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create backlog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps FIFO order and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS chunk_backlog (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		response_id TEXT NOT NULL,
		sequence_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		is_final INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		enqueued_at INTEGER NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Push(ctx context.Context, item Item) error {
	item = prepare(item)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_backlog (id, response_id, sequence_id, text, is_final, attempts, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Chunk.ResponseID,
		item.Chunk.SequenceID,
		item.Chunk.Text,
		item.Chunk.IsFinal,
		item.Attempts,
		item.EnqueuedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("push backlog item: %w", err)
	}
	return nil
}

const sqliteSelectItems = `SELECT id, response_id, sequence_id, text, is_final, attempts, enqueued_at
	FROM chunk_backlog ORDER BY seq ASC LIMIT ?`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row scanner) (Item, error) {
	var (
		it       Item
		enqueued int64
	)
	if err := row.Scan(&it.ID, &it.Chunk.ResponseID, &it.Chunk.SequenceID, &it.Chunk.Text,
		&it.Chunk.IsFinal, &it.Attempts, &enqueued); err != nil {
		return Item{}, err
	}
	it.EnqueuedAt = time.UnixMilli(enqueued).UTC()
	return it, nil
}

func (s *SQLiteStore) Front(ctx context.Context) (Item, error) {
	it, err := scanSQLiteItem(s.db.QueryRowContext(ctx, sqliteSelectItems, 1))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrEmpty
	}
	if err != nil {
		return Item{}, fmt.Errorf("backlog front: %w", err)
	}
	return it, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunk_backlog WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove backlog item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Bump(ctx context.Context, id string) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE chunk_backlog SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("bump backlog item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts FROM chunk_backlog WHERE id = ?`, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read backlog attempts: %w", err)
	}
	return attempts, nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunk_backlog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectItems, limit)
	if err != nil {
		return nil, fmt.Errorf("query backlog: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanSQLiteItem(rows)
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

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
