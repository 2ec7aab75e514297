package backlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Front(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Front() on empty error = %v, want ErrEmpty", err)
	}

	for i, text := range []string{"one.", "two.", "three."} {
		err := s.Push(ctx, Item{Chunk: protocol.Chunk{Text: text, ResponseID: "r1", SequenceID: i + 1, IsFinal: i == 2}})
		if err != nil {
			t.Fatalf("Push(%q) error = %v", text, err)
		}
	}

	n, err := s.Len(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Len() = %d, %v, want 3", n, err)
	}

	front, err := s.Front(ctx)
	if err != nil {
		t.Fatalf("Front() error = %v", err)
	}
	if front.Chunk.Text != "one." || front.ID == "" || front.EnqueuedAt.IsZero() {
		t.Fatalf("Front() = %+v, want first pushed item", front)
	}

	attempts, err := s.Bump(ctx, front.ID)
	if err != nil || attempts != 1 {
		t.Fatalf("Bump() = %d, %v, want 1", attempts, err)
	}
	if _, err := s.Bump(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Bump(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Remove(ctx, front.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	items, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].Chunk.Text != "two." || items[1].Chunk.Text != "three." {
		t.Fatalf("List() = %+v, want two then three", items)
	}
	if !items[1].Chunk.IsFinal || items[1].Chunk.SequenceID != 3 {
		t.Fatalf("List()[1].Chunk = %+v, want final seq 3", items[1].Chunk)
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "backlog.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backlog.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Push(ctx, Item{Chunk: protocol.Chunk{Text: "kept.", ResponseID: "r9", SequenceID: 1}}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	front, err := s.Front(ctx)
	if err != nil || front.Chunk.Text != "kept." {
		t.Fatalf("Front() after reopen = %+v, %v", front, err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BACKLOG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BACKLOG_TEST_POSTGRES_DSN not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer s.Close()
	if _, err := s.pool.Exec(context.Background(), `TRUNCATE chunk_backlog`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore(\"\") error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}

	s, err = NewStore(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "b.db"))
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore(sqlite) = %T, want *SQLiteStore", s)
	}
}
