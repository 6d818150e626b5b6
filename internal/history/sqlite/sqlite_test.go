package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/devorch/internal/history"
)

func TestSQLiteSink_FileRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	rec := history.Record{
		Role:      "backend",
		PID:       12345,
		Directory: "/srv/api",
		StartedAt: time.Now().Add(-time.Minute).UTC(),
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		t.Fatalf("Failed to send start event: %v", err)
	}

	code := 1
	rec.ExitCode = &code
	rec.Error = "exit status 1"
	if err := sink.Send(ctx, history.Event{Type: history.EventExit, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	n, err := sink.Count(ctx, "backend")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows for backend, got %d", n)
	}

	var storedCode int
	var storedErr string
	row := sink.db.QueryRowContext(ctx, `SELECT exit_code, error FROM process_history WHERE event = 'exit'`)
	if err := row.Scan(&storedCode, &storedErr); err != nil {
		t.Fatalf("scan exit row: %v", err)
	}
	if storedCode != 1 || storedErr != "exit status 1" {
		t.Fatalf("unexpected exit row: code=%d err=%q", storedCode, storedErr)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	ev := history.Event{
		Type:       history.EventSpawnFailure,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Role: "frontend", Directory: "/nope", Error: "chdir /nope: no such file or directory"},
	}
	if err := sink.Send(ctx, ev); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	n, err := sink.Count(ctx, "")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 row, got %d (err=%v)", n, err)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sink.Send(ctx, history.Event{Type: history.EventStart, OccurredAt: time.Now(), Record: history.Record{Role: "frontend"}})
	if err == nil {
		t.Fatalf("expected error with cancelled context")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
