package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/adasa/internal/history"
)

func TestSinkSendsAndPersists(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir + "/history.db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	ev := history.Event{
		Type: history.EventStart, OccurredAt: time.Now(), ProcessID: 1,
		Name: "worker", PID: 4242, State: "running",
	}
	if err := sink.Send(ctx, ev); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_history WHERE name = ?`, "worker").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSendRecordsMultipleEventTypes(t *testing.T) {
	dir := t.TempDir()
	sink, err := New(dir + "/history.db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.EventType{history.EventStart, history.EventStop, history.EventCrash, history.EventRestart}
	for _, et := range events {
		if err := sink.Send(ctx, history.Event{Type: et, OccurredAt: time.Now(), Name: "worker"}); err != nil {
			t.Fatalf("send %s: %v", et, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_history`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != len(events) {
		t.Fatalf("expected %d rows, got %d", len(events), count)
	}
}
