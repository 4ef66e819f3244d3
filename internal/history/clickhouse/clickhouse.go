// Package clickhouse implements a history.Sink backed by ClickHouse, for
// operators who want to run analytics over a high-volume event stream.
// Grounded on the teacher's internal/history/clickhouse/clickhouse.go.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/adasa/internal/history"
)

// Sink sends events to ClickHouse over its native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// New dials addr and ensures table exists with the schema Send writes to.
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = "process_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{Database: "default", Username: "default"},
	})
	if err != nil {
		return nil, fmt.Errorf("history/clickhouse: connect: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("history/clickhouse: ping: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime,
		event_type  String,
		process_id  Int64,
		name        String,
		pid         Int32,
		state       String,
		exit_code   Int32,
		exit_signal String
	) ENGINE = MergeTree() ORDER BY (name, occurred_at)`, s.table)
	return s.conn.Exec(ctx, stmt)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (occurred_at, event_type, process_id, name, pid, state, exit_code, exit_signal) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, stmt,
		e.OccurredAt.UTC(), string(e.Type), e.ProcessID, e.Name, int32(e.PID), e.State, int32(e.ExitCode), e.ExitSignal,
	); err != nil {
		return fmt.Errorf("history/clickhouse: insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
