// Package sqlite implements a history.Sink backed by SQLite, for operators
// who want an audit trail without standing up a separate database server.
// Grounded on the teacher's internal/history/sqlite/sqlite.go.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/adasa/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New opens (creating if necessary) the database named by dsn and ensures
// the process_history table exists. dsn may be a bare file path, ":memory:",
// or carry a "sqlite://" prefix.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("history/sqlite: empty DSN")
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS process_history(
		occurred_at TIMESTAMP NOT NULL,
		event_type  TEXT NOT NULL,
		process_id  INTEGER NOT NULL,
		name        TEXT NOT NULL,
		pid         INTEGER NOT NULL,
		state       TEXT NOT NULL,
		exit_code   INTEGER NOT NULL,
		exit_signal TEXT
	);`)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_history(occurred_at, event_type, process_id, name, pid, state, exit_code, exit_signal)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.ProcessID, e.Name, e.PID, e.State, e.ExitCode, e.ExitSignal)
	return err
}

func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
