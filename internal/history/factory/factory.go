// Package factory selects a history.Sink implementation from a DSN string,
// so daemon configuration names one connection string rather than a
// backend-specific block. Grounded on the teacher's
// internal/history/factory/factory.go, trimmed to the three backends
// adasa's go.mod actually carries (sqlite, postgres, clickhouse).
package factory

import (
	"errors"
	"net/url"
	"strings"

	"github.com/loykin/adasa/internal/history"
	"github.com/loykin/adasa/internal/history/clickhouse"
	"github.com/loykin/adasa/internal/history/postgres"
	"github.com/loykin/adasa/internal/history/sqlite"
)

// NewSinkFromDSN builds a Sink appropriate to dsn's scheme:
//   - "clickhouse://host:port?table=name"
//   - "postgres://" or "postgresql://"
//   - "sqlite://path" or a bare path/":memory:" (defaults to sqlite)
func NewSinkFromDSN(dsn string) (history.Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("history/factory: empty DSN")
	}
	lower := strings.ToLower(dsn)

	switch {
	case strings.HasPrefix(lower, "clickhouse://"):
		return newClickHouse(dsn)
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres.New(dsn)
	case strings.HasPrefix(lower, "sqlite://"), !strings.Contains(dsn, "://"):
		return sqlite.New(dsn)
	default:
		return nil, errors.New("history/factory: unsupported DSN: " + dsn)
	}
}

func newClickHouse(dsn string) (history.Sink, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	addr := u.Host
	if addr == "" {
		addr = "localhost:9000"
	}
	return clickhouse.New(addr, u.Query().Get("table"))
}
