package factory

import "testing"

func TestNewSinkFromDSNRejectsEmpty(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestNewSinkFromDSNRejectsUnsupportedScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("mongodb://localhost/db"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestNewSinkFromDSNDefaultsBarePathToSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	defer func() { _ = sink.Close() }()
}

func TestNewSinkFromDSNAcceptsSQLiteScheme(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://" + t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("NewSinkFromDSN: %v", err)
	}
	defer func() { _ = sink.Close() }()
}
