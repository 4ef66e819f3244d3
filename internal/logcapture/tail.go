package logcapture

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/adasa/internal/registry"
)

// Lines holds the tail of a process's captured output, per spec.md
// section 6's "logs" command.
type Lines struct {
	Stdout []string `cbor:"stdout" json:"stdout"`
	Stderr []string `cbor:"stderr" json:"stderr"`
}

// Tail returns the last n lines of name's stdout and stderr log files
// under cfg.Dir. A missing file (never captured, or cfg.Dir unset) yields
// an empty slice rather than an error.
func Tail(cfg registry.LogConfig, name string, n int) (Lines, error) {
	if n <= 0 {
		n = 50
	}
	if cfg.Dir == "" {
		return Lines{}, nil
	}
	out, err := tailFile(filepath.Join(cfg.Dir, fmt.Sprintf("%s.out.log", name)), n)
	if err != nil {
		return Lines{}, err
	}
	errLines, err := tailFile(filepath.Join(cfg.Dir, fmt.Sprintf("%s.err.log", name)), n)
	if err != nil {
		return Lines{}, err
	}
	return Lines{Stdout: out, Stderr: errLines}, nil
}

func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logcapture: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("logcapture: scan %s: %w", path, err)
	}
	return ring, nil
}
