// Package ipc implements the length-prefixed CBOR request/reply protocol
// the CLI and daemon speak over a Unix domain socket, per spec.md section 6.
// Framing and codec choice are grounded on the gnuos-spm example's
// pkg/supervisor/ctl_client.go (8-byte big-endian length prefix, sent as a
// separate write from the payload) and pkg/codec/encoder.go (a single
// shared cbor.EncMode built with CoreDetEncOptions), reimplemented here so
// client and server share one framing helper instead of duplicating the
// send/receive sequence on each side as the example does.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

const lengthPrefixSize = 8

// MaxFrameSize bounds a single frame to guard the daemon against a
// malformed or hostile length prefix demanding an unreasonable allocation.
const MaxFrameSize = 16 << 20 // 16MiB

// WriteFrame writes an 8-byte big-endian length prefix followed by data.
func WriteFrame(w io.Writer, data []byte) error {
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("ipc: write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ipc: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint64(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("ipc: frame size %d exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("ipc: read payload: %w", err)
	}
	return buf, nil
}
