package ipc

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/registry"
)

// Kind identifies the operation a Request carries, per spec.md section 6.
type Kind string

const (
	KindStart           Kind = "Start"
	KindStartFromConfig Kind = "StartFromConfig"
	KindReloadConfig    Kind = "ReloadConfig"
	KindStop            Kind = "Stop"
	KindRestart         Kind = "Restart"
	KindDelete          Kind = "Delete"
	KindList            Kind = "List"
	KindStatus          Kind = "Status"
	KindLogs            Kind = "Logs"
	KindDaemonStatus    Kind = "DaemonStatus"
	KindDaemonShutdown  Kind = "DaemonShutdown"
)

// Request is the single envelope every client call sends. Only the fields
// relevant to Kind are populated; the rest are left zero.
type Request struct {
	Kind     Kind                     `cbor:"kind"`
	Selector string                   `cbor:"selector,omitempty"`
	Config   registry.ProcessConfig   `cbor:"config,omitempty"`
	Configs  []registry.ProcessConfig `cbor:"configs,omitempty"`
	Force    bool                     `cbor:"force,omitempty"`
	Rolling  bool                     `cbor:"rolling,omitempty"`
	Lines    int                      `cbor:"lines,omitempty"`
}

// ErrorPayload mirrors apperrors.Error across the wire without requiring
// the client to depend on the daemon's error package.
type ErrorPayload struct {
	Kind    string `cbor:"kind"`
	Message string `cbor:"message"`
}

// Error implements the error interface so ErrorPayload can be used
// wherever a plain error is expected.
func (e *ErrorPayload) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// StartedInstance mirrors dispatcher.StartedInstance for the wire, since
// its Error field is a plain Go error interface and cbor cannot round-trip
// an arbitrary concrete error type through an unknown decoder.
type StartedInstance struct {
	ID    int64         `cbor:"id"`
	Name  string        `cbor:"name"`
	Error *ErrorPayload `cbor:"error,omitempty"`
}

// Response is the single envelope every reply arrives in. Payload is
// left as raw CBOR bytes so the receiver can decode it, via DecodePayload,
// into whatever
// shape the requested Kind implies (a []registry.ManagedProcess for List,
// a dispatcher.ReloadResult for ReloadConfig, and so on).
type Response struct {
	OK      bool          `cbor:"ok"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
	Error   *ErrorPayload `cbor:"error,omitempty"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeUnix
	mode, err := opts.EncMode()
	if err != nil {
		panic("ipc: invalid cbor encode options: " + err.Error())
	}
	return mode
}()

// Marshal encodes v using the shared deterministic encode mode, grounded
// on the gnuos-spm example's codec.GetEncoder (CoreDetEncOptions + a
// process-wide cached EncMode).
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// ReplyOK builds a successful Response carrying payload encoded as CBOR.
func ReplyOK(payload any) (Response, error) {
	data, err := Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	return Response{OK: true, Payload: data}, nil
}

// ReplyError builds a failed Response from an apperrors-shaped error.
func ReplyError(kind, message string) Response {
	return Response{OK: false, Error: &ErrorPayload{Kind: kind, Message: message}}
}

// DecodePayload unmarshals a Response's payload into v. Callers must check
// resp.OK first.
func DecodePayload(resp Response, v any) error {
	if len(resp.Payload) == 0 {
		return nil
	}
	return cbor.Unmarshal(resp.Payload, v)
}

// NewStartedInstance builds a wire-safe StartedInstance from an id, name,
// and error, translating an *apperrors.Error into an ErrorPayload and any
// other error into a generic "Internal" kind.
func NewStartedInstance(id int64, name string, err error) StartedInstance {
	return StartedInstance{ID: id, Name: name, Error: errToPayload(err)}
}

// NewStartedInstances converts a slice of (id, name, error) triples in one
// pass; used by the server to translate dispatcher.StartedInstance slices
// without this package importing internal/dispatcher.
func NewStartedInstances(n int, at func(i int) (id int64, name string, err error)) []StartedInstance {
	out := make([]StartedInstance, n)
	for i := 0; i < n; i++ {
		id, name, err := at(i)
		out[i] = NewStartedInstance(id, name, err)
	}
	return out
}

func errToPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return &ErrorPayload{Kind: string(appErr.Kind), Message: appErr.Message}
	}
	return &ErrorPayload{Kind: "Internal", Message: err.Error()}
}
