// Package client is the thin library cmd/adasa uses to talk to the daemon
// over its Unix domain socket, so the CLI never constructs ipc.Request
// values by hand. Grounded on the shape of gnuos-spm's pkg/client (one
// exported func per daemon action, each a wrapper around a single
// request/response round trip) and loykin-provisr's pkg/client/client.go,
// adapted to adasa's typed Request/Response envelope instead of a bespoke
// ActionMsg per verb.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/ipc"
	"github.com/loykin/adasa/internal/logcapture"
	"github.com/loykin/adasa/internal/registry"
)

// StartedInstance is the wire-safe result of a Start/StartFromConfig call;
// Error is nil on success.
type StartedInstance = ipc.StartedInstance

// DialTimeout bounds how long connecting to the daemon socket may take
// before Client reports apperrors.KindDaemonUnreachable.
const DialTimeout = 2 * time.Second

// Client is a short-lived connection to the daemon: one Client per
// request, matching the CLI's one-shot invocation model.
type Client struct {
	socketPath string
}

// New returns a Client that dials socketPath on each call.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) roundTrip(req ipc.Request) (ipc.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, DialTimeout)
	if err != nil {
		return ipc.Response{}, apperrors.Wrap(apperrors.KindDaemonUnreachable, "connect to daemon", err)
	}
	defer func() { _ = conn.Close() }()

	data, err := ipc.Marshal(req)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("client: encode request: %w", err)
	}
	if err := ipc.WriteFrame(conn, data); err != nil {
		return ipc.Response{}, apperrors.Wrap(apperrors.KindDaemonUnreachable, "send request", err)
	}

	respData, err := ipc.ReadFrame(conn)
	if err != nil {
		return ipc.Response{}, apperrors.Wrap(apperrors.KindDaemonUnreachable, "read response", err)
	}
	var resp ipc.Response
	if err := ipc.Unmarshal(respData, &resp); err != nil {
		return ipc.Response{}, fmt.Errorf("client: decode response: %w", err)
	}
	if !resp.OK && resp.Error != nil {
		return resp, &apperrors.Error{Kind: apperrors.Kind(resp.Error.Kind), Message: resp.Error.Message}
	}
	return resp, nil
}

// Start declares and spawns cfg, returning one StartedInstance per
// requested instance.
func (c *Client) Start(cfg registry.ProcessConfig) ([]StartedInstance, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindStart, Config: cfg})
	if err != nil {
		return nil, err
	}
	var out []StartedInstance
	return out, ipc.DecodePayload(resp, &out)
}

// StartFromConfig starts every declared process, in priority order.
func (c *Client) StartFromConfig(cfgs []registry.ProcessConfig) ([]StartedInstance, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindStartFromConfig, Configs: cfgs})
	if err != nil {
		return nil, err
	}
	var out []StartedInstance
	return out, ipc.DecodePayload(resp, &out)
}

// ReloadConfig adds any process declared in cfgs that the daemon doesn't
// already know about, leaving existing entries untouched.
func (c *Client) ReloadConfig(cfgs []registry.ProcessConfig) (dispatcher.ReloadResult, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindReloadConfig, Configs: cfgs})
	if err != nil {
		return dispatcher.ReloadResult{}, err
	}
	var out dispatcher.ReloadResult
	return out, ipc.DecodePayload(resp, &out)
}

// Stop signals every process matching selector to stop, escalating to
// SIGKILL after its configured timeout unless force is set, which sends
// SIGKILL immediately.
func (c *Client) Stop(selector string, force bool) error {
	_, err := c.roundTrip(ipc.Request{Kind: ipc.KindStop, Selector: selector, Force: force})
	return err
}

// Restart stops then starts every process matching selector. When rolling
// is set, multi-instance groups are restarted one instance at a time.
func (c *Client) Restart(selector string, rolling bool) error {
	_, err := c.roundTrip(ipc.Request{Kind: ipc.KindRestart, Selector: selector, Rolling: rolling})
	return err
}

// Delete stops (if needed) and removes every process matching selector
// from the registry.
func (c *Client) Delete(selector string) error {
	_, err := c.roundTrip(ipc.Request{Kind: ipc.KindDelete, Selector: selector})
	return err
}

// List returns every non-deleted managed process.
func (c *Client) List() ([]registry.ManagedProcess, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindList})
	if err != nil {
		return nil, err
	}
	var out []registry.ManagedProcess
	return out, ipc.DecodePayload(resp, &out)
}

// Status returns every entry matching selector.
func (c *Client) Status(selector string) ([]registry.ManagedProcess, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindStatus, Selector: selector})
	if err != nil {
		return nil, err
	}
	var out []registry.ManagedProcess
	return out, ipc.DecodePayload(resp, &out)
}

// Logs returns the last n captured lines of stdout/stderr for the first
// process matching selector.
func (c *Client) Logs(selector string, n int) (logcapture.Lines, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindLogs, Selector: selector, Lines: n})
	if err != nil {
		return logcapture.Lines{}, err
	}
	var out logcapture.Lines
	return out, ipc.DecodePayload(resp, &out)
}

// DaemonStatus reports coarse liveness/process-count information about the
// daemon itself.
func (c *Client) DaemonStatus() (int, error) {
	resp, err := c.roundTrip(ipc.Request{Kind: ipc.KindDaemonStatus})
	if err != nil {
		return 0, err
	}
	var out struct {
		ProcessCount int `cbor:"process_count"`
	}
	if err := ipc.DecodePayload(resp, &out); err != nil {
		return 0, err
	}
	return out.ProcessCount, nil
}

// DaemonShutdown requests the daemon stop every managed process, persist a
// final snapshot, and exit.
func (c *Client) DaemonShutdown() error {
	_, err := c.roundTrip(ipc.Request{Kind: ipc.KindDaemonShutdown})
	return err
}
