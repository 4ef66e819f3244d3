package ipc

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/loykin/adasa/internal/apperrors"
	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/logcapture"
	"github.com/loykin/adasa/internal/registry"
)

// ShutdownFunc triggers the daemon's graceful shutdown coordinator; wired
// by cmd/adasa to cancel the context that Coordinator.WaitForSignal waits
// on, so this package doesn't need to import it directly.
type ShutdownFunc func()

// Server accepts connections on a Unix domain socket and dispatches each
// framed Request to the process registry via a dispatcher.Dispatcher.
// Grounded on gnuos-spm's pkg/supervisor.SpmSession.Handle, generalized
// from a single hardcoded switch of process-lifecycle actions to a request
// Kind enum that also covers config reload and daemon lifecycle queries.
type Server struct {
	socketPath string
	reg        *registry.Registry
	disp       *dispatcher.Dispatcher
	shutdown   ShutdownFunc
	log        *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New builds a Server. shutdown may be nil if DaemonShutdown requests
// should be rejected (e.g. in tests).
func New(socketPath string, reg *registry.Registry, disp *dispatcher.Dispatcher, shutdown ShutdownFunc, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{socketPath: socketPath, reg: reg, disp: disp, shutdown: shutdown, log: log}
}

// Serve listens on the configured socket path and accepts connections
// until Close is called. It removes any stale socket file left behind by
// a prior, uncleanly terminated daemon before binding.
func (s *Server) Serve() error {
	_ = os.Remove(s.socketPath)
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("ipc accept failed", "error", err)
			continue
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections. In-flight connections are left to
// finish on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	_ = os.Remove(s.socketPath)
	return err
}

func (s *Server) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	data, err := ReadFrame(conn)
	if err != nil {
		return
	}
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		s.reply(conn, ReplyError(string(apperrors.KindValidationFailed), "malformed request: "+err.Error()))
		return
	}
	s.reply(conn, s.dispatch(req))
}

func (s *Server) reply(conn net.Conn, resp Response) {
	data, err := Marshal(resp)
	if err != nil {
		s.log.Error("failed to encode ipc response", "error", err)
		return
	}
	if err := WriteFrame(conn, data); err != nil {
		s.log.Warn("failed to write ipc response", "error", err)
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Kind {
	case KindStart:
		results := s.disp.Start(req.Config)
		resp, err := ReplyOK(NewStartedInstances(len(results), func(i int) (int64, string, error) {
			return results[i].ID, results[i].Name, results[i].Error
		}))
		return okOrErr(resp, err)

	case KindStartFromConfig:
		results := s.disp.StartFromConfig(req.Configs)
		resp, err := ReplyOK(NewStartedInstances(len(results), func(i int) (int64, string, error) {
			return results[i].ID, results[i].Name, results[i].Error
		}))
		return okOrErr(resp, err)

	case KindReloadConfig:
		result := s.disp.ReloadConfig(req.Configs)
		resp, err := ReplyOK(result)
		return okOrErr(resp, err)

	case KindStop:
		if err := s.disp.Stop(req.Selector, req.Force); err != nil {
			return errorResponse(err)
		}
		resp, _ := ReplyOK(struct{}{})
		return resp

	case KindRestart:
		if err := s.disp.Restart(req.Selector, req.Rolling); err != nil {
			return errorResponse(err)
		}
		resp, _ := ReplyOK(struct{}{})
		return resp

	case KindDelete:
		if err := s.disp.Delete(req.Selector); err != nil {
			return errorResponse(err)
		}
		resp, _ := ReplyOK(struct{}{})
		return resp

	case KindList:
		resp, err := ReplyOK(s.disp.List())
		return okOrErr(resp, err)

	case KindStatus:
		matches := dispatcher.Resolve(s.reg, req.Selector)
		if len(matches) == 0 {
			return errorResponse(apperrors.NotFound(req.Selector))
		}
		resp, err := ReplyOK(matches)
		return okOrErr(resp, err)

	case KindLogs:
		matches := dispatcher.Resolve(s.reg, req.Selector)
		if len(matches) == 0 {
			return errorResponse(apperrors.NotFound(req.Selector))
		}
		lines, err := logcapture.Tail(matches[0].Config.Log, matches[0].Name, req.Lines)
		if err != nil {
			return errorResponse(apperrors.Wrap(apperrors.KindValidationFailed, "reading logs", err))
		}
		resp, err := ReplyOK(lines)
		return okOrErr(resp, err)

	case KindDaemonStatus:
		resp, err := ReplyOK(struct {
			ProcessCount int `cbor:"process_count"`
		}{ProcessCount: len(s.reg.List())})
		return okOrErr(resp, err)

	case KindDaemonShutdown:
		if s.shutdown == nil {
			return errorResponse(apperrors.New(apperrors.KindValidationFailed, "daemon shutdown is not available on this connection"))
		}
		go s.shutdown()
		resp, _ := ReplyOK(struct{}{})
		return resp

	default:
		return errorResponse(apperrors.New(apperrors.KindValidationFailed, "unknown request kind"))
	}
}

func okOrErr(resp Response, err error) Response {
	if err != nil {
		return errorResponse(err)
	}
	return resp
}

func errorResponse(err error) Response {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return ReplyError(string(appErr.Kind), appErr.Error())
	}
	return ReplyError("Internal", err.Error())
}
