// Package httpapi exposes the read-only HTTP introspection surface:
// GET /healthz, GET /metrics (Prometheus), GET /status. It never accepts a
// mutating request; every write still goes through the IPC socket so there
// is a single command-dispatch path. Grounded on the teacher's
// internal/server/router.go (gin.New + gin.Recovery, a basePath-scoped
// route group, writeJSON helper), trimmed down from its start/stop/debug
// handlers to the status-only surface spec.md's supplemental HTTP section
// calls for.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/metrics"
	"github.com/loykin/adasa/internal/registry"
)

// Router serves the introspection endpoints over a registry/dispatcher
// pair. It holds the registry directly (rather than only the dispatcher)
// so /status?name=... can resolve selectors the same way the IPC server
// does, without the dispatcher needing to expose its registry.
type Router struct {
	reg      *registry.Registry
	disp     *dispatcher.Dispatcher
	basePath string
}

// NewRouter constructs a Router. basePath may be empty or start with '/';
// routes are mounted underneath it ("" mounts at the document root).
func NewRouter(reg *registry.Registry, disp *dispatcher.Dispatcher, basePath string) *Router {
	return &Router{reg: reg, disp: disp, basePath: sanitizeBase(basePath)}
}

func sanitizeBase(bp string) string {
	if bp == "" || bp == "/" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}

// Handler returns an http.Handler suitable for http.Server.Handler or for
// mounting inside another mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", r.handleMetrics)
	group.GET("/status", r.handleStatus)
	return g
}

// NewServer starts a standalone HTTP server on addr serving this router's
// routes. Callers are responsible for shutting it down (e.g. via
// http.Server.Shutdown from internal/shutdown).
func NewServer(addr, basePath string, reg *registry.Registry, disp *dispatcher.Dispatcher) *http.Server {
	r := NewRouter(reg, disp, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleMetrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

func (r *Router) handleStatus(c *gin.Context) {
	selector := c.Query("name")
	if selector == "" {
		writeJSON(c, http.StatusOK, r.disp.List())
		return
	}
	matches := dispatcher.Resolve(r.reg, selector)
	if len(matches) == 0 {
		writeJSON(c, http.StatusNotFound, gin.H{"error": "no process matched " + selector})
		return
	}
	writeJSON(c, http.StatusOK, matches)
}
