package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/adasa/internal/dispatcher"
	"github.com/loykin/adasa/internal/registry"
)

func setupRouter(t *testing.T, base string) (http.Handler, *registry.Registry, *dispatcher.Dispatcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New()
	disp := dispatcher.New(reg, nil)
	r := NewRouter(reg, disp, base)
	return r.Handler(), reg, disp
}

func doReq(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzOK(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := doReq(h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["ok"] {
		t.Fatalf("expected ok:true, got %v", body)
	}
}

func TestStatusEmptyRegistryReturnsEmptyList(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := doReq(h, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var procs []registry.ManagedProcess
	if err := json.Unmarshal(rec.Body.Bytes(), &procs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(procs) != 0 {
		t.Fatalf("expected no processes, got %d", len(procs))
	}
}

func TestStatusUnknownNameReturnsNotFound(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := doReq(h, http.MethodGet, "/status?name=nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusMatchesRegisteredEntry(t *testing.T) {
	h, reg, _ := setupRouter(t, "/base")
	if _, err := reg.Create("worker", registry.ProcessConfig{Name: "worker", Script: "/bin/sleep"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec := doReq(h, http.MethodGet, "/base/status?name=worker")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var procs []registry.ManagedProcess
	if err := json.Unmarshal(rec.Body.Bytes(), &procs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(procs) != 1 || procs[0].Name != "worker" {
		t.Fatalf("unexpected result: %+v", procs)
	}
}

func TestMetricsServesPrometheusFormat(t *testing.T) {
	h, _, _ := setupRouter(t, "")
	rec := doReq(h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Fatalf("expected a content-type header from promhttp")
	}
}
