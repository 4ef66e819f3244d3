package metrics

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("a")
	IncRestart("a")
	IncStop("a")
	IncCrash("a")
	IncLimitViolation("a", "memory")
	SetRunningInstances("base", 3)
	ObserveRestartBackoff("a", 1.5)
	SetMemoryRSS("a", 1024)
	SetCPUPercent("a", 12.5)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"adasa_process_starts_total":           false,
		"adasa_process_restarts_total":         false,
		"adasa_process_stops_total":            false,
		"adasa_process_crashes_total":          false,
		"adasa_process_limit_violations_total": false,
		"adasa_process_running_instances":      false,
		"adasa_process_restart_backoff_seconds": false,
		"adasa_process_memory_rss_bytes":        false,
		"adasa_process_cpu_percent":             false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", mf.GetName())
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncRestart("c")
			IncStop("c")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather under concurrent use: %v", err)
	}
}

func TestMetricsBeforeRegisterAreNoOps(t *testing.T) {
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	IncStart("test")
	IncRestart("test")
	IncStop("test")
	IncCrash("test")
	IncLimitViolation("test", "cpu")
	SetRunningInstances("test", 5)
	RecordStateTransition("test", "start", "run")
	SetCurrentState("test", "running", true)
	ObserveRestartBackoff("test", 1.0)
	SetMemoryRSS("test", 512)
	SetCPUPercent("test", 5.0)
}

func TestRegisterPropagatesNonDuplicateError(t *testing.T) {
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	err := Register(&erroringRegisterer{})
	if err == nil {
		t.Fatal("expected Register to propagate a non-AlreadyRegisteredError")
	}
	if err.Error() != "boom" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type erroringRegisterer struct{}

func (e *erroringRegisterer) Register(prometheus.Collector) error {
	return errors.New("boom")
}
func (e *erroringRegisterer) MustRegister(...prometheus.Collector) {}
func (e *erroringRegisterer) Unregister(prometheus.Collector) bool { return false }
