// Package metrics exposes Prometheus collectors describing the supervised
// process population. Grounded directly on the teacher's
// internal/metrics/metrics.go: same package-level CounterVec/GaugeVec/
// HistogramVec collectors registered once behind an atomic guard, same
// no-op-until-registered helper functions, generalized from the teacher's
// three-state (start/stop/restart) model to the seven-state lifecycle and
// extended with resource-limit violation counters spec.md section 4.5 adds.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "starts_total", Help: "Number of successful process starts."},
		[]string{"name"},
	)
	processRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "restarts_total", Help: "Number of auto restarts."},
		[]string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "stops_total", Help: "Number of stops, graceful or forced."},
		[]string{"name"},
	)
	processCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "crashes_total", Help: "Number of unexpected exits detected by the monitor."},
		[]string{"name"},
	)
	limitViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "limit_violations_total", Help: "Number of times a process was observed over a configured resource limit."},
		[]string{"name", "kind"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "adasa", Subsystem: "process", Name: "state_transitions_total", Help: "Number of state transitions between lifecycle states."},
		[]string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "adasa", Subsystem: "process", Name: "current_state", Help: "1 for the state a process currently occupies, 0 otherwise."},
		[]string{"name", "state"},
	)
	runningInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "adasa", Subsystem: "process", Name: "running_instances", Help: "Current running instances per base process name."},
		[]string{"base"},
	)
	restartBackoff = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "adasa", Subsystem: "process", Name: "restart_backoff_seconds", Help: "Backoff delay applied before a restart attempt.", Buckets: prometheus.DefBuckets},
		[]string{"name"},
	)
	memoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "adasa", Subsystem: "process", Name: "memory_rss_bytes", Help: "Last-sampled resident set size."},
		[]string{"name"},
	)
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "adasa", Subsystem: "process", Name: "cpu_percent", Help: "Last-sampled CPU usage percentage."},
		[]string{"name"},
	)
)

// Register registers every collector with r. Safe to call more than once;
// later calls after a success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		processStarts, processRestarts, processStops, processCrashes, limitViolations,
		stateTransitions, currentStates, runningInstances, restartBackoff, memoryRSS, cpuPercent,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the default gatherer's metrics.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		processRestarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncCrash(name string) {
	if regOK.Load() {
		processCrashes.WithLabelValues(name).Inc()
	}
}

func IncLimitViolation(name, kind string) {
	if regOK.Load() {
		limitViolations.WithLabelValues(name, kind).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if !regOK.Load() {
		return
	}
	var v float64
	if active {
		v = 1
	}
	currentStates.WithLabelValues(name, state).Set(v)
}

func SetRunningInstances(base string, n int) {
	if regOK.Load() {
		runningInstances.WithLabelValues(base).Set(float64(n))
	}
}

func ObserveRestartBackoff(name string, seconds float64) {
	if regOK.Load() {
		restartBackoff.WithLabelValues(name).Observe(seconds)
	}
}

func SetMemoryRSS(name string, bytes uint64) {
	if regOK.Load() {
		memoryRSS.WithLabelValues(name).Set(float64(bytes))
	}
}

func SetCPUPercent(name string, pct float32) {
	if regOK.Load() {
		cpuPercent.WithLabelValues(name).Set(float64(pct))
	}
}
