package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// freshRegistry resets the registration gate and registers into a new registry.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("frontend")
	IncStop("frontend")
	IncSpawnFailure("backend")
	ObserveExit("frontend", false, 3*time.Second)
	ObserveRequest("/api/viton/status", http.MethodGet, 200, 5*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"devorch_process_starts_total":          false,
		"devorch_process_spawn_failures_total":  false,
		"devorch_process_stops_total":           false,
		"devorch_process_exits_total":           false,
		"devorch_process_uptime_seconds":        false,
		"devorch_process_running":               false,
		"devorch_http_requests_total":           false,
		"devorch_http_request_duration_seconds": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestRunningGaugeFollowsLifecycle(t *testing.T) {
	freshRegistry(t)
	IncStart("backend")
	if v := testutil.ToFloat64(processRunning.WithLabelValues("backend")); v != 1 {
		t.Fatalf("running after start = %v", v)
	}
	ObserveExit("backend", true, time.Second)
	if v := testutil.ToFloat64(processRunning.WithLabelValues("backend")); v != 0 {
		t.Fatalf("running after exit = %v", v)
	}
	before := testutil.ToFloat64(processExits.WithLabelValues("backend", "clean"))
	ObserveExit("backend", true, time.Second)
	if after := testutil.ToFloat64(processExits.WithLabelValues("backend", "clean")); after != before+1 {
		t.Fatalf("clean exits %v -> %v", before, after)
	}
	SetRunning("backend", true)
	if v := testutil.ToFloat64(processRunning.WithLabelValues("backend")); v != 1 {
		t.Fatalf("running after SetRunning = %v", v)
	}
}

func TestHandlerForServesMetrics(t *testing.T) {
	reg := freshRegistry(t)
	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	IncStart("frontend")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `devorch_process_starts_total{role="frontend"}`) {
		t.Fatalf("metrics output missing starts_total: %s", b)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart("c")
			IncStop("c")
			ObserveExit("c", true, time.Millisecond)
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	IncStart("test")
	IncStop("test")
	IncSpawnFailure("test")
	ObserveExit("test", true, time.Second)
	ObserveRequest("/x", http.MethodGet, 404, time.Millisecond)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{shouldError: true})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProcessCollector_ReportsLivePIDs(t *testing.T) {
	self := os.Getpid()
	c := NewProcessCollector(func() map[string]int {
		return map[string]int{"frontend": self, "backend": 0}
	}, nil)
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register collector: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "devorch_process_memory_rss_bytes" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "role" && lp.GetValue() == "backend" {
					t.Fatalf("role without pid must not be reported")
				}
			}
			if m.GetGauge().GetValue() > 0 {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected rss sample for the test process")
	}
}

// Custom registerer for testing error handling
type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
