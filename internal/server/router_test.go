package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/devorch/internal/orchestrator"
)

type fakeOrch struct {
	mu      sync.Mutex
	dirs    []string
	start   orchestrator.StartResult
	status  orchestrator.StatusSnapshot
	stop    orchestrator.StopResult
	err     error
	stopped int
}

func (f *fakeOrch) StartFrontend(_ context.Context, dir string) (orchestrator.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, "frontend:"+dir)
	return f.start, f.err
}

func (f *fakeOrch) StartBackend(_ context.Context, dir string) (orchestrator.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs = append(f.dirs, "backend:"+dir)
	return f.start, f.err
}

func (f *fakeOrch) Status(context.Context) (orchestrator.StatusSnapshot, error) {
	return f.status, f.err
}

func (f *fakeOrch) StopAll(context.Context) (orchestrator.StopResult, error) {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return f.stop, f.err
}

func setupRouter(t *testing.T, orch Orchestrator, opts Options) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.BasePath == "" {
		opts.BasePath = "/api/viton"
	}
	h, err := NewRouter(orch, opts).Handler()
	require.NoError(t, err)
	return h
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestStartFrontendSuccess(t *testing.T) {
	f := &fakeOrch{start: orchestrator.StartResult{Success: true, Message: "VITON Frontend started successfully", PID: 42}}
	h := setupRouter(t, f, Options{Development: true})

	rec := doReq(t, h, http.MethodPost, "/api/viton/start-frontend", map[string]string{"directory": "/srv/web"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, float64(42), m["pid"])
	assert.Equal(t, []string{"frontend:/srv/web"}, f.dirs)
}

func TestStartBackendFailureIs500(t *testing.T) {
	f := &fakeOrch{start: orchestrator.StartResult{Success: false, Message: "Failed to start VITON Backend", Error: "chdir: no such file"}}
	h := setupRouter(t, f, Options{Development: true})

	rec := doReq(t, h, http.MethodPost, "/api/viton/start-backend", map[string]string{"directory": "/nope"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "Failed to start VITON Backend", m["message"])
	assert.Equal(t, "chdir: no such file", m["error"])
	_, hasPID := m["pid"]
	assert.False(t, hasPID)
	assert.Equal(t, []string{"backend:/nope"}, f.dirs)
}

func TestStartMalformedBody(t *testing.T) {
	f := &fakeOrch{}
	h := setupRouter(t, f, Options{Development: true})

	for _, body := range []any{"{not json", "", map[string]string{"dir": "/x"}, map[string]string{"directory": "  "}} {
		rec := doReq(t, h, http.MethodPost, "/api/viton/start-frontend", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
		m := decode(t, rec)
		assert.Equal(t, false, m["success"])
		assert.Equal(t, "Invalid request body", m["message"])
		assert.NotEmpty(t, m["error"])
	}
	assert.Empty(t, f.dirs, "orchestrator must not be called for malformed bodies")
}

func TestStartBodyTooLarge(t *testing.T) {
	h := setupRouter(t, &fakeOrch{}, Options{Development: true})
	big := `{"directory":"` + strings.Repeat("a", maxBodyBytes+10) + `"}`
	rec := doReq(t, h, http.MethodPost, "/api/viton/start-backend", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndStop(t *testing.T) {
	pid := 7
	f := &fakeOrch{
		status: orchestrator.StatusSnapshot{
			Frontend: orchestrator.RoleStatus{Running: true, PID: &pid},
			Backend:  orchestrator.RoleStatus{},
		},
		stop: orchestrator.StopResult{Success: true, Stopped: []orchestrator.Role{orchestrator.Frontend}},
	}
	h := setupRouter(t, f, Options{Development: true})

	rec := doReq(t, h, http.MethodGet, "/api/viton/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	fe := m["frontend"].(map[string]any)
	be := m["backend"].(map[string]any)
	assert.Equal(t, true, fe["running"])
	assert.Equal(t, float64(7), fe["pid"])
	assert.Equal(t, false, be["running"])
	v, present := be["pid"]
	assert.True(t, present, "pid must be present as null")
	assert.Nil(t, v)

	rec = doReq(t, h, http.MethodPost, "/api/viton/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"stopped":["frontend"]}`, rec.Body.String())
}

func TestWrongMethodFallsThrough(t *testing.T) {
	f := &fakeOrch{}
	h := setupRouter(t, f, Options{Development: true})
	rec := doReq(t, h, http.MethodGet, "/api/viton/start-frontend", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doReq(t, h, http.MethodGet, "/api/viton/stop", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.stopped)
}

func TestCompatRoutes(t *testing.T) {
	pid := 9
	f := &fakeOrch{
		start:  orchestrator.StartResult{Success: true, Message: "VITON Frontend started successfully", PID: 9},
		status: orchestrator.StatusSnapshot{Frontend: orchestrator.RoleStatus{Running: true, PID: &pid}},
		stop:   orchestrator.StopResult{Success: true, Stopped: []orchestrator.Role{orchestrator.Frontend}},
	}
	h := setupRouter(t, f, Options{Development: true, CompatPrefix: "/api"})

	rec := doReq(t, h, http.MethodPost, "/api/start-viton-frontend", map[string]string{"directory": "/tmp"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(9), decode(t, rec)["pid"])

	rec = doReq(t, h, http.MethodPost, "/api/start-viton-backend", map[string]string{"directory": "/srv/api"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doReq(t, h, http.MethodPost, "/api/start-viton-backend", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, h, http.MethodGet, "/api/viton-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["frontend"].(map[string]any)["running"])

	rec = doReq(t, h, http.MethodPost, "/api/stop-viton", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"stopped":["frontend"]}`, rec.Body.String())

	f.mu.Lock()
	assert.Equal(t, []string{"frontend:/tmp", "backend:/srv/api"}, f.dirs)
	f.mu.Unlock()

	// other verbs and unknown names under the prefix never reach the SPA
	rec = doReq(t, h, http.MethodGet, "/api/stop-viton", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, f.stopped)
}

func TestCompatRoutesOffWithoutPrefix(t *testing.T) {
	h := setupRouter(t, &fakeOrch{}, Options{Development: true})
	rec := doReq(t, h, http.MethodPost, "/api/start-viton-frontend", map[string]string{"directory": "/tmp"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrchestratorShutdownIs503(t *testing.T) {
	f := &fakeOrch{err: orchestrator.ErrShutdown}
	h := setupRouter(t, f, Options{Development: true})
	rec := doReq(t, h, http.MethodGet, "/api/viton/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProductionModeHidesOrchestrator(t *testing.T) {
	f := &fakeOrch{}
	h := setupRouter(t, f, Options{Development: false})
	rec := doReq(t, h, http.MethodPost, "/api/viton/stop", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, f.stopped)
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>index</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))
	h := setupRouter(t, &fakeOrch{}, Options{Development: true, StaticDir: dir})

	rec := doReq(t, h, http.MethodGet, "/assets/app.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = doReq(t, h, http.MethodGet, "/projects/viton", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "index")

	rec = doReq(t, h, http.MethodGet, "/../../etc/passwd", nil)
	assert.NotContains(t, rec.Body.String(), "root:")

	rec = doReq(t, h, http.MethodGet, "/api/viton/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doReq(t, h, http.MethodPost, "/contact", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	mh := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	h := setupRouter(t, nil, Options{MetricsPath: "/metrics", MetricsHandler: mh})
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestRealOrchestratorNonexistentDirectory(t *testing.T) {
	o := orchestrator.New(orchestrator.Config{})
	defer func() { _ = o.Shutdown(context.Background()) }()
	h := setupRouter(t, o, Options{Development: true})

	rec := doReq(t, h, http.MethodPost, "/api/viton/start-frontend", map[string]string{"directory": filepath.Join(t.TempDir(), "missing")})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "Failed to start VITON Frontend", m["message"])

	rec = doReq(t, h, http.MethodPost, "/api/viton/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"stopped":[]}`, rec.Body.String())

	rec = doReq(t, h, http.MethodGet, "/api/viton/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m = decode(t, rec)
	assert.Nil(t, m["frontend"].(map[string]any)["pid"])
}
