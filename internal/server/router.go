package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/devorch/internal/orchestrator"
)

// maxBodyBytes caps request bodies of the start endpoints.
const maxBodyBytes = 1 << 20

// Orchestrator is the subset of *orchestrator.Orchestrator served over HTTP.
type Orchestrator interface {
	StartFrontend(ctx context.Context, dir string) (orchestrator.StartResult, error)
	StartBackend(ctx context.Context, dir string) (orchestrator.StartResult, error)
	Status(ctx context.Context) (orchestrator.StatusSnapshot, error)
	StopAll(ctx context.Context) (orchestrator.StopResult, error)
}

// Options configures the dev server router.
//
// Development mounts the orchestrator endpoints under BasePath and the proxy
// rules; otherwise only static files and metrics are served.
//
// CompatPrefix, when set, additionally mounts the same handlers under the
// flat names the portfolio bundle calls: {CompatPrefix}/start-viton-frontend,
// /start-viton-backend, /viton-status and /stop-viton.
type Options struct {
	BasePath       string
	CompatPrefix   string
	StaticDir      string
	Development    bool
	Proxies        []ProxyRule
	MetricsPath    string
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Router provides the dev server's HTTP surface.
// Endpoints (development mode):
//
//	POST {basePath}/start-frontend  body: {"directory": "..."}
//	POST {basePath}/start-backend   body: {"directory": "..."}
//	GET  {basePath}/status
//	POST {basePath}/stop
type Router struct {
	orch Orchestrator
	opts Options
	log  *slog.Logger
}

// NewRouter constructs a Router; orch may be nil outside development mode.
func NewRouter(orch Orchestrator, opts Options) *Router {
	opts.BasePath = sanitizeBase(opts.BasePath)
	opts.MetricsPath = sanitizeBase(opts.MetricsPath)
	opts.CompatPrefix = sanitizeBase(opts.CompatPrefix)
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{orch: orch, opts: opts, log: log.With("component", "http")}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() (http.Handler, error) {
	g := gin.New()
	g.Use(gin.Recovery(), accessLog(r.log), observe())

	if r.opts.MetricsPath != "" && r.opts.MetricsHandler != nil {
		g.GET(r.opts.MetricsPath, gin.WrapH(r.opts.MetricsHandler))
	}

	if r.opts.Development && r.orch != nil {
		group := g.Group(r.opts.BasePath)
		group.POST("/start-frontend", r.handleStart(orchestrator.Frontend))
		group.POST("/start-backend", r.handleStart(orchestrator.Backend))
		group.GET("/status", r.handleStatus)
		group.POST("/stop", r.handleStop)

		if r.opts.CompatPrefix != "" {
			compat := g.Group(r.opts.CompatPrefix)
			compat.POST("/start-viton-frontend", r.handleStart(orchestrator.Frontend))
			compat.POST("/start-viton-backend", r.handleStart(orchestrator.Backend))
			compat.GET("/viton-status", r.handleStatus)
			compat.POST("/stop-viton", r.handleStop)
		}

		for _, rule := range r.opts.Proxies {
			prefix := sanitizeBase(rule.Prefix)
			if prefix == "" || rule.Target == "" {
				continue
			}
			h, err := newProxy(rule, r.log)
			if err != nil {
				return nil, err
			}
			g.Any(prefix, h)
			g.Any(prefix+"/*path", h)
			r.log.Info("proxy mounted", "prefix", prefix, "target", rule.Target)
		}
	}

	g.NoRoute(r.handleFallback)
	return g, nil
}

type startRequest struct {
	Directory string `json:"directory"`
}

type errorResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (r *Router) handleStart(role orchestrator.Role) gin.HandlerFunc {
	start := r.orch.StartFrontend
	if role == orchestrator.Backend {
		start = r.orch.StartBackend
	}
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Message: "Invalid request body", Error: err.Error()})
			return
		}
		if strings.TrimSpace(req.Directory) == "" {
			writeJSON(c, http.StatusBadRequest, errorResp{Message: "Invalid request body", Error: "directory is required"})
			return
		}

		res, err := start(c.Request.Context(), req.Directory)
		if err != nil {
			r.unavailable(c, err)
			return
		}
		code := http.StatusOK
		if !res.Success {
			code = http.StatusInternalServerError
		}
		writeJSON(c, code, res)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	s, err := r.orch.Status(c.Request.Context())
	if err != nil {
		r.unavailable(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (r *Router) handleStop(c *gin.Context) {
	res, err := r.orch.StopAll(c.Request.Context())
	if err != nil {
		r.unavailable(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) unavailable(c *gin.Context, err error) {
	if !errors.Is(err, context.Canceled) {
		r.log.Warn("orchestrator call failed", "path", c.Request.URL.Path, "error", err)
	}
	writeJSON(c, http.StatusServiceUnavailable, errorResp{Message: "Orchestrator unavailable", Error: err.Error()})
}

// handleFallback serves files from StaticDir and index.html for unknown GET
// paths so that client-side routes resolve. API paths never fall back.
func (r *Router) handleFallback(c *gin.Context) {
	p := c.Request.URL.Path
	isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
	if !isRead || hasPathPrefix(p, r.opts.BasePath) || hasPathPrefix(p, r.opts.CompatPrefix) {
		writeJSON(c, http.StatusNotFound, errorResp{Message: "Not found"})
		return
	}
	if f, ok := staticFile(r.opts.StaticDir, p); ok {
		c.File(f)
		return
	}
	if index, ok := staticFile(r.opts.StaticDir, "/index.html"); ok {
		c.File(index)
		return
	}
	writeJSON(c, http.StatusNotFound, errorResp{Message: "Not found"})
}
