package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/devorch/internal/config"
	"github.com/loykin/devorch/internal/history"
	"github.com/loykin/devorch/internal/history/factory"
	"github.com/loykin/devorch/internal/logger"
	"github.com/loykin/devorch/internal/metrics"
	"github.com/loykin/devorch/internal/orchestrator"
	"github.com/loykin/devorch/internal/server"
	devtls "github.com/loykin/devorch/internal/tls"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the devorch server",
		Long: `Start the HTTP server. In development mode it also mounts the
orchestrator API and the reverse proxies to the frontend and backend dev
servers. Settings come from the optional TOML file and DEVORCH_* variables.

Examples:
  devorch serve                          # Defaults, development mode on :8080
  devorch serve devorch.toml             # Start with a specific config file
  DEVORCH_MODE=production devorch serve  # Static files and metrics only`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.LoggerSettings())
	if err != nil {
		return fmt.Errorf("error creating logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		_ = a.close(context.Background())
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx, ln)
}

const defaultShutdownTimeout = 10 * time.Second

// app is one configured server instance and everything it owns.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	orch     *orchestrator.Orchestrator
	recorder *history.Recorder
	srv      *server.Server
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	sinks, err := factory.NewSinks(cfg.History.DSNs)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if len(sinks) > 0 {
		a.recorder = history.NewRecorder(log.With("component", "history"), sinks...)
	}

	var orch server.Orchestrator
	if cfg.IsDevelopment() {
		opts := []orchestrator.Option{orchestrator.WithLogger(log)}
		if a.recorder != nil {
			opts = append(opts, orchestrator.WithRecorder(a.recorder))
		}
		a.orch = orchestrator.New(cfg.Orchestrator(), opts...)
		orch = a.orch
	}

	ropts := server.Options{
		BasePath:     cfg.Server.BasePath,
		CompatPrefix: cfg.Server.CompatPrefix,
		StaticDir:    cfg.Server.StaticDir,
		Development:  cfg.IsDevelopment(),
		Proxies:      a.proxies(),
		Logger:       log,
	}
	if cfg.Metrics.Enabled {
		if err := a.registerMetrics(prometheus.DefaultRegisterer); err != nil {
			_ = a.close(context.Background())
			return nil, err
		}
		ropts.MetricsPath = cfg.Metrics.Path
		ropts.MetricsHandler = metrics.Handler()
	}

	h, err := server.NewRouter(orch, ropts).Handler()
	if err != nil {
		_ = a.close(context.Background())
		return nil, fmt.Errorf("router: %w", err)
	}
	tlsConfig, err := devtls.Setup(cfg.Server.TLS)
	if err != nil {
		_ = a.close(context.Background())
		return nil, err
	}
	a.srv = server.NewServer(cfg.Server.Listen, h, tlsConfig, server.Timeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
	}, log)
	return a, nil
}

func (a *app) proxies() []server.ProxyRule {
	if a.orch == nil {
		return nil
	}
	oc := a.orch.Config()
	var rules []server.ProxyRule
	for _, r := range []struct {
		prefix string
		role   orchestrator.Role
	}{
		{a.cfg.Frontend.ProxyPrefix, orchestrator.Frontend},
		{a.cfg.Backend.ProxyPrefix, orchestrator.Backend},
	} {
		if r.prefix == "" || oc.URL(r.role) == "" {
			continue
		}
		rules = append(rules, server.ProxyRule{Prefix: r.prefix, Target: oc.URL(r.role)})
	}
	return rules
}

func (a *app) registerMetrics(reg prometheus.Registerer) error {
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if !a.cfg.Metrics.ProcessStats || a.orch == nil {
		return nil
	}
	err := reg.Register(metrics.NewProcessCollector(a.orch.PIDs, a.log))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		return fmt.Errorf("process metrics: %w", err)
	}
	return nil
}

// run serves on ln until ctx is done, then shuts everything down within
// the configured shutdown timeout.
func (a *app) run(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.Serve(ln) }()

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error("http server failed", "error", serveErr)
		}
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.srv.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", "error", err)
	}
	// children get their own budget; a hung proxied stream may use up sctx
	cctx, ccancel := context.WithTimeout(context.Background(), timeout)
	defer ccancel()
	return errors.Join(serveErr, a.close(cctx))
}

// close stops every child process and flushes history.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.orch != nil {
		if err := a.orch.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator shutdown: %w", err))
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}
	return errors.Join(errs...)
}
