package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server wraps http.Server with the dev server's listen and shutdown logic.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// Timeouts of the HTTP server. A zero WriteTimeout keeps proxied dev-server
// streams (HMR websockets, SSE) open.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
}

// NewServer prepares a server for h on addr. tlsConfig may be nil.
func NewServer(addr string, h http.Handler, tlsConfig *tls.Config, t Timeouts, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       t.Read,
			WriteTimeout:      t.Write,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		},
		log: log,
	}
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("http server listening", "addr", ln.Addr().String(), "tls", s.srv.TLSConfig != nil)
	var err error
	if s.srv.TLSConfig != nil {
		err = s.srv.ServeTLS(ln, "", "")
	} else {
		err = s.srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
