package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to the orchestrator endpoints of a running devorch server.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

const defaultBaseURL = "http://localhost:8080/api/viton"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, fmt.Errorf("client tls: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable checks whether the status endpoint answers.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("server unreachable", "error", err)
	}
	return err == nil
}

// StartFrontend asks the server to start the frontend in dir. A failed spawn
// yields the server's result together with an *APIError.
func (c *Client) StartFrontend(ctx context.Context, dir string) (StartResult, error) {
	return c.start(ctx, "/start-frontend", dir)
}

// StartBackend asks the server to start the backend in dir.
func (c *Client) StartBackend(ctx context.Context, dir string) (StartResult, error) {
	return c.start(ctx, "/start-backend", dir)
}

func (c *Client) start(ctx context.Context, path, dir string) (StartResult, error) {
	body, err := json.Marshal(StartRequest{Directory: dir})
	if err != nil {
		return StartResult{}, err
	}
	var res StartResult
	err = c.doRequest(ctx, http.MethodPost, path, body, &res)
	return res, err
}

// Status returns the status of both roles.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.doRequest(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

// StopAll stops every running role.
func (c *Client) StopAll(ctx context.Context) (StopResult, error) {
	var s StopResult
	err := c.doRequest(ctx, http.MethodPost, "/stop", nil, &s)
	return s, err
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 explicit opt-in for self-signed dev certs
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true // #nosec G402 explicit opt-in
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return errors.New("no certificates found in " + caCertPath)
	}
	tlsConfig.RootCAs = pool
	return nil
}

// doRequest performs the request and decodes the JSON body into out. For
// non-2xx responses the body is still decoded into out when possible and an
// *APIError is returned.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out any) error {
	url := c.baseURL + path
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if len(raw) > 0 && json.Unmarshal(raw, apiErr) == nil {
		_ = json.Unmarshal(raw, out)
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
