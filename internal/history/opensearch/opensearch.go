package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/loykin/devorch/internal/history"
)

// OpenSearch index names are lowercase and may not start with '_', '-' or '+'.
var indexName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Options selects the cluster endpoint and destination index.
type Options struct {
	BaseURL  string // e.g. http://localhost:9200
	Index    string
	Username string
	Password string
}

// Sink indexes one document per event through the REST API
// (POST {BaseURL}/{Index}/_doc).
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	username string
	password string
}

// document flattens an event so that every field is a top-level keyword in
// the index mapping.
type document struct {
	Timestamp time.Time  `json:"@timestamp"`
	Event     string     `json:"event"`
	Role      string     `json:"role"`
	PID       int        `json:"pid,omitempty"`
	Directory string     `json:"directory,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func New(o Options) (*Sink, error) {
	if o.Index == "" {
		o.Index = "devorch-history"
	}
	if !indexName.MatchString(o.Index) {
		return nil, fmt.Errorf("invalid OpenSearch index name %q", o.Index)
	}
	if o.BaseURL == "" {
		return nil, fmt.Errorf("opensearch: base URL is required")
	}
	return &Sink{
		client:   &http.Client{Timeout: 5 * time.Second},
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		index:    o.Index,
		username: o.Username,
		password: o.Password,
	}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	doc := document{
		Timestamp: e.OccurredAt.UTC(),
		Event:     string(e.Type),
		Role:      e.Record.Role,
		PID:       e.Record.PID,
		Directory: e.Record.Directory,
		ExitCode:  e.Record.ExitCode,
		Error:     e.Record.Error,
	}
	if !e.Record.StartedAt.IsZero() {
		t := e.Record.StartedAt.UTC()
		doc.StartedAt = &t
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+s.index+"/_doc", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
