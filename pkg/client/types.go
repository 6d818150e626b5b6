package client

import (
	"fmt"
	"time"
)

// StartRequest is the body of the start endpoints.
type StartRequest struct {
	Directory string `json:"directory"`
}

// StartResult mirrors the server's start response.
type StartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RoleStatus describes one managed role. PID is nil unless running.
type RoleStatus struct {
	Running      bool       `json:"running"`
	PID          *int       `json:"pid"`
	URL          string     `json:"url,omitempty"`
	Directory    string     `json:"directory,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastExitCode *int       `json:"last_exit_code,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastExitAt   *time.Time `json:"last_exit_at,omitempty"`
}

// Status mirrors the server's status response.
type Status struct {
	Frontend RoleStatus `json:"frontend"`
	Backend  RoleStatus `json:"backend"`
}

// StopResult mirrors the server's stop response.
type StopResult struct {
	Success bool     `json:"success"`
	Stopped []string `json:"stopped"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Detail     string `json:"error"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("devorch api %d: %s", e.StatusCode, msg)
}
