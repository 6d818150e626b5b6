package orchestrator

import "time"

// StartResult is the outcome of StartFrontend and StartBackend.
type StartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PID     int    `json:"pid,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RoleStatus reports one role. PID is nil unless the role is live.
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

// StatusSnapshot is the result of Status.
type StatusSnapshot struct {
	Frontend RoleStatus `json:"frontend"`
	Backend  RoleStatus `json:"backend"`
}

// Role returns the status of r.
func (s StatusSnapshot) Role(r Role) RoleStatus {
	if r == Backend {
		return s.Backend
	}
	return s.Frontend
}

// StopResult is the outcome of StopAll. Stopped is never nil.
type StopResult struct {
	Success bool   `json:"success"`
	Stopped []Role `json:"stopped"`
}
