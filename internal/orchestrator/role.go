package orchestrator

import "fmt"

// Role names one of the two managed demo processes.
type Role string

const (
	Frontend Role = "frontend"
	Backend  Role = "backend"
)

// Roles lists every role in the order operations visit them.
var Roles = []Role{Frontend, Backend}

// ParseRole accepts the wire form of a role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case Frontend, Backend:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }
