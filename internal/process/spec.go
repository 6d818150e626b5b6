package process

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/loykin/devorch/internal/logger"
)

// Spec is the launch configuration of one child process.
//
// Without Shell, Argv is executed directly (Argv[0] is the program).
// With Shell, Script (or Argv joined with quoting) is handed to the
// platform shell so that npm-style command lines keep working.
type Spec struct {
	Name    string        `json:"name"`
	Argv    []string      `json:"argv"`
	Script  string        `json:"script"`
	Shell   bool          `json:"shell"`
	WorkDir string        `json:"work_dir"`
	Env     []string      `json:"env"` // full environment; empty inherits ours
	Log     logger.Config `json:"log"`
}

// Validate checks that the spec names a process and something to run.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process requires name")
	}
	if s.Shell {
		if strings.TrimSpace(s.Script) == "" && len(s.Argv) == 0 {
			return errors.New("shell process requires script or argv")
		}
		return nil
	}
	if len(s.Argv) == 0 || strings.TrimSpace(s.Argv[0]) == "" {
		return errors.New("process requires argv")
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec. Work dir, env and stdio
// are applied by Start.
func (s *Spec) BuildCommand() *exec.Cmd {
	if s.Shell {
		script := strings.TrimSpace(s.Script)
		if script == "" {
			script = joinArgs(s.Argv)
		}
		if script == "" {
			return getTrueCommand()
		}
		return getShellCommand(script)
	}
	if len(s.Argv) == 0 {
		return getTrueCommand()
	}
	// #nosec G204
	return exec.Command(s.Argv[0], s.Argv[1:]...)
}

func joinArgs(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, a := range argv {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}
