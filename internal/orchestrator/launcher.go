package orchestrator

import (
	"log/slog"

	"github.com/loykin/devorch/internal/process"
)

// Handle is the orchestrator's view of a spawned child.
type Handle interface {
	PID() int
	Terminate() error
	Kill() error
}

// Launcher spawns children. onExit must be called exactly once for every
// child that Launch returned without error, and never for a failed launch.
type Launcher interface {
	Launch(spec process.Spec, onExit func(process.Exit)) (Handle, error)
}

// ExecLauncher starts real OS processes through process.Start.
type ExecLauncher struct {
	Log *slog.Logger
}

func (l ExecLauncher) Launch(spec process.Spec, onExit func(process.Exit)) (Handle, error) {
	p, err := process.Start(spec, l.Log, onExit)
	if err != nil {
		return nil, err
	}
	return p, nil
}
