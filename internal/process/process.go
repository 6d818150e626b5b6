package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/devorch/internal/logger"
)

// waitDelay bounds how long Wait keeps reading pipes held open by grandchildren
// after the direct child has exited.
const waitDelay = 2 * time.Second

// Exit describes how a started process ended. It is delivered exactly once per
// process, after its output has been drained.
type Exit struct {
	Name string
	PID  int
	Code int   // -1 when killed by a signal or unknown
	Err  error // nil on a clean zero exit
	At   time.Time
}

// Process is a started child. The zero value is not usable; see Start.
type Process struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	done      chan struct{}
	closers   []io.Closer
	log       *slog.Logger

	mu   sync.Mutex
	exit *Exit
}

// Start spawns the process described by spec and returns as soon as the OS
// accepted it. Output lines are logged through log (stderr at WARN) and, when
// spec.Log.Dir is set, written to rotating files. onExit, if not nil, is called
// once from a background goroutine when the process has ended.
//
// A spawn failure (missing executable, bad work dir, permissions) is returned
// as an error and onExit is never called for it.
func Start(spec Spec, log *slog.Logger, onExit func(Exit)) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	plog := log.With("process", spec.Name)

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	configureSysProcAttr(cmd)
	cmd.WaitDelay = waitDelay

	outLines := logger.NewLineWriter(plog.With("stream", "stdout"), slog.LevelInfo)
	errLines := logger.NewLineWriter(plog.With("stream", "stderr"), slog.LevelWarn)
	closers := []io.Closer{outLines, errLines}
	var stdout io.Writer = outLines
	var stderr io.Writer = errLines
	outFile, errFile, err := spec.Log.Writers(spec.Name)
	if err != nil {
		plog.Warn("process log files unavailable", "error", err)
	}
	if outFile != nil {
		stdout = io.MultiWriter(outLines, outFile)
		closers = append(closers, outFile)
	}
	if errFile != nil {
		stderr = io.MultiWriter(errLines, errFile)
		closers = append(closers, errFile)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	plog.Info("spawning process", "command", cmd.String(), "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		closeAll(closers)
		plog.Error("failed to spawn process", "error", err)
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	p := &Process{
		name:      spec.Name,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		closers:   closers,
		log:       plog,
	}
	go p.wait(onExit)
	return p, nil
}

func (p *Process) wait(onExit func(Exit)) {
	err := p.cmd.Wait()
	code := -1
	if st := p.cmd.ProcessState; st != nil {
		code = st.ExitCode()
	}
	if errors.Is(err, exec.ErrWaitDelay) && code == 0 {
		err = nil
	}
	closeAll(p.closers)

	ex := Exit{Name: p.name, PID: p.pid, Code: code, Err: err, At: time.Now()}
	p.mu.Lock()
	p.exit = &ex
	p.mu.Unlock()
	close(p.done)

	if err != nil {
		p.log.Warn("process exited", "pid", p.pid, "code", code, "error", err)
	} else {
		p.log.Info("process exited", "pid", p.pid, "code", code)
	}
	if onExit != nil {
		onExit(ex)
	}
}

func (p *Process) Name() string { return p.name }

func (p *Process) PID() int { return p.pid }

func (p *Process) StartedAt() time.Time { return p.startedAt }

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitInfo returns the exit record, or false while the process is running.
func (p *Process) ExitInfo() (Exit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exit == nil {
		return Exit{}, false
	}
	return *p.exit, true
}

// Terminate asks the process tree to exit (SIGTERM to the group on Unix) and
// returns without waiting.
func (p *Process) Terminate() error {
	if p.exited() {
		return nil
	}
	return terminateTree(p.cmd.Process)
}

// Kill forcibly ends the process tree and returns without waiting.
func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}
	return killTree(p.cmd.Process)
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}
