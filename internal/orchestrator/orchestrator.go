package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/devorch/internal/history"
	"github.com/loykin/devorch/internal/metrics"
	"github.com/loykin/devorch/internal/process"
)

// ErrShutdown is returned by every operation once Shutdown has begun.
var ErrShutdown = errors.New("orchestrator is shut down")

// Recorder receives lifecycle events. It must not block.
type Recorder interface {
	Record(history.Event)
}

// Orchestrator keeps at most one live child per Role.
//
// The role table is owned by a single loop goroutine. Public methods send a
// command and wait for its reply; exit notifications from children arrive on
// a separate channel drained by the same loop, so no lock guards the table.
//
// State per role: Idle -> Running -> Idle.
type Orchestrator struct {
	cfg      Config
	launcher Launcher
	log      *slog.Logger
	recorder Recorder

	cmds  chan command
	exits chan exitMsg
	quit  chan struct{}
	done  chan struct{}

	// owned by loop
	table    map[Role]*entry
	draining map[uint64]*entry
	last     map[Role]lastExit
	gen      uint64
	closing  bool
}

type entry struct {
	role      Role
	handle    Handle
	pid       int
	dir       string
	startedAt time.Time
	gen       uint64
	killed    bool
	exited    chan struct{} // closed by the loop when the exit event arrives
}

type lastExit struct {
	code int
	err  string
	at   time.Time
}

type exitMsg struct {
	role Role
	gen  uint64
	exit process.Exit
}

type commandAction int

const (
	actionStart commandAction = iota
	actionStatus
	actionStop
	actionShutdown
)

type command struct {
	action commandAction
	role   Role
	dir    string
	reply  chan reply
}

type reply struct {
	start   StartResult
	status  StatusSnapshot
	stop    StopResult
	pending []*entry
	err     error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLauncher replaces the OS launcher, mostly for tests.
func WithLauncher(l Launcher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

// WithLogger sets the logger for lifecycle records; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithRecorder forwards lifecycle events to r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator with an empty role table and starts its loop.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		log:      slog.Default(),
		cmds:     make(chan command),
		exits:    make(chan exitMsg, 8),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		table:    make(map[Role]*entry),
		draining: make(map[uint64]*entry),
		last:     make(map[Role]lastExit),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "orchestrator")
	if o.launcher == nil {
		o.launcher = ExecLauncher{Log: o.log}
	}
	go o.loop()
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// StartFrontend starts the frontend dev server in dir unless one is live.
func (o *Orchestrator) StartFrontend(ctx context.Context, dir string) (StartResult, error) {
	return o.Start(ctx, Frontend, dir)
}

// StartBackend starts the backend inside dir's virtualenv unless one is live.
func (o *Orchestrator) StartBackend(ctx context.Context, dir string) (StartResult, error) {
	return o.Start(ctx, Backend, dir)
}

// Start starts role in dir. Spawn failures are reported in the result; the
// error is only ErrShutdown or a context error.
func (o *Orchestrator) Start(ctx context.Context, role Role, dir string) (StartResult, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return StartResult{}, err
	}
	r, err := o.call(ctx, command{action: actionStart, role: role, dir: dir})
	return r.start, err
}

// Status reports both roles without side effects.
func (o *Orchestrator) Status(ctx context.Context) (StatusSnapshot, error) {
	r, err := o.call(ctx, command{action: actionStatus})
	return r.status, err
}

// StopAll signals every live role (frontend first) and reports which ones
// were signalled. Entries are cleared by the exit events, not by this call.
// With a positive stop wait it also waits for those exits, escalating to
// SIGKILL once the wait expires.
func (o *Orchestrator) StopAll(ctx context.Context) (StopResult, error) {
	r, err := o.call(ctx, command{action: actionStop})
	if err != nil {
		return r.stop, err
	}
	if o.cfg.StopWait > 0 && len(r.pending) > 0 {
		wctx, cancel := context.WithTimeout(ctx, o.cfg.StopWait)
		o.awaitExit(wctx, r.pending)
		cancel()
	}
	return r.stop, nil
}

// PIDs returns the pid of every live role keyed by role name. It returns nil
// after shutdown.
func (o *Orchestrator) PIDs() map[string]int {
	s, err := o.Status(context.Background())
	if err != nil {
		return nil
	}
	out := make(map[string]int, len(Roles))
	for _, role := range Roles {
		if rs := s.Role(role); rs.PID != nil {
			out[string(role)] = *rs.PID
		}
	}
	return out
}

// Shutdown terminates every tracked child, waits for their exit events until
// ctx ends, kills whatever is left and stops the loop. Later calls return
// ErrShutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	r, err := o.call(ctx, command{action: actionShutdown})
	if err != nil {
		return err
	}
	o.awaitExit(ctx, r.pending)
	close(o.quit)
	<-o.done
	return nil
}

func (o *Orchestrator) call(ctx context.Context, c command) (reply, error) {
	c.reply = make(chan reply, 1)
	select {
	case o.cmds <- c:
	case <-o.done:
		return reply{}, ErrShutdown
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	r := <-c.reply
	return r, r.err
}

func (o *Orchestrator) awaitExit(ctx context.Context, pending []*entry) {
	for _, e := range pending {
		select {
		case <-e.exited:
		case <-ctx.Done():
			o.log.Warn("process did not exit in time, killing", "role", e.role, "pid", e.pid)
			if err := e.handle.Kill(); err != nil {
				o.log.Warn("kill failed", "role", e.role, "pid", e.pid, "error", err)
			}
		}
	}
}

func (o *Orchestrator) loop() {
	defer close(o.done)
	for {
		select {
		case c := <-o.cmds:
			c.reply <- o.handle(c)
		case m := <-o.exits:
			o.handleExit(m)
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) handle(c command) reply {
	if o.closing {
		return reply{err: ErrShutdown}
	}
	switch c.action {
	case actionStart:
		return reply{start: o.start(c.role, c.dir)}
	case actionStatus:
		return reply{status: o.status()}
	case actionStop:
		res, pending := o.stopAll()
		return reply{stop: res, pending: pending}
	case actionShutdown:
		o.closing = true
		_, pending := o.stopAll()
		// killed entries still waiting for their exit
		for _, role := range Roles {
			if e := o.table[role]; e != nil && !containsEntry(pending, e) {
				pending = append(pending, e)
			}
		}
		for _, e := range o.draining {
			pending = append(pending, e)
		}
		o.log.Info("orchestrator shutting down", "pending", len(pending))
		return reply{pending: pending}
	}
	return reply{}
}

// live returns the entry of role if it is live: tracked, not killed and not
// yet exited (exited entries are removed by handleExit).
func (o *Orchestrator) live(role Role) *entry {
	if e := o.table[role]; e != nil && !e.killed {
		return e
	}
	return nil
}

func (o *Orchestrator) start(role Role, dir string) StartResult {
	label := o.cfg.label(role)
	url := o.cfg.URL(role)
	if e := o.live(role); e != nil {
		o.log.Info("process already running", "role", role, "pid", e.pid)
		return StartResult{Success: true, Message: label + " is already running", PID: e.pid, URL: url}
	}

	gen := o.gen + 1
	spec, err := o.cfg.spec(role, dir)
	var h Handle
	if err == nil {
		h, err = o.launcher.Launch(spec, o.exitFunc(role, gen))
	}
	if err != nil {
		o.log.Error("failed to start process", "role", role, "dir", dir, "error", err)
		metrics.IncSpawnFailure(string(role))
		o.record(history.EventSpawnFailure, history.Record{Role: string(role), Directory: dir, Error: err.Error()})
		return StartResult{Success: false, Message: "Failed to start " + label, Error: err.Error()}
	}

	o.gen = gen
	if old := o.table[role]; old != nil {
		o.draining[old.gen] = old
	}
	e := &entry{
		role:      role,
		handle:    h,
		pid:       h.PID(),
		dir:       dir,
		startedAt: time.Now(),
		gen:       gen,
		exited:    make(chan struct{}),
	}
	o.table[role] = e
	o.log.Info("process started", "role", role, "pid", e.pid, "dir", dir)
	metrics.IncStart(string(role))
	o.record(history.EventStart, o.recordOf(e))
	return StartResult{Success: true, Message: label + " started successfully", PID: e.pid, URL: url}
}

func (o *Orchestrator) status() StatusSnapshot {
	return StatusSnapshot{Frontend: o.roleStatus(Frontend), Backend: o.roleStatus(Backend)}
}

func (o *Orchestrator) roleStatus(role Role) RoleStatus {
	rs := RoleStatus{URL: o.cfg.URL(role)}
	if e := o.live(role); e != nil {
		pid := e.pid
		started := e.startedAt
		rs.Running = true
		rs.PID = &pid
		rs.Directory = e.dir
		rs.StartedAt = &started
	}
	if le, ok := o.last[role]; ok {
		code := le.code
		rs.LastExitCode = &code
		rs.LastError = le.err
		at := le.at
		rs.LastExitAt = &at
	}
	return rs
}

func (o *Orchestrator) stopAll() (StopResult, []*entry) {
	res := StopResult{Success: true, Stopped: []Role{}}
	var pending []*entry
	for _, role := range Roles {
		e := o.live(role)
		if e == nil {
			continue
		}
		if err := e.handle.Terminate(); err != nil {
			o.log.Warn("terminate failed", "role", role, "pid", e.pid, "error", err)
		}
		e.killed = true
		o.log.Info("process stopped", "role", role, "pid", e.pid)
		metrics.IncStop(string(role))
		o.record(history.EventStop, o.recordOf(e))
		res.Stopped = append(res.Stopped, role)
		pending = append(pending, e)
	}
	return res, pending
}

func (o *Orchestrator) exitFunc(role Role, gen uint64) func(process.Exit) {
	return func(ex process.Exit) {
		select {
		case o.exits <- exitMsg{role: role, gen: gen, exit: ex}:
		case <-o.done:
		}
	}
}

func (o *Orchestrator) handleExit(m exitMsg) {
	current := true
	e := o.table[m.role]
	if e != nil && e.gen == m.gen {
		delete(o.table, m.role)
	} else {
		current = false
		e = o.draining[m.gen]
		if e == nil {
			o.log.Debug("exit event for unknown process", "role", m.role, "pid", m.exit.PID)
			return
		}
		delete(o.draining, m.gen)
	}
	close(e.exited)

	errText := ""
	if m.exit.Err != nil {
		errText = m.exit.Err.Error()
	}
	clean := m.exit.Err == nil && m.exit.Code == 0
	attrs := []any{"role", m.role, "pid", e.pid, "code", m.exit.Code, "stopped", e.killed}
	if errText != "" {
		attrs = append(attrs, "error", errText)
	}
	if !clean && !e.killed {
		o.log.Warn("process exited", attrs...)
	} else {
		o.log.Info("process exited", attrs...)
	}

	metrics.ObserveExit(string(m.role), clean, time.Since(e.startedAt))
	if current {
		o.last[m.role] = lastExit{code: m.exit.Code, err: errText, at: m.exit.At}
	} else {
		// a newer process may be running for this role
		metrics.SetRunning(string(m.role), o.live(m.role) != nil)
	}

	rec := o.recordOf(e)
	code := m.exit.Code
	rec.ExitCode = &code
	rec.Error = errText
	o.record(history.EventExit, rec)
}

func (o *Orchestrator) recordOf(e *entry) history.Record {
	return history.Record{Role: string(e.role), PID: e.pid, Directory: e.dir, StartedAt: e.startedAt}
}

func (o *Orchestrator) record(t history.EventType, rec history.Record) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec})
}

func containsEntry(es []*entry, e *entry) bool {
	for _, x := range es {
		if x == e {
			return true
		}
	}
	return false
}
