// Package proc supervises a single external worker process: it spawns the
// child, streams combined stdout/stderr line-by-line, and reports lifecycle
// events. One supervisor owns at most one child at a time.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"sorapipe/internal/logging"
	"sorapipe/internal/services"
)

// State models the supervisor lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// EventType labels supervisor lifecycle events.
type EventType int

const (
	EventStarted EventType = iota
	EventLine
	EventFinished
)

// Event is delivered to the sink in emission order. Line carries output text
// for EventLine; RC carries the exit code for EventFinished.
type Event struct {
	Type EventType
	Tag  string
	Line string
	RC   int
}

// Command describes the child to spawn. Env entries are appended to the
// inherited environment.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Handle is a started child process.
type Handle interface {
	// Output yields combined stdout and stderr in write order.
	Output() io.Reader
	// Terminate requests a polite shutdown.
	Terminate() error
	// Kill forcibly ends the child.
	Kill() error
	// Wait blocks until exit and returns the exit code.
	Wait() int
}

// Launcher spawns children; injectable for tests.
type Launcher interface {
	Launch(cmd Command) (Handle, error)
}

// Option configures a supervisor.
type Option func(*Supervisor)

// WithLauncher injects a custom launcher (primarily for tests).
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithKillDelay overrides the grace period between terminate and kill.
func WithKillDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.killDelay = d
		}
	}
}

// Supervisor runs one child at a time and feeds lifecycle events to a sink.
// Events are emitted in order and exactly one EventFinished follows each
// successful Start; no events are emitted after it.
type Supervisor struct {
	tag       string
	logger    *slog.Logger
	sink      func(Event)
	launcher  Launcher
	killDelay time.Duration

	mu     sync.Mutex
	state  State
	handle Handle
	done   chan struct{}
	lastRC int
}

// New constructs a supervisor. The tag prefixes log lines and events; the
// sink may be nil.
func New(tag string, logger *slog.Logger, sink func(Event), opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		tag:       tag,
		logger:    logging.NewComponentLogger(logger, "proc"),
		sink:      sink,
		launcher:  osLauncher{},
		killDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastRC returns the exit code of the most recent run.
func (s *Supervisor) LastRC() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRC
}

// Start spawns the child and begins streaming its output. It fails with
// ErrAlreadyRunning when the supervisor is not idle. Launch failures emit an
// EventFinished with rc 127 (binary not found) or rc 1 (other launch error)
// and are also returned.
func (s *Supervisor) Start(cmd Command) error {
	if strings.TrimSpace(cmd.Binary) == "" {
		return services.Wrap(services.ErrConfiguration, s.tag, "start", "command binary is empty", nil)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return services.Wrap(services.ErrAlreadyRunning, s.tag, "start", "supervisor is "+state.String(), nil)
	}
	s.state = StateRunning
	s.done = make(chan struct{})
	s.mu.Unlock()

	handle, err := s.launcher.Launch(cmd)
	if err != nil {
		rc := 1
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			rc = 127
		}
		s.finish(rc)
		return services.Wrap(services.ErrExternalTool, s.tag, "start", cmd.Binary, err)
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	s.logger.Info("worker started", logging.String("tag", s.tag), logging.String("binary", cmd.Binary))
	s.emit(Event{Type: EventStarted, Tag: s.tag})

	go s.stream(handle)
	return nil
}

func (s *Supervisor) stream(handle Handle) {
	scanner := bufio.NewScanner(handle.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug("worker output", logging.String("tag", s.tag), logging.String("line", line))
		s.emit(Event{Type: EventLine, Tag: s.tag, Line: line})
	}
	rc := handle.Wait()
	s.finish(rc)
}

func (s *Supervisor) finish(rc int) {
	s.mu.Lock()
	s.state = StateExited
	s.lastRC = rc
	s.handle = nil
	done := s.done
	s.mu.Unlock()

	s.logger.Info("worker finished", logging.String("tag", s.tag), logging.Int("rc", rc))
	s.emit(Event{Type: EventFinished, Tag: s.tag, RC: rc})
	if done != nil {
		close(done)
	}
}

func (s *Supervisor) emit(event Event) {
	if s.sink != nil {
		s.sink(event)
	}
}

// Stop requests a polite shutdown and escalates to a hard kill after the
// grace period. Calling Stop when the child already exited is a no-op.
func (s *Supervisor) Stop() error {
	return s.StopWithin(s.killDelay)
}

// StopWithin behaves like Stop but force-kills after the given window instead
// of the configured grace period. Used by the stop-all fan-out, which bounds
// the whole shutdown more tightly than a single polite stop.
func (s *Supervisor) StopWithin(grace time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	handle := s.handle
	done := s.done
	s.mu.Unlock()

	if handle == nil {
		return nil
	}
	if err := handle.Terminate(); err != nil {
		s.logger.Warn("terminate failed, killing", logging.String("tag", s.tag), logging.Error(err))
		return handle.Kill()
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		s.logger.Warn("grace period elapsed, killing", logging.String("tag", s.tag))
		return handle.Kill()
	}
}

// Wait blocks until the current run finishes or the context ends. It returns
// the exit code of the run.
func (s *Supervisor) Wait(ctx context.Context) (int, error) {
	s.mu.Lock()
	done := s.done
	state := s.state
	s.mu.Unlock()

	if done == nil || state == StateExited {
		return s.LastRC(), nil
	}
	select {
	case <-done:
		return s.LastRC(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Reset returns an exited supervisor to idle so it can run again.
func (s *Supervisor) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIdle:
		return nil
	case StateExited:
		s.state = StateIdle
		s.done = nil
		return nil
	default:
		return services.Wrap(services.ErrAlreadyRunning, s.tag, "reset", "supervisor is "+s.state.String(), nil)
	}
}

// Run is the blocking convenience form: start, wait for completion or context
// cancellation (which triggers Stop), then reset. It returns the exit code.
func (s *Supervisor) Run(ctx context.Context, cmd Command) (int, error) {
	if err := s.Start(cmd); err != nil {
		_ = s.Reset()
		return s.LastRC(), err
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		_ = s.Stop()
		<-done
	}
	rc := s.LastRC()
	if err := s.Reset(); err != nil {
		return rc, err
	}
	if ctx.Err() != nil {
		return rc, ctx.Err()
	}
	return rc, nil
}

type osLauncher struct{}

type osHandle struct {
	cmd    *exec.Cmd
	output io.Reader

	waitOnce sync.Once
	rc       int
}

func (osLauncher) Launch(command Command) (Handle, error) {
	binary, err := exec.LookPath(command.Binary)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, command.Args...) //nolint:gosec
	if command.Dir != "" {
		cmd.Dir = command.Dir
	}
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	// Both streams share one pipe so line order matches write order.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}
	writer.Close()

	return &osHandle{cmd: cmd, output: reader}, nil
}

func (h *osHandle) Output() io.Reader { return h.output }

func (h *osHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *osHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (h *osHandle) Wait() int {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()
		if err == nil {
			h.rc = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.rc = exitErr.ExitCode()
			return
		}
		h.rc = 1
	})
	return h.rc
}
