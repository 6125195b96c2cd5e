// Package pipeline runs the enabled stages of one scenario in canonical
// order. A scenario is sequential: each stage runs to completion before the
// next starts, and the first failure aborts the rest. Runs are bracketed by
// history records and persisted to the run store; concurrent scenarios are
// rejected both in-process and across processes via a file lock.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"sorapipe/internal/config"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/maintenance"
	"sorapipe/internal/notifications"
	"sorapipe/internal/proc"
	"sorapipe/internal/runstore"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// stopAllGrace bounds the stop-all fan-out: children still alive after this
// window are force-killed.
const stopAllGrace = 800 * time.Millisecond

// canonicalOrder is the fixed stage execution order of a scenario.
var canonicalOrder = []string{"autogen", "download", "blur", "merge", "upload"}

// supervised is implemented by stage handlers that own a child process
// supervisor; the stop-all fan-out targets these.
type supervised interface {
	Supervisor() *proc.Supervisor
}

// Orchestrator composes stage handlers into scenario runs.
type Orchestrator struct {
	cfg      *config.Config
	journal  *history.Log
	notifier notifications.Service
	store    *runstore.Store
	logger   *slog.Logger
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	active  []*proc.Supervisor
}

// Option configures optional orchestrator behavior.
type Option func(*Orchestrator)

// WithRunStore attaches the sqlite run store. Without it runs are recorded
// only in the JSONL history.
func WithRunStore(store *runstore.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// New constructs an orchestrator.
func New(cfg *config.Config, journal *history.Log, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	o := &Orchestrator{
		cfg:      cfg,
		journal:  journal,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		lock:     flock.New(cfg.LockFile()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Order sorts the given handlers into canonical stage order. Handlers whose
// name is not a known stage are rejected.
func Order(handlers []stage.Handler) ([]stage.Handler, error) {
	byName := make(map[string]stage.Handler, len(handlers))
	for _, handler := range handlers {
		name := handler.Name()
		if _, dup := byName[name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "order", "duplicate stage "+name, nil)
		}
		byName[name] = handler
	}

	ordered := make([]stage.Handler, 0, len(handlers))
	for _, name := range canonicalOrder {
		if handler, ok := byName[name]; ok {
			ordered = append(ordered, handler)
			delete(byName, name)
		}
	}
	for name := range byName {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "order", "unknown stage "+name, nil)
	}
	return ordered, nil
}

// Running reports whether a scenario is currently executing.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Run executes the given stages as one scenario. It returns the error of the
// first failing stage, or nil when every stage succeeded.
func (o *Orchestrator) Run(ctx context.Context, handlers []stage.Handler) error {
	ordered, err := Order(handlers)
	if err != nil {
		return err
	}
	if len(ordered) == 0 {
		return services.Wrap(services.ErrConfiguration, "pipeline", "run", "no stages selected", nil)
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return services.Wrap(services.ErrAlreadyRunning, "pipeline", "run", "a scenario is already running", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.active = collectSupervisors(ordered)
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.active = nil
		o.mu.Unlock()
	}()

	locked, err := o.lock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "run", "acquire scenario lock", err)
	}
	if !locked {
		return services.Wrap(services.ErrAlreadyRunning, "pipeline", "run", "another scenario holds the lock", nil)
	}
	defer func() {
		_ = o.lock.Unlock()
	}()

	runID := uuid.NewString()
	logger := o.logger.With(logging.String(logging.FieldRunID, runID))
	steps := stageNames(ordered)

	if o.cfg.Maintenance.AutoCleanupOnStart {
		report := maintenance.NewSweeper(o.cfg, logger).Sweep()
		logger.Info("startup cleanup done", logging.Int("removed", report.RemovedTotal))
	}

	o.append("scenario_start", map[string]any{"steps": steps})
	if o.store != nil {
		if err := o.store.BeginRun(runCtx, runID, steps); err != nil {
			logger.Warn("run store insert failed", logging.Error(err))
		}
	}
	o.notifier.NotifyScenarioStarted(runCtx, steps)
	logger.Info("scenario started", logging.Any("steps", steps))

	runErr := o.execute(runCtx, runID, logger, ordered)

	ok := runErr == nil
	o.append("scenario_finish", map[string]any{"ok": ok})
	if o.store != nil {
		status := runstore.StatusSucceeded
		msg := ""
		if runErr != nil {
			status = runstore.StatusFailed
			if errors.Is(runErr, context.Canceled) || runCtx.Err() != nil {
				status = runstore.StatusCanceled
			}
			msg = runErr.Error()
		}
		if err := o.store.FinishRun(context.WithoutCancel(runCtx), runID, status, msg); err != nil {
			logger.Warn("run store update failed", logging.Error(err))
		}
	}
	o.notifier.NotifyScenarioFinished(context.WithoutCancel(runCtx), ok)

	if runErr != nil {
		logger.Error("scenario failed", logging.Error(runErr))
		return runErr
	}
	logger.Info("scenario finished")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, runID string, logger *slog.Logger, ordered []stage.Handler) error {
	for _, handler := range ordered {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrStageFailed, handler.Name(), "execute", "scenario canceled", err)
		}

		stageLogger := logger.With(logging.String(logging.FieldStage, handler.Name()))
		stageLogger.Info("stage started")

		var resultID int64
		if o.store != nil {
			id, err := o.store.BeginStage(ctx, runID, handler.Name())
			if err != nil {
				stageLogger.Warn("run store stage insert failed", logging.Error(err))
			} else {
				resultID = id
			}
		}

		err := handler.Execute(ctx)
		if o.store != nil && resultID != 0 {
			status := runstore.StatusSucceeded
			msg := ""
			if err != nil {
				status = runstore.StatusFailed
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					status = runstore.StatusCanceled
				}
				msg = err.Error()
			}
			if storeErr := o.store.FinishStage(context.WithoutCancel(ctx), resultID, status, msg); storeErr != nil {
				stageLogger.Warn("run store stage update failed", logging.Error(storeErr))
			}
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", handler.Name(), err)
		}
		stageLogger.Info("stage finished")
	}
	return nil
}

// StopAll cancels the running scenario and fans a stop out to every active
// supervisor. Children still alive after the grace window are force-killed.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	cancel := o.cancel
	active := make([]*proc.Supervisor, len(o.active))
	copy(active, o.active)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var wg sync.WaitGroup
	for _, sup := range active {
		wg.Add(1)
		go func(sup *proc.Supervisor) {
			defer wg.Done()
			if err := sup.StopWithin(stopAllGrace); err != nil {
				o.logger.Warn("supervisor stop failed", logging.Error(err))
			}
		}(sup)
	}
	wg.Wait()
}

func (o *Orchestrator) append(event string, payload map[string]any) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Append(event, payload); err != nil {
		o.logger.Warn("history append failed", logging.Error(err))
	}
}

func stageNames(handlers []stage.Handler) []string {
	names := make([]string, len(handlers))
	for i, handler := range handlers {
		names[i] = handler.Name()
	}
	return names
}

func collectSupervisors(handlers []stage.Handler) []*proc.Supervisor {
	var sups []*proc.Supervisor
	for _, handler := range handlers {
		if owner, ok := handler.(supervised); ok {
			if sup := owner.Supervisor(); sup != nil {
				sups = append(sups, sup)
			}
		}
	}
	return sups
}
