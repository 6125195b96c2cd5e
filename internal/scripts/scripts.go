// Package scripts wraps the external worker scripts (prompt autogen, draft
// download, upload) behind the uniform stage contract. Each wrapper owns a
// process supervisor, the worker's environment, and the completion hook that
// records history and sends best-effort notifications.
package scripts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"sorapipe/internal/config"
	"sorapipe/internal/history"
	"sorapipe/internal/logging"
	"sorapipe/internal/notifications"
	"sorapipe/internal/proc"
	"sorapipe/internal/services"
	"sorapipe/internal/stage"
)

// worker is the shared core of the three script wrappers.
type worker struct {
	name     string
	tag      string
	script   config.Worker
	cfg      *config.Config
	sup      *proc.Supervisor
	journal  *history.Log
	notifier notifications.Service
	logger   *slog.Logger
}

func newWorker(name, tag string, script config.Worker, cfg *config.Config, journal *history.Log, notifier notifications.Service, logger *slog.Logger) *worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	w := &worker{
		name:     name,
		tag:      tag,
		script:   script,
		cfg:      cfg,
		journal:  journal,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, name),
	}
	w.sup = proc.New(tag, logger, w.onEvent)
	return w
}

// Supervisor exposes the underlying supervisor for stop fan-out.
func (w *worker) Supervisor() *proc.Supervisor { return w.sup }

func (w *worker) onEvent(event proc.Event) {
	switch event.Type {
	case proc.EventLine:
		w.logger.Info(event.Line, logging.String("tag", w.tag))
	case proc.EventStarted:
		w.logger.Info("worker running", logging.String("tag", w.tag))
	case proc.EventFinished:
		w.logger.Info("worker exited", logging.String("tag", w.tag), logging.Int("rc", event.RC))
	}
}

func (w *worker) health(ctx context.Context) stage.Health {
	entry := strings.TrimSpace(w.script.Entry)
	if entry == "" {
		return stage.Unhealthy(w.name, "worker entry not configured")
	}
	if _, err := os.Stat(entry); err != nil {
		return stage.Unhealthy(w.name, "worker entry missing: "+entry)
	}
	return stage.Healthy(w.name)
}

// run launches the worker and blocks until it exits. Non-zero exit codes
// surface as stage failures after the history record and notification.
func (w *worker) run(ctx context.Context, env []string) error {
	entry := strings.TrimSpace(w.script.Entry)
	if entry == "" {
		return services.Wrap(services.ErrConfiguration, w.name, "run", "worker entry not configured", nil)
	}

	rc, err := w.sup.Run(ctx, proc.Command{
		Binary: entry,
		Dir:    w.script.Workdir,
		Env:    env,
	})
	ok := err == nil && rc == 0
	w.record(ok, rc)

	if err != nil {
		w.notifier.NotifyStageFailed(ctx, w.name, err)
		return err
	}
	if rc != 0 {
		failure := services.Wrap(services.ErrStageFailed, w.name, "run", fmt.Sprintf("worker exited with rc %d", rc), nil)
		w.notifier.NotifyStageFailed(ctx, w.name, failure)
		return failure
	}
	w.notifier.NotifyStageCompleted(ctx, w.name)
	return nil
}

func (w *worker) record(ok bool, rc int) {
	if w.journal == nil {
		return
	}
	err := w.journal.Append(w.name+"_finish", map[string]any{
		"ok": ok,
		"rc": rc,
	})
	if err != nil {
		w.logger.Warn("history append failed", logging.Error(err))
	}
}
