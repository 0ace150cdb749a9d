package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flume/internal/ipc"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/runner"
	"flume/internal/scheduler"
	"flume/internal/store"
)

// ExecuteOptions select what an execute run does.
type ExecuteOptions struct {
	// Tasks holds glob patterns matched case-insensitively against
	// declared task names. Empty selects every task.
	Tasks []string
	// Overrides are per-invocation option overrides applied to every
	// selected task.
	Overrides map[string]any
}

// RunExecute runs the selected tasks to completion, or forwards them to
// a daemon already holding the lock. The delegation decision strictly
// precedes any execution side effect.
func (m *Manager) RunExecute(ctx context.Context, opts ExecuteOptions) error {
	selection := m.selectTasks(opts.Tasks)
	if len(selection) == 0 {
		m.logger.Warn("no tasks to execute")
		return m.Shutdown(ctx, false)
	}

	info, err := m.lock.Check()
	if err != nil {
		return fatal(err)
	}
	if info.State == lockfile.HeldByOther {
		if info.Port > 0 {
			if err := m.delegate(info.Port, selection, opts.Overrides); err != nil {
				return err
			}
			return m.Shutdown(ctx, false)
		}
		return m.reportContention(&lockfile.ContentionError{PID: info.PID, Path: m.lock.Path()})
	}

	release, err := m.lock.Acquire()
	if err != nil {
		var contention *lockfile.ContentionError
		if errors.As(err, &contention) {
			return m.reportContention(contention)
		}
		return fatal(err)
	}
	defer release()

	if err := m.registry.FireExecuteStarted(ctx, selection); err != nil {
		return fatal(err)
	}

	ctrl := scheduler.New(m.newRunner(m.doc, m.store, m.logger), m.logger)
	if err := ctrl.Start(ctx); err != nil {
		return fatal(err)
	}
	for _, name := range selection {
		task := m.doc.Tasks[name]
		execErr := ctrl.Execute(runner.Task{
			Name:     name,
			Priority: task.Priority,
			Options:  runner.MergedOptions(task.Settings, opts.Overrides),
			Trigger:  store.TriggerManual,
		})
		if execErr != nil {
			ctrl.Shutdown(false)
			<-waitDone(ctrl)
			return fatal(execErr)
		}
	}
	ctrl.Shutdown(true)

	stopWatching := scheduler.WatchInterrupts(ctrl, m.logger)
	runErr := ctrl.Wait()
	stopWatching()

	if err := m.registry.FireExecuteCompleted(ctx, selection); err != nil {
		m.logger.Warn("execute completion hook failed", logging.Error(err))
	}

	if shutdownErr := m.Shutdown(ctx, false); shutdownErr != nil {
		return shutdownErr
	}
	if runErr != nil && m.opts.Debug {
		// Re-raise for full diagnostics; without the flag the runner's
		// own logging is the record.
		return fatal(runErr)
	}
	return nil
}

// selectTasks resolves the requested patterns into priority order.
// Unmatched patterns are logged and skipped; an empty request selects
// everything.
func (m *Manager) selectTasks(patterns []string) []string {
	if len(patterns) == 0 {
		return m.doc.TasksByPriority()
	}
	matched, unmatched := m.doc.MatchTasks(patterns)
	for _, pattern := range unmatched {
		m.logger.Error(fmt.Sprintf("`%s` does not match any tasks", pattern))
	}
	selected := make(map[string]struct{}, len(matched))
	for _, name := range matched {
		selected[name] = struct{}{}
	}
	ordered := make([]string, 0, len(matched))
	for _, name := range m.doc.TasksByPriority() {
		if _, ok := selected[name]; ok {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

// delegate forwards each selected task to the daemon on the advertised
// port and ends the session. No lock is acquired and no local side
// effects occur.
func (m *Manager) delegate(port int, selection []string, overrides map[string]any) error {
	timeout := time.Duration(m.settings.Daemon.ClientTimeoutSeconds) * time.Second
	client, err := ipc.Dial(port, timeout)
	if err != nil {
		return fatal(fmt.Errorf("daemon advertises port %d but refused the connection: %w", port, err))
	}
	defer client.Close()

	m.logger.Info("There is a daemon running for this config, sending execution there.",
		logging.Int("port", port))
	for _, name := range selection {
		task := m.doc.Tasks[name]
		resp, err := client.SubmitTask(name, runner.MergedOptions(task.Settings, overrides))
		if err != nil {
			return fatal(fmt.Errorf("forward task %s: %w", name, err))
		}
		if !resp.Accepted {
			return fatal(fmt.Errorf("daemon rejected task %s: %s", name, resp.Message))
		}
		m.logger.Info("task forwarded to daemon", logging.String("task", name))
	}
	return nil
}

// reportContention logs the competing PID with removal guidance and
// exits with failure status.
func (m *Manager) reportContention(contention *lockfile.ContentionError) error {
	m.logger.Error(contention.Error(),
		logging.Int("pid", contention.PID),
		logging.String("lock_file", contention.Path))
	m.logger.Error(contention.Guidance())
	return fatal(contention)
}

func waitDone(ctrl *scheduler.Controller) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = ctrl.Wait()
		close(done)
	}()
	return done
}
