// Package daemonrun hosts the long-running daemon process body: it
// holds the scope lock, serves the loopback RPC endpoint, and drives
// the scheduler until asked to stop.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"flume/internal/ipc"
	"flume/internal/lockfile"
	"flume/internal/logging"
	"flume/internal/logs"
	"flume/internal/manager"
	"flume/internal/runner"
	"flume/internal/scheduler"
	"flume/internal/store"
)

// Options configure the daemon runtime.
type Options struct {
	// LogFile is the daemon's log destination, served back over the
	// log tail endpoint. Empty disables remote log reads.
	LogFile string
}

// Run executes the daemon loop on an initialized manager. It returns
// once the scheduler has stopped and teardown completed, or when
// startup fails before the loop begins.
func Run(ctx context.Context, mgr *manager.Manager, opts Options) error {
	if mgr == nil {
		return fmt.Errorf("manager is required")
	}
	logger := logging.NewComponentLogger(mgr.Logger(), "daemon")
	cfg := mgr.Settings()

	release, err := mgr.Lock().Acquire()
	if err != nil {
		var contention *lockfile.ContentionError
		if errors.As(err, &contention) {
			logger.Error(contention.Error(),
				logging.Int("pid", contention.PID),
				logging.String("lock_file", contention.Path))
			logger.Error(contention.Guidance())
		}
		return err
	}
	defer release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrl := scheduler.New(mgr.NewRunner(), mgr.Logger())
	if err := ctrl.Start(runCtx); err != nil {
		return err
	}

	b := &backend{
		mgr:       mgr,
		ctrl:      ctrl,
		logFile:   opts.LogFile,
		startedAt: time.Now(),
	}

	srv, err := ipc.NewServer(runCtx, cfg.Daemon.IPCBind, b, mgr.Logger())
	if err != nil {
		ctrl.Shutdown(false)
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer srv.Close()
	srv.Serve()

	if err := mgr.Lock().WritePort(srv.Port()); err != nil {
		ctrl.Shutdown(false)
		return fmt.Errorf("advertise IPC port: %w", err)
	}
	logger.Info("daemon listening", logging.Int("port", srv.Port()), logging.Int("pid", os.Getpid()))

	maintainStore(runCtx, mgr, logger)

	if err := mgr.Hooks().FireDaemonStarted(runCtx); err != nil {
		logger.Warn("daemon startup hook failed", logging.Error(err))
	}

	poll := time.Duration(cfg.Scheduler.SchedulePollSeconds) * time.Second
	loop := scheduler.NewScheduleLoop(mgr.Config(), ctrl, poll, mgr.Logger())
	go loop.Run(runCtx)

	stopWatching := scheduler.WatchInterrupts(ctrl, mgr.Logger())
	go func() {
		<-runCtx.Done()
		ctrl.Shutdown(false)
	}()

	runErr := ctrl.Wait()
	stopWatching()
	cancel()
	logger.Info("daemon shutting down")

	completedCtx, completedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer completedCancel()
	if err := mgr.Hooks().FireDaemonCompleted(completedCtx); err != nil {
		logger.Warn("daemon completion hook failed", logging.Error(err))
	}
	srv.Close()

	if err := mgr.Shutdown(completedCtx, false); err != nil {
		return err
	}
	return runErr
}

// maintainStore applies the periodic cleanup check and the history
// retention window once at startup. Failures are logged, never fatal.
func maintainStore(ctx context.Context, mgr *manager.Manager, logger *slog.Logger) {
	ran, err := mgr.Store().Cleanup(ctx, false, mgr.Hooks())
	if err != nil {
		logger.Warn("database cleanup failed", logging.Error(err))
	} else if ran {
		logger.Info("database cleanup completed")
	}

	days := mgr.Settings().Scheduler.HistoryRetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	pruned, err := mgr.Store().PruneRuns(ctx, cutoff)
	if err != nil {
		logger.Warn("prune run history failed", logging.Error(err))
	} else if pruned > 0 {
		logger.Info("pruned run history", logging.Int64("pruned", pruned))
	}
}

// backend answers the RPC surface from the live manager and scheduler.
type backend struct {
	mgr       *manager.Manager
	ctrl      *scheduler.Controller
	logFile   string
	startedAt time.Time
}

func (b *backend) SubmitTask(_ context.Context, name string, options map[string]any) error {
	doc := b.mgr.Config()
	task, ok := doc.Tasks[name]
	if !ok {
		return fmt.Errorf("task %q is not declared in %s", name, doc.Path)
	}
	return b.ctrl.Execute(runner.Task{
		Name:     name,
		Priority: task.Priority,
		Options:  runner.MergedOptions(task.Settings, options),
		Trigger:  store.TriggerDelegated,
	})
}

func (b *backend) Status(context.Context) ipc.StatusResponse {
	doc := b.mgr.Config()
	return ipc.StatusResponse{
		PID:          os.Getpid(),
		State:        b.ctrl.State().String(),
		CurrentTask:  b.ctrl.Current(),
		QueueLength:  b.ctrl.QueueLen(),
		LockPath:     b.mgr.Lock().Path(),
		DatabasePath: b.mgr.Store().Path(),
		ConfigPath:   b.mgr.ConfigPath(),
		LogFile:      b.logFile,
		StartedAt:    b.startedAt.Format(time.RFC3339),
		Schedules:    len(doc.Schedules),
		Tasks:        doc.TasksByPriority(),
	}
}

func (b *backend) History(ctx context.Context, taskName string, limit int) ([]ipc.RunRecord, error) {
	runs, err := b.mgr.Store().RecentRuns(ctx, taskName, limit)
	if err != nil {
		return nil, err
	}
	records := make([]ipc.RunRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, ipc.RunRecord{
			RunID:        run.RunID,
			TaskName:     run.TaskName,
			Trigger:      string(run.Trigger),
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
			Outcome:      string(run.Outcome),
			ErrorMessage: run.ErrorMessage,
		})
	}
	return records, nil
}

func (b *backend) DatabaseHealth(ctx context.Context) ipc.DatabaseHealthResponse {
	health, err := b.mgr.Store().CheckHealth(ctx)
	resp := ipc.DatabaseHealthResponse{
		Path:           health.DBPath,
		Exists:         health.DatabaseExists,
		Readable:       health.DatabaseReadable,
		SchemaVersion:  strconv.Itoa(health.SchemaVersion),
		TablesPresent:  health.TablesPresent,
		MissingTables:  health.MissingTables,
		IntegrityCheck: health.IntegrityCheck,
		Error:          health.Error,
	}
	if err != nil && resp.Error == "" {
		resp.Error = err.Error()
	}
	return resp
}

func (b *backend) LogTail(ctx context.Context, req ipc.LogTailRequest) (ipc.LogTailResponse, error) {
	if b.logFile == "" {
		return ipc.LogTailResponse{}, fmt.Errorf("daemon logs to console only")
	}
	result, err := logs.Tail(ctx, b.logFile, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   time.Duration(req.WaitMillis) * time.Millisecond,
	})
	if err != nil {
		return ipc.LogTailResponse{}, err
	}
	return ipc.LogTailResponse{Lines: result.Lines, Offset: result.Offset}, nil
}

func (b *backend) RequestShutdown(finishQueue bool) {
	b.ctrl.Shutdown(finishQueue)
}
