package scheduler

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flume/internal/logging"
)

// WatchInterrupts applies the two-interrupt policy to a running
// session: the first signal converts the run into an abort-mode
// shutdown that still lets the current task finish; the second
// abandons the current task too. The returned stop function uninstalls
// the handler.
func WatchInterrupts(ctrl *Controller, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = logging.NewNop()
	}
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		first := true
		for {
			select {
			case <-done:
				return
			case <-signals:
				if first {
					first = false
					logger.Warn("Got ctrl-c, will finish the running task and exit. Press ctrl-c again to abort the task.")
					ctrl.Shutdown(false)
				} else {
					logger.Warn("aborting running task", logging.String("task", ctrl.Current()))
					ctrl.AbortCurrent()
				}
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
