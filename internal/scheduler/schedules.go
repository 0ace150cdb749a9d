package scheduler

import (
	"context"
	"log/slog"
	"time"

	"flume/internal/configfile"
	"flume/internal/logging"
	"flume/internal/runner"
	"flume/internal/store"
)

// scheduleEntry tracks when one configured schedule fires next.
type scheduleEntry struct {
	schedule configfile.Schedule
	next     time.Time
}

// ScheduleLoop enqueues tasks on the intervals and cron expressions
// declared under `schedules:` in the document. It runs until the
// context is canceled; a rejected enqueue (controller no longer
// Running) also ends the loop.
type ScheduleLoop struct {
	doc        *configfile.Document
	controller *Controller
	poll       time.Duration
	logger     *slog.Logger
}

// NewScheduleLoop builds a loop polling at the given interval.
func NewScheduleLoop(doc *configfile.Document, controller *Controller, poll time.Duration, logger *slog.Logger) *ScheduleLoop {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ScheduleLoop{
		doc:        doc,
		controller: controller,
		poll:       poll,
		logger:     logging.NewComponentLogger(logger, "schedules"),
	}
}

// Run blocks until ctx is canceled. Interval schedules first fire one
// interval after startup; cron schedules fire at their next match.
func (l *ScheduleLoop) Run(ctx context.Context) {
	entries := l.prime(time.Now())
	if len(entries) == 0 {
		l.logger.Debug("no schedules configured")
		<-ctx.Done()
		return
	}
	l.logger.Info("schedules active", logging.Int("count", len(entries)))

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, entry := range entries {
				if now.Before(entry.next) {
					continue
				}
				if !l.fire(entry.schedule) {
					return
				}
				entry.next = l.nextAfter(entry.schedule, now)
			}
		}
	}
}

func (l *ScheduleLoop) prime(now time.Time) []*scheduleEntry {
	entries := make([]*scheduleEntry, 0, len(l.doc.Schedules))
	for _, schedule := range l.doc.Schedules {
		entries = append(entries, &scheduleEntry{
			schedule: schedule,
			next:     l.nextAfter(schedule, now),
		})
	}
	return entries
}

func (l *ScheduleLoop) nextAfter(schedule configfile.Schedule, now time.Time) time.Time {
	if schedule.Cron != "" {
		parsed, err := configfile.ParseCron(schedule.Cron)
		if err != nil {
			// Validation catches this before the daemon starts; a bad
			// expression slipping through just never fires.
			l.logger.Warn("invalid cron expression", logging.String("cron", schedule.Cron), logging.Error(err))
			return now.Add(24 * time.Hour)
		}
		return parsed.Next(now)
	}
	return now.Add(schedule.Interval)
}

// fire enqueues every task the schedule's patterns match. It reports
// false once the controller stops accepting work.
func (l *ScheduleLoop) fire(schedule configfile.Schedule) bool {
	matched, unmatched := l.doc.MatchTasks(schedule.Tasks)
	for _, pattern := range unmatched {
		l.logger.Warn("schedule pattern matches no tasks", logging.String("pattern", pattern))
	}
	for _, name := range matched {
		task := l.doc.Tasks[name]
		err := l.controller.Execute(runner.Task{
			Name:     name,
			Priority: task.Priority,
			Options:  task.Settings,
			Trigger:  store.TriggerScheduled,
		})
		if err != nil {
			l.logger.Debug("schedule enqueue rejected", logging.String("task", name), logging.Error(err))
			return false
		}
		l.logger.Info("scheduled task queued", logging.String("task", name))
	}
	return true
}
