package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"flume/internal/ipc"
)

var titleCaser = cases.Title(language.English)

func stateKind(state string) statusKind {
	switch state {
	case "running":
		return statusOK
	case "draining", "aborting":
		return statusWarn
	case "stopped":
		return statusError
	default:
		return statusInfo
	}
}

func renderDaemonStatus(out io.Writer, status *ipc.StatusResponse) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("State", stateKind(status.State), titleCaser.String(status.State), colorize))
	fmt.Fprintln(out, renderStatusLine("PID", statusInfo, formatCount(status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
	fmt.Fprintln(out, renderStatusLine("Config", statusInfo, status.ConfigPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))
	if status.LogFile != "" {
		fmt.Fprintln(out, renderStatusLine("Log file", statusInfo, status.LogFile, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Scheduler", colorize) {
		fmt.Fprintln(out, line)
	}
	current := status.CurrentTask
	if strings.TrimSpace(current) == "" {
		current = "(idle)"
	}
	fmt.Fprintln(out, renderStatusLine("Current task", statusInfo, current, colorize))
	fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, formatCount(status.QueueLength), colorize))
	fmt.Fprintln(out, renderStatusLine("Schedules", statusInfo, formatCount(status.Schedules), colorize))
	fmt.Fprintln(out, renderStatusLine("Tasks", statusInfo, strings.Join(status.Tasks, ", "), colorize))
}
