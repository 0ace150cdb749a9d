package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flume/internal/ipc"
	"flume/internal/runaccess"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var taskName string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent task runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			session, err := runaccess.OpenWithFallback(
				ctx.dialDaemon,
				ctx.openStore,
			)
			if err != nil {
				return err
			}
			defer session.Close()

			records, err := session.Access.History(cmd.Context(), taskName, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					shortID(record.RunID),
					record.TaskName,
					record.Trigger,
					record.StartedAt.Local().Format("2006-01-02 15:04:05"),
					runDuration(record),
					titleCaser.String(record.Outcome),
					record.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Task", "Trigger", "Started", "Duration", "Outcome", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&taskName, "task", "", "Only show runs for this task")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func runDuration(record ipc.RunRecord) string {
	if record.FinishedAt == nil {
		return "running"
	}
	return record.FinishedAt.Sub(record.StartedAt).Round(time.Millisecond).String()
}
