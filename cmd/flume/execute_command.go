package main

import (
	"github.com/spf13/cobra"

	"flume/internal/manager"
)

func newExecuteCommand(ctx *commandContext) *cobra.Command {
	var tasks []string
	var testMode bool
	var resetDB bool

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Run tasks now, or forward them to a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.newManager(func(opts *manager.Options) {
				opts.Test = testMode
				opts.ResetDB = resetDB
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Initialize(cmd.Context()); err != nil {
				return err
			}
			return mgr.RunExecute(cmd.Context(), manager.ExecuteOptions{
				Tasks: tasks,
			})
		},
	}

	cmd.Flags().StringSliceVar(&tasks, "tasks", nil, "Task name globs to run (default: all tasks)")
	cmd.Flags().BoolVar(&testMode, "test", false, "Run against a throwaway copy of the database")
	cmd.Flags().BoolVar(&resetDB, "reset-db", false, "Drop and recreate the database schema first")
	return cmd
}
