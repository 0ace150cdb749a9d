package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var settingsFlag string
	var debugFlag bool

	ctx := newCommandContext(&configFlag, &settingsFlag, &debugFlag)

	rootCmd := &cobra.Command{
		Use:           "flume",
		Short:         "Task runner for automated content feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Task configuration file path")
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "Process settings file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Re-raise errors with full diagnostics")

	registerCommands(rootCmd, ctx, []commandEntry{
		{Command: newExecuteCommand(ctx)},
		{Command: newDaemonCommand(ctx)},
		{Command: newConfigCommand(ctx)},
		{Command: newDBCommand(ctx)},
		{Command: newHistoryCommand(ctx)},
		{Command: newDepsCommand(ctx)},
		{Command: newVersionCommand()},
	})

	return rootCmd
}
