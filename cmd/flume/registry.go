package main

import (
	"github.com/spf13/cobra"
)

// commandEntry registers a command with the root dispatcher. Entries
// with NeedsLock run under the scope lock: dispatch acquires before
// the command body and releases after, so a command never races a
// daemon or another CLI invocation on the same configuration.
type commandEntry struct {
	Command   *cobra.Command
	NeedsLock bool
}

func registerCommands(root *cobra.Command, ctx *commandContext, entries []commandEntry) {
	for _, entry := range entries {
		if entry.NeedsLock {
			wrapWithLock(ctx, entry.Command)
		}
		root.AddCommand(entry.Command)
	}
}

// wrapWithLock decorates the command's RunE with scope lock
// acquisition. Contention surfaces the holder's PID and guidance.
func wrapWithLock(ctx *commandContext, cmd *cobra.Command) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		lock, err := ctx.scopeLock()
		if err != nil {
			return err
		}
		release, err := lock.Acquire()
		if err != nil {
			return err
		}
		defer release()
		return run(cobraCmd, args)
	}
}
