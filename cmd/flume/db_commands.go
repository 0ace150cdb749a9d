package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"flume/internal/hooks"
	"flume/internal/manager"
	"flume/internal/runaccess"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	registerCommands(dbCmd, ctx, []commandEntry{
		{Command: newDBCleanupCommand(ctx)},
		{Command: newDBResetCommand(ctx), NeedsLock: true},
		{Command: newDBHealthCommand(ctx)},
	})

	return dbCmd
}

func newDBCleanupCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run periodic database cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			logger, err := ctx.consoleLogger()
			if err != nil {
				return err
			}
			ran, err := st.Cleanup(cmd.Context(), force, hooks.NewRegistry(logger))
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintln(out, "Cleanup not due yet (use --force to run anyway)")
				return nil
			}
			fmt.Fprintln(out, "Database cleanup completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Run cleanup even when not due")
	return cmd
}

func newDBResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.newManager(func(opts *manager.Options) {
				opts.ResetDB = true
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Initialize(cmd.Context()); err != nil {
				return err
			}
			if err := mgr.Shutdown(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
			return nil
		},
	}
}

func newDBHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run database diagnostics",
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

			health, err := session.Access.Health(cmd.Context())
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Database Health", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.Path, colorize))
			fmt.Fprintln(out, renderStatusLine("Exists", boolKind(health.Exists), yesNo(health.Exists), colorize))
			fmt.Fprintln(out, renderStatusLine("Readable", boolKind(health.Readable), yesNo(health.Readable), colorize))
			fmt.Fprintln(out, renderStatusLine("Schema version", statusInfo, health.SchemaVersion, colorize))
			fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
			if len(health.MissingTables) > 0 {
				fmt.Fprintln(out, renderStatusLine("Missing tables", statusError, strings.Join(health.MissingTables, ", "), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Tables", statusOK, strings.Join(health.TablesPresent, ", "), colorize))
			}
			if health.Error != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
				return fmt.Errorf("database health check failed")
			}
			return nil
		},
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
