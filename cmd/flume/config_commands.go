package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"flume/internal/configfile"
	"flume/internal/preflight"
	"flume/internal/settings"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigCheckCommand(ctx))

	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter task configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			path, err := configfile.Find(ctx.configPath(), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Task configuration at %s\n", path)

			settingsPath := ""
			if ctx.settingsFlag != nil {
				settingsPath = strings.TrimSpace(*ctx.settingsFlag)
			}
			if settingsPath == "" {
				settingsPath, err = settings.DefaultPath()
				if err != nil {
					return err
				}
			}
			if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
				if err := settings.CreateSample(settingsPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote sample settings to %s\n", settingsPath)
			}
			fmt.Fprintln(out, "Declare tasks under `tasks:` and run `flume execute` to try them.")
			return nil
		},
	}
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			doc, err := ctx.findDocument()
			if err != nil {
				return err
			}
			dbPath, err := ctx.databasePath()
			if err != nil {
				return err
			}
			lock, err := ctx.scopeLock()
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Scope", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, doc.Path, colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, dbPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, lock.Path(), colorize))
			if ctx.settingsPath != "" {
				fmt.Fprintln(out, renderStatusLine("Settings", statusInfo, ctx.settingsPath, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Tasks", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := make([][]string, 0, len(doc.Tasks))
			for _, name := range doc.TasksByPriority() {
				task := doc.Tasks[name]
				rows = append(rows, []string{
					name,
					formatCount(task.Priority),
					formatCount(len(task.Settings)),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No tasks declared")
			} else {
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Priority", "Options"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight},
				))
			}

			if len(doc.Schedules) > 0 {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Schedules", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, schedule := range doc.Schedules {
					when := schedule.Cron
					if when == "" {
						when = "every " + schedule.Interval.String()
					}
					fmt.Fprintf(out, "  %s -> %s\n", when, strings.Join(schedule.Tasks, ", "))
				}
			}
			return nil
		},
	}
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and scope readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			doc, err := ctx.findDocument()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			dbPath, err := ctx.databasePath()
			if err != nil {
				return err
			}
			lock, err := ctx.scopeLock()
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)

			validationErrs := configfile.Validate(doc)
			sort.Slice(validationErrs, func(i, j int) bool {
				return validationErrs[i].Pointer < validationErrs[j].Pointer
			})
			for _, line := range renderSectionHeader("Validation", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(validationErrs) == 0 {
				fmt.Fprintln(out, renderStatusLine("Document", statusOK, doc.Path, colorize))
			}
			for _, verr := range validationErrs {
				fmt.Fprintln(out, renderStatusLine(verr.Pointer, statusError, verr.Message, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Scope", colorize) {
				fmt.Fprintln(out, line)
			}
			failed := len(validationErrs) > 0
			results := preflight.RunAll(preflight.Scope{
				Doc:          doc,
				Settings:     cfg,
				DatabasePath: dbPath,
				Lock:         lock,
			})
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed = true
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			if failed {
				return fmt.Errorf("configuration check failed")
			}
			return nil
		},
	}
}
