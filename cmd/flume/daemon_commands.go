package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flume/internal/daemonctl"
	"flume/internal/ipc"
	"flume/internal/lockfile"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonLogsCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))

	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon as a background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if _, err := ctx.ensureSettings(); err != nil {
				return err
			}
			lock, err := ctx.scopeLock()
			if err != nil {
				return err
			}
			info, err := lock.Check()
			if err != nil {
				return err
			}
			if info.State == lockfile.HeldByOther {
				if info.Port > 0 {
					fmt.Fprintln(stdout, "Daemon already running")
					return nil
				}
				return fmt.Errorf("another process (PID %d) holds the lock for this configuration", info.PID)
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			fmt.Fprintln(stdout, "Daemon not running, launching...")
			launchOpts := daemonctl.LaunchOptions{
				ConfigPath:   ctx.configPath(),
				SettingsPath: ctx.settingsPath,
				Debug:        ctx.debug(),
			}
			if err := daemonctl.Launch(exe, launchOpts); err != nil {
				return err
			}

			client, err := daemonctl.WaitForClient(lock, 10*time.Second)
			if err != nil {
				return fmt.Errorf("daemon did not come up: %w", err)
			}
			defer client.Close()
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	var finishQueue bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon (terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			lock, err := ctx.scopeLock()
			if err != nil {
				return err
			}

			grace := time.Duration(cfg.Daemon.StopGraceSeconds) * time.Second
			result, err := daemonctl.StopAndTerminate(lock, finishQueue, grace)
			if errors.Is(err, daemonctl.ErrNoDaemon) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Killed && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon (pid %d) did not stop within grace period, killed\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&finishQueue, "finish-queue", false, "Let queued tasks finish before stopping")
	return cmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				renderDaemonStatus(stdout, status)
				return nil
			})
		},
	}
}

func newDaemonLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			initialLimit := lines
			if initialLimit < 0 {
				initialLimit = 0
			}
			initialOffset := int64(-1)
			if initialLimit == 0 {
				initialOffset = 0
			}

			return ctx.withClient(func(client *ipc.Client) error {
				cmdCtx := cmd.Context()
				offset := initialOffset
				limit := initialLimit
				printed := false

				for {
					resp, err := client.LogTail(ipc.LogTailRequest{
						Offset:     offset,
						Limit:      limit,
						Follow:     follow,
						WaitMillis: 1000,
					})
					if err != nil {
						return fmt.Errorf("tail logs: %w", err)
					}
					for _, line := range resp.Lines {
						fmt.Fprintln(stdout, line)
						printed = true
					}
					offset = resp.Offset
					limit = 0
					if !follow {
						if !printed {
							fmt.Fprintln(stdout, "No log entries available")
						}
						return nil
					}
					select {
					case <-cmdCtx.Done():
						return nil
					default:
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}
