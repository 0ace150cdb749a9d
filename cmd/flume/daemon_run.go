package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"flume/internal/daemonctl"
	"flume/internal/daemonrun"
	"flume/internal/logging"
	"flume/internal/manager"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var daemonize bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			// Detach before any resource is created: the re-exec'd child
			// opens its own store, lock, and listeners.
			if (daemonize || cfg.Daemon.Detach) && !daemonctl.Detached() {
				detachLogger, err := ctx.consoleLogger()
				if err != nil {
					return err
				}
				pid, err := daemonctl.NewDetacher(detachLogger).Detach(nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon detached (pid %d)\n", pid)
				return nil
			}

			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := daemonLogger(ctx)
			if err != nil {
				return err
			}

			mgr, err := ctx.newManager(func(opts *manager.Options) {
				opts.Logger = logger
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			if err := mgr.Initialize(cmd.Context()); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), mgr, daemonrun.Options{
				LogFile: cfg.LogFilePath(),
			})
		},
	}

	cmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "Detach from the terminal")
	return cmd
}

// daemonLogger writes to the rotated daemon log file as well as
// stdout, matching settings format and level.
func daemonLogger(ctx *commandContext) (*slog.Logger, error) {
	cfg, err := ctx.ensureSettings()
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if ctx.debug() {
		level = "debug"
	}
	outputs := []string{"stdout"}
	errOutputs := []string{"stderr"}
	if logFile := cfg.LogFilePath(); logFile != "" {
		outputs = append(outputs, logFile)
		errOutputs = append(errOutputs, logFile)
	}
	var rotation *logging.Rotation
	if policy := cfg.Rotation(); policy != nil {
		rotation = &logging.Rotation{
			MaxSizeMB:  policy.MaxSizeMB,
			MaxBackups: policy.MaxBackups,
			MaxAgeDays: policy.MaxAgeDays,
			Compress:   policy.Compress,
		}
	}
	return logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: errOutputs,
		Rotation:         rotation,
	})
}
