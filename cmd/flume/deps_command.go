package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"flume/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check helper binary availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			doc, err := ctx.findDocument()
			if err != nil {
				return err
			}

			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Helpers", colorize) {
				fmt.Fprintln(out, line)
			}

			missing := 0
			for _, status := range preflight.CheckHelpers(doc) {
				switch {
				case status.Available:
					detail := "Ready"
					if status.Command != "" {
						detail = fmt.Sprintf("Ready (command: %s)", status.Command)
					}
					fmt.Fprintln(out, renderStatusLine(status.Name, statusOK, detail, colorize))
				case status.Optional:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusWarn, status.Detail+" (optional)", colorize))
				default:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusError, status.Detail, colorize))
					missing++
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d required helper(s) missing", missing)
			}
			return nil
		},
	}
}
