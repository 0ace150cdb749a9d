package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"flume/internal/manager"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(manager.ExitCode(err))
	}
}
