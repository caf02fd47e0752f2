// Package main provides the iis command: registry export, queries and the results job.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drfirst/go-iis/internal/config"
	"github.com/drfirst/go-iis/pkg/idempotency"
)

// Exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitConfig     = 2
	exitInProgress = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "iis:", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalid):
		return exitConfig
	case errors.Is(err, idempotency.ErrRunInProgress):
		return exitInProgress
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "iis",
		Short:         "Immunization registry interface for OpenEMR",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "dotenv configuration file (env "+config.EnvConfigPath+")")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	root.AddCommand(
		vxuCmd(load),
		qbpCmd(load),
		resultsCmd(load),
		migrateCmd(load),
		pingCmd(load),
		topicsCmd(load),
	)
	return root
}
