package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/encounters/internal/batch"
	"github.com/example/encounters/internal/config"
	"github.com/example/encounters/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run maps every failure of the batch job to a non-zero exit status.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, getenv)
	logger := logging.NewLogger(stderr, cfg.LogLevel)
	if errors.Is(err, config.ErrUsage) {
		logger.Error("invalid invocation", "error", err, "args", len(args))
		printUsage(stdout)
		return exitFailure
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitFailure
	}

	r := batch.NewRunner(cfg, logger)
	if _, err := r.Run(ctx); err != nil {
		logger.Error("run_failed", "run_id", r.RunID.String(), "error", err)
		return exitFailure
	}
	logger.Info("all encounters written", "output", cfg.OutputPath)
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "arguments: [input filepath] [output filepath]")
	fmt.Fprintln(w, "input filepath: \t\t path to the file containing list of geographic points for users")
	fmt.Fprintln(w, "output filepath: \t\t path to the file where the encounters will be written")
}
