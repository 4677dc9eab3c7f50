package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// errStageFailures marks a run that finished but counted item failures.
var errStageFailures = errors.New("stage reported failures")

// usageError marks bad command-line arguments.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and maps the outcome to an exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := newCLI(stdout).app().RunContext(ctx, args)
	if err != nil && !errors.Is(err, errStageFailures) {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errStageFailures):
		return exitFailure
	case errors.As(err, &ue), errors.Is(err, domain.ErrConfiguration):
		return exitUsage
	default:
		return exitFailure
	}
}
