package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"courier/pkg/state"
	"courier/pkg/state/logger"
)

// Step is one named teardown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run executes steps in order. A failing step is logged and the rest still
// run; the first error is returned.
func Run(ctx context.Context, steps ...Step) error {
	logger.Info("shutdown_requested", "steps", len(steps))
	var first error
	for _, s := range steps {
		if ctx.Err() != nil {
			logger.Error("shutdown_deadline_exceeded", "pending_step", s.Name)
			if first == nil {
				first = ctx.Err()
			}
			break
		}
		logger.Info("shutdown_step", "step", s.Name)
		if err := s.Fn(ctx); err != nil {
			logger.Error("shutdown_step_failed", "step", s.Name, "error", err)
			if first == nil {
				first = fmt.Errorf("%s: %w", s.Name, err)
			}
		}
	}
	logger.Info("shutdown_complete")
	return first
}

// SetupSignalHandler returns a context cancelled on SIGINT/SIGTERM. SIGPIPE
// dumps goroutine stacks to the log before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}

var exit = os.Exit

// Abort logs a fatal startup error, writes a crash dump when the state
// layout exists, flushes logs and exits non-zero.
func Abort(reason string, err error, dbPath string) {
	logger.Error("fatal", "reason", reason, "error", err, "db_path", dbPath)
	fmt.Fprintf(os.Stderr, "%s: %v\n", reason, err)
	if dir := state.PathsVar.Crash; dir != "" {
		if path, derr := state.WriteCrashDump(dir, reason, err); derr == nil {
			fmt.Fprintf(os.Stderr, "crash dump: %s\n", path)
		}
	}
	logger.Sync()
	exit(1)
}
