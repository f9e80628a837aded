package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"photosweep/logging"
)

// SetupHandler returns a context that is cancelled on SIGINT or SIGTERM.
// A running scan stops dispatching files and still emits its partial report.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.LogWarning("received %v, finishing files in progress", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// GetOptimalProcs returns the default scan worker count: three quarters of
// the CPUs, at least one. Each worker holds gocv buffers through cgo.
func GetOptimalProcs() int {
	return max(runtime.NumCPU()*3/4, 1)
}
