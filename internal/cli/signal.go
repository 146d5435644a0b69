package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ErrInterrupted reports a script run stopped by SIGINT or SIGTERM.
var ErrInterrupted = errors.New("run interrupted")

// RunContext is cancelled when the process receives SIGINT or SIGTERM while
// a script runs, and remembers which signal arrived.
type RunContext struct {
	context.Context
	cancel context.CancelFunc
	sigCh  chan os.Signal

	mu  sync.Mutex
	sig os.Signal
}

// NewRunContext starts listening for signals. Release must be called once the
// run is over.
func NewRunContext(parent context.Context) *RunContext {
	ctx, cancel := context.WithCancel(parent)
	rc := &RunContext{Context: ctx, cancel: cancel, sigCh: make(chan os.Signal, 1)}

	signal.Notify(rc.sigCh, os.Interrupt, syscall.SIGTERM)
	go rc.watch()
	return rc
}

func (rc *RunContext) watch() {
	defer signal.Stop(rc.sigCh)
	select {
	case sig := <-rc.sigCh:
		rc.mu.Lock()
		rc.sig = sig
		rc.mu.Unlock()
		rc.cancel()
	case <-rc.Done():
	}
}

// Release stops listening and cancels the context.
func (rc *RunContext) Release() {
	rc.cancel()
}

// Interruption returns ErrInterrupted naming the signal, or nil when the run
// was not interrupted.
func (rc *RunContext) Interruption() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.sig == nil {
		return nil
	}
	return fmt.Errorf("%w by %v", ErrInterrupted, rc.sig)
}
