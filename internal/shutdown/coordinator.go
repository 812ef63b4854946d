// Package shutdown provides the cooperative cancellation signal shared
// by every sync pipeline in a run. The coordinator is an explicit value
// owned by the CLI driver and handed to each pipeline; pipelines only
// ever read it.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

type State int32

const (
	Running State = iota
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Terminated:
		return "terminated"
	}
	return "invalid"
}

type cleanupFunc struct {
	name string
	fn   func(context.Context) error
}

// Coordinator is a monotonic Running → ShuttingDown → Terminated state
// machine. The first shutdown request starts a cooperative drain; the
// second forces immediate termination, skipping any remaining work.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	done     chan struct{}
	forced   chan struct{}
	cleanups []cleanupFunc
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		done:   make(chan struct{}),
		forced: make(chan struct{}),
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ShouldContinue is polled between lessons and after every suspension
// point. It flips to false permanently once shutdown is requested.
func (c *Coordinator) ShouldContinue() bool {
	return c.State() == Running
}

// Done is closed on the first shutdown request.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Forced is closed when an operator requests shutdown a second time and
// in-flight work must be abandoned.
func (c *Coordinator) Forced() <-chan struct{} {
	return c.forced
}

// RequestShutdown advances the state machine. It never moves backwards
// and is safe to call any number of times.
func (c *Coordinator) RequestShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Running:
		c.state = ShuttingDown
		close(c.done)
		slog.Info("shutdown requested, draining after current lesson")
	case ShuttingDown:
		c.state = Terminated
		close(c.forced)
		slog.Warn("second shutdown request, terminating immediately")
	case Terminated:
	}
}

// OnCleanup registers an action to run during shutdown. Actions run in
// reverse registration order, each awaited before the next.
func (c *Coordinator) OnCleanup(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, cleanupFunc{name: name, fn: fn})
}

// RunCleanups executes registered cleanup actions LIFO. Failures are
// logged, never propagated: shutdown must always reach process exit.
// Afterwards the coordinator is Terminated.
func (c *Coordinator) RunCleanups(ctx context.Context) {
	c.mu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			slog.Error("cleanup failed", "name", cleanups[i].name, "err", err)
		}
	}

	c.mu.Lock()
	if c.state == Running {
		c.state = ShuttingDown
		close(c.done)
	}
	if c.state == ShuttingDown {
		c.state = Terminated
		close(c.forced)
	}
	c.mu.Unlock()
}

// Notify wires OS interrupt signals into the coordinator until ctx ends.
func (c *Coordinator) Notify(ctx context.Context) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-sigs:
				c.RequestShutdown()
			case <-ctx.Done():
				return
			}
		}
	}()
}
