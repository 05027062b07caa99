package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/yungbote/jobrelay/internal/platform/logger"
)

// Runner starts detached tasks under a root context that Stop cancels.
// Each task runs behind a panic boundary so one bad event cannot take the
// process down.
type Runner struct {
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders wg.Add in Go against the stop in Stop.
	mu      sync.Mutex
	stopped bool

	active atomic.Int64
	panics atomic.Int64
}

func NewRunner(baseLog *logger.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:    baseLog.With("component", "TaskRunner"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn on its own goroutine. fn receives the runner's root context,
// not the caller's, so request-scoped cancellation does not stop it.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.log.Warn("Runner stopped; task dropped", "task", name)
		return
	}
	r.wg.Add(1)
	r.active.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		defer r.active.Add(-1)
		defer func() {
			if rec := recover(); rec != nil {
				r.panics.Add(1)
				r.log.Error("Task panic",
					"task", name,
					"error", &PanicError{Task: name, Val: rec},
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn(r.ctx)
	}()
}

// Active is the number of tasks still running.
func (r *Runner) Active() int64 { return r.active.Load() }

// Panics is the number of tasks that ended in a recovered panic.
func (r *Runner) Panics() int64 { return r.panics.Load() }

// Wait blocks until every started task returned.
func (r *Runner) Wait() { r.wg.Wait() }

// Stop cancels the root context and waits for tasks to return or ctx to end.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("Task runner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task runner stop: %d tasks still running: %w", r.Active(), ctx.Err())
	}
}

type PanicError struct {
	Task string
	Val  any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task %s panic: %v", e.Task, e.Val) }
