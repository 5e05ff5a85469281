package procsim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/internal/clock"
	"github.com/viant/procsim/internal/idgen"
	"github.com/viant/procsim/progress"
	"github.com/viant/procsim/service/allocator"
)

// Runtime owns the scheduling loop goroutine
type Runtime struct {
	allocator   *allocator.Service
	progress    *progress.Progress
	logger      logrus.FieldLogger
	stopTimeout time.Duration

	runID atomic.Value

	mux     sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start launches the scheduling loop unless it is already running. It also
// lifts the killed meta-state, so Start doubles as Resume. It reports whether
// a new loop was launched.
func (r *Runtime) Start(ctx context.Context) bool {
	r.allocator.SetKilled(false)
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.running {
		return false
	}
	runID := idgen.Short()
	r.runID.Store(runID)
	r.allocator.SetRunID(runID)
	r.progress.Start(runID, clock.Now())
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.running, r.cancel, r.done = true, cancel, done
	go func() {
		defer close(done)
		if err := r.allocator.Start(loopCtx); err != nil {
			r.logger.WithError(err).Warn("scheduling loop exited")
		}
	}()
	r.logger.WithField("run", runID).Info("simulation started")
	return true
}

// Stop signals the loop and waits up to the stop timeout for it to exit, then
// cancels pending automatic transitions. When the loop does not exit in time
// the cancellation happens in the background. It is a no-op when not running.
func (r *Runtime) Stop(ctx context.Context) bool {
	r.mux.Lock()
	if !r.running {
		r.mux.Unlock()
		return false
	}
	r.running = false
	cancel, done, runID := r.cancel, r.done, r.RunID()
	r.mux.Unlock()

	cancel()
	select {
	case <-done:
		r.allocator.Halt(ctx)
	case <-time.After(r.stopTimeout):
		// the loop still holds the evaluation lock; halt once it lets go
		r.logger.WithField("run", runID).Warn("scheduling loop did not exit within stop timeout")
		go r.allocator.Halt(context.WithoutCancel(ctx))
	}
	r.logger.WithField("run", runID).Info("simulation stopped")
	return true
}

// Running reports whether the loop is running
func (r *Runtime) Running() bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.running
}

// RunID returns identifier of the current or last run
func (r *Runtime) RunID() string {
	runID, _ := r.runID.Load().(string)
	return runID
}
