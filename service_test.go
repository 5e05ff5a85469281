package procsim_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/viant/procsim"
	"github.com/viant/procsim/policy"
	"github.com/viant/procsim/progress"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/service/dao/process/fs"
	"github.com/viant/procsim/service/event"
)

func fastConfig() *procsim.Config {
	cfg := procsim.DefaultConfig()
	cfg.Scheduler.TickInterval = 2 * time.Millisecond
	cfg.Scheduler.TimeUnit = time.Millisecond
	cfg.Scheduler.ReadyDwell = 1
	cfg.Scheduler.SuspendDelay = 2
	cfg.Scheduler.ReleaseDelay = 2
	cfg.Priorities = &policy.Table{Quotas: map[string]int{"High": 10, "Medium High": 20, "Medium Low": 30, "Low": 40}}
	return cfg
}

func newService(t *testing.T, options ...procsim.Option) *procsim.Service {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	srv, err := procsim.NewFromConfig(fastConfig(), append([]procsim.Option{procsim.WithLogger(logger)}, options...)...)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	t.Cleanup(srv.Stop)
	return srv
}

func states(t *testing.T, srv *procsim.Service) map[int]process.State {
	snapshots, err := srv.Processes(context.Background())
	assert.NoError(t, err)
	ret := map[int]process.State{}
	for _, snapshot := range snapshots {
		ret[snapshot.PID] = snapshot.State
	}
	return ret
}

func TestService_AddProcess(t *testing.T) {
	ctx := context.Background()
	srv := procsim.New(procsim.WithConfig(procsim.DefaultConfig()))

	testCases := []struct {
		label          string
		expectPID      int
		expectTime     int
		expectPriority policy.Priority
	}{
		{label: "High", expectPID: 1, expectTime: 100, expectPriority: policy.High},
		{label: "Medium High", expectPID: 2, expectTime: 200, expectPriority: policy.MediumHigh},
		{label: "medium low", expectPID: 3, expectTime: 300, expectPriority: policy.MediumLow},
		{label: "Low", expectPID: 4, expectTime: 400, expectPriority: policy.Low},
	}
	for _, tc := range testCases {
		t.Run(tc.label, func(t *testing.T) {
			snapshot, err := srv.AddProcess(ctx, tc.label)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, tc.expectPID, snapshot.PID)
			assert.Equal(t, tc.expectTime, snapshot.ExecutionTime)
			assert.Equal(t, tc.expectPriority, snapshot.Priority)
			assert.Equal(t, process.StateNew, snapshot.State)
			assert.Equal(t, 0, snapshot.Progress)
		})
	}

	_, err := srv.AddProcess(ctx, "Invalid")
	assert.True(t, errors.Is(err, policy.ErrInvalidPriority))
	list, err := srv.Processes(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 4)
	assert.Equal(t, 4, srv.Stats().States[process.StateNew])
}

func TestService_SetNumCores(t *testing.T) {
	srv := procsim.New()
	assert.Equal(t, 1, srv.NumCores())
	assert.ErrorIs(t, srv.SetNumCores(0), procsim.ErrInvalidCores)
	assert.Equal(t, 1, srv.NumCores())
	assert.NoError(t, srv.SetNumCores(4))
	assert.Equal(t, 4, srv.NumCores())
}

func TestService_StartStop(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	p, err := srv.AddProcess(ctx, "High")
	assert.NoError(t, err)

	srv.Start(ctx)
	runID := srv.Runtime().RunID()
	srv.Start(ctx)
	assert.True(t, srv.Running())
	assert.Equal(t, runID, srv.Runtime().RunID())

	assert.Eventually(t, func() bool {
		return states(t, srv)[p.PID] == process.StateTerminated
	}, 2*time.Second, 2*time.Millisecond)
	snapshot, err := srv.Process(ctx, p.PID)
	assert.NoError(t, err)
	assert.Equal(t, 10, snapshot.Progress)

	srv.Stop()
	assert.False(t, srv.Running())
	srv.Stop()

	stats := srv.Stats()
	assert.Equal(t, 1, stats.Completions)
	assert.Equal(t, 1, stats.States[process.StateTerminated])
	assert.Equal(t, runID, stats.RunID)
	assert.Greater(t, stats.Ticks, 0)
}

func TestService_StopKeepsStates(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	p, _ := srv.AddProcess(ctx, "Low")
	srv.Start(ctx)
	assert.Eventually(t, func() bool {
		return states(t, srv)[p.PID] == process.StateRunning
	}, time.Second, time.Millisecond)
	srv.Stop()
	before, _ := srv.Process(ctx, p.PID)
	time.Sleep(20 * time.Millisecond)
	after, _ := srv.Process(ctx, p.PID)
	assert.Equal(t, process.StateRunning, after.State)
	assert.Equal(t, before.Progress, after.Progress)
}

func TestService_OnStatsChangeReadsProcesses(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	var observed atomic.Int32
	srv.OnStatsChange(func(_ progress.Progress) {
		if snapshots, err := srv.Processes(ctx); err == nil && len(snapshots) > 0 {
			observed.Add(1)
		}
	})
	t.Cleanup(func() { srv.OnStatsChange(nil) })
	p, err := srv.AddProcess(ctx, "High")
	assert.NoError(t, err)

	srv.Start(ctx)
	assert.Eventually(t, func() bool {
		return observed.Load() > 0 && states(t, srv)[p.PID] == process.StateTerminated
	}, 2*time.Second, 2*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestService_StopBoundedByTimeout(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := newService(t, procsim.WithTransitionListener(func(process.Transition) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}))
	unblock := sync.OnceFunc(func() { close(release) })
	t.Cleanup(unblock)
	_, err := srv.AddProcess(ctx, "Low")
	assert.NoError(t, err)

	srv.Start(ctx)
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked")
	}

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return within the stop timeout")
	}
	assert.False(t, srv.Running())

	unblock()
	time.Sleep(50 * time.Millisecond)
	before, err := srv.Process(ctx, 1)
	assert.NoError(t, err)
	assert.NotEqual(t, process.StateNew, before.State)
	time.Sleep(50 * time.Millisecond)
	after, err := srv.Process(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Progress, after.Progress)
}

func TestService_KillResume(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	for _, label := range []string{"Low", "Medium Low", "High"} {
		_, err := srv.AddProcess(ctx, label)
		assert.NoError(t, err)
	}
	srv.ChangeProcessState(ctx, 2, process.StateBlocked)
	srv.Start(ctx)
	assert.Eventually(t, func() bool {
		return states(t, srv)[1] == process.StateRunning
	}, time.Second, time.Millisecond)

	srv.Kill()
	assert.True(t, srv.Killed())
	assert.Eventually(t, func() bool {
		for _, state := range states(t, srv) {
			if state != process.StateZombie && state != process.StateTerminated {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	srv.Start(ctx)
	assert.False(t, srv.Killed())
	assert.Eventually(t, func() bool {
		for _, state := range states(t, srv) {
			if state == process.StateZombie {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)
	assert.Equal(t, process.StateBlocked, states(t, srv)[2])
	assert.GreaterOrEqual(t, srv.Stats().ZombieConversions, 2)
}

func TestService_ChangeProcessState(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	p, _ := srv.AddProcess(ctx, "Medium High")

	srv.ChangeProcessState(ctx, 42, process.StateBlocked)
	srv.ChangeProcessState(ctx, p.PID, process.StateRunning)
	assert.Equal(t, process.StateNew, states(t, srv)[p.PID])

	srv.ChangeProcessState(ctx, p.PID, process.StateBlocked)
	snapshot, _ := srv.Process(ctx, p.PID)
	assert.Equal(t, process.StateBlocked, snapshot.State)
	assert.Equal(t, process.StateBlocked, snapshot.ManualState)

	srv.ChangeProcessState(ctx, p.PID, process.StateReady)
	snapshot, _ = srv.Process(ctx, p.PID)
	assert.Equal(t, process.StateReady, snapshot.State)
	assert.Equal(t, process.StateReady, snapshot.ManualState)
	assert.Eventually(t, func() bool {
		snapshot, _ := srv.Process(ctx, p.PID)
		return snapshot.ManualState == process.StateNone
	}, time.Second, time.Millisecond)

	blocked, err := srv.Processes(ctx, process.StateBlocked)
	assert.NoError(t, err)
	assert.Empty(t, blocked)
	ready, err := srv.Processes(ctx, process.StateReady)
	assert.NoError(t, err)
	assert.Len(t, ready, 1)

	srv.ChangeProcessState(ctx, p.PID, process.StateTerminated)
	srv.ChangeProcessState(ctx, p.PID, process.StateReady)
	snapshot, _ = srv.Process(ctx, p.PID)
	assert.Equal(t, process.StateTerminated, snapshot.State)
	assert.Equal(t, process.StateTerminated, snapshot.ManualState)
}

func TestService_RemoveProcess(t *testing.T) {
	ctx := context.Background()
	srv := newService(t)
	first, _ := srv.AddProcess(ctx, "Low")
	second, _ := srv.AddProcess(ctx, "Low")

	assert.ErrorIs(t, srv.RemoveProcess(ctx, first.PID), process.ErrNotTerminated)
	assert.ErrorIs(t, srv.RemoveProcess(ctx, 99), dao.ErrNotFound)

	srv.ChangeProcessState(ctx, first.PID, process.StateTerminated)
	assert.NoError(t, srv.RemoveProcess(ctx, first.PID))
	_, err := srv.Process(ctx, first.PID)
	assert.ErrorIs(t, err, dao.ErrNotFound)

	third, _ := srv.AddProcess(ctx, "High")
	assert.Equal(t, 3, third.PID)
	assert.NotEqual(t, second.PID, third.PID)
	assert.Equal(t, 0, srv.Stats().States[process.StateTerminated])
}

func TestService_Listen(t *testing.T) {
	ctx := context.Background()
	var mux sync.Mutex
	var synchronous []process.Transition
	srv := newService(t, procsim.WithTransitionListener(func(tr process.Transition) {
		mux.Lock()
		synchronous = append(synchronous, tr)
		mux.Unlock()
	}))
	var received []*event.Event[process.Transition]
	stop := srv.Listen(ctx, func(e *event.Event[process.Transition]) {
		mux.Lock()
		received = append(received, e)
		mux.Unlock()
	})
	defer stop()

	p, _ := srv.AddProcess(ctx, "High")
	srv.ChangeProcessState(ctx, p.PID, process.StateBlocked)
	assert.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(received) == 1
	}, time.Second, time.Millisecond)

	mux.Lock()
	defer mux.Unlock()
	e := received[0]
	assert.Equal(t, procsim.EventTypeTransition, e.Context.EventType)
	assert.Equal(t, p.PID, e.Context.PID)
	assert.Equal(t, process.StateNew, e.Data.From)
	assert.Equal(t, process.StateBlocked, e.Data.To)
	assert.Equal(t, process.TriggerBlock, e.Data.Trigger)
	assert.Len(t, synchronous, 1)
	assert.Equal(t, 0, srv.DroppedEvents())
}

func TestService_Checkpoint(t *testing.T) {
	ctx := context.Background()
	srv := procsim.New()
	assert.ErrorIs(t, srv.Checkpoint(ctx), procsim.ErrNoSnapshotStore)

	store, err := fs.New("mem://localhost/procsim/checkpoint")
	if !assert.NoError(t, err) {
		return
	}
	srv = newService(t, procsim.WithSnapshotDAO(store))
	first, _ := srv.AddProcess(ctx, "High")
	second, _ := srv.AddProcess(ctx, "Low")
	srv.ChangeProcessState(ctx, second.PID, process.StateBlocked)
	assert.NoError(t, srv.Checkpoint(ctx))

	saved, err := store.List(ctx)
	assert.NoError(t, err)
	if assert.Len(t, saved, 2) {
		assert.Equal(t, first.PID, saved[0].PID)
		assert.Equal(t, process.StateBlocked, saved[1].State)
	}

	srv.ChangeProcessState(ctx, first.PID, process.StateTerminated)
	assert.NoError(t, srv.RemoveProcess(ctx, first.PID))
	assert.NoError(t, srv.Checkpoint(ctx))
	saved, err = store.List(ctx)
	assert.NoError(t, err)
	if assert.Len(t, saved, 1) {
		assert.Equal(t, second.PID, saved[0].PID)
	}
}
