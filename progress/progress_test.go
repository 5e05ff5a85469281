package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/procsim/runtime/process"
)

func TestProgress_Move(t *testing.T) {
	p := New()
	p.Move(process.StateNone, process.StateNew)
	p.Move(process.StateNone, process.StateNew)
	p.Move(process.StateNew, process.StateReady)
	p.Move(process.StateReady, process.StateRunning)
	p.Move(process.StateRunning, process.StateBlockedSuspended)
	p.Move(process.StateNew, process.StateZombie)
	p.Move(process.StateZombie, process.StateNew)
	p.Move(process.StateNew, process.StateReady)
	p.Move(process.StateReady, process.StateRunning)
	p.Move(process.StateRunning, process.StateTerminated)

	snapshot := p.Snapshot()
	assert.Equal(t, map[process.State]int{
		process.StateBlockedSuspended: 1,
		process.StateTerminated:       1,
	}, snapshot.States)
	assert.Equal(t, 1, snapshot.Preemptions)
	assert.Equal(t, 1, snapshot.Completions)
	assert.Equal(t, 1, snapshot.ZombieConversions)

	p.Move(process.StateTerminated, process.StateNone)
	assert.Equal(t, 0, p.Count(process.StateTerminated))
}

func TestProgress_UpdateAndOnChange(t *testing.T) {
	p := New()
	changes := make(chan Progress, 16)
	p.OnChange(func(snapshot Progress) {
		changes <- snapshot
	})
	p.Update(Delta{Ticks: 1})
	p.Update(Delta{Ticks: 2, Preemptions: 1})

	var last Progress
	assert.Eventually(t, func() bool {
		for {
			select {
			case last = <-changes:
			default:
				return last.Ticks == 3
			}
		}
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, last.Preemptions)

	p.OnChange(nil)
	p.Update(Delta{Ticks: 1})
	time.Sleep(20 * time.Millisecond)
	for len(changes) > 0 {
		assert.Equal(t, 3, (<-changes).Ticks)
	}

	p.Start("run-1", time.Unix(10, 0))
	snapshot := p.Snapshot()
	assert.Equal(t, "run-1", snapshot.RunID)
	assert.Equal(t, 0, snapshot.Ticks)

	var nilProgress *Progress
	nilProgress.Update(Delta{Ticks: 1})
	nilProgress.Move(process.StateNew, process.StateReady)
	assert.Equal(t, Progress{}, nilProgress.Snapshot())
}

func TestProgress_OnChangeReadsTracker(t *testing.T) {
	p := New()
	counts := make(chan int, 16)
	p.OnChange(func(_ Progress) {
		counts <- p.Count(process.StateNew)
	})
	p.Move(process.StateNone, process.StateNew)

	select {
	case count := <-counts:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
	p.OnChange(nil)
}
