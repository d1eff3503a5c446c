package calendar

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_RunsOnlyLastTask(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, time.Second)
	defer d.Stop()

	var got atomic.Int64
	for i := 1; i <= 5; i++ {
		n := int64(i)
		d.Schedule(func(context.Context) { got.Add(n) })
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool { return got.Load() != 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int64(5), got.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, time.Second)
	defer d.Stop()

	var ran atomic.Bool
	d.Schedule(func(context.Context) { ran.Store(true) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestDebouncer_StopCancelsRunningTask(t *testing.T) {
	d := NewDebouncer(time.Millisecond, time.Minute)

	started := make(chan struct{})
	var cancelled atomic.Bool
	d.Schedule(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})

	<-started
	d.Stop()
	assert.True(t, cancelled.Load(), "Stop waits for the running task after cancelling it")

	var ran atomic.Bool
	d.Schedule(func(context.Context) { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load(), "Schedule after Stop is ignored")
	d.Stop()
}

func TestDebouncer_TaskContextHasTimeout(t *testing.T) {
	d := NewDebouncer(time.Millisecond, 50*time.Millisecond)
	defer d.Stop()

	deadline := make(chan bool, 1)
	d.Schedule(func(ctx context.Context) {
		_, ok := ctx.Deadline()
		deadline <- ok
	})
	select {
	case ok := <-deadline:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}
