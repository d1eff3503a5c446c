package calendar

import (
	"context"
	"sync"
	"time"
)

// Debouncer runs the most recently scheduled task once no new task has been
// scheduled for delay. Each run gets a context bounded by timeout that is
// cancelled by Stop.
type Debouncer struct {
	delay   time.Duration
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

func NewDebouncer(delay, timeout time.Duration) *Debouncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		delay:   delay,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule replaces any pending task with fn and restarts the delay.
// It is a no-op after Stop.
func (d *Debouncer) Schedule(fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen, fn) })
}

func (d *Debouncer) fire(gen uint64, fn func(ctx context.Context)) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.running.Add(1)
	parent := d.ctx
	d.mu.Unlock()

	defer d.running.Done()
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	fn(ctx)
}

// Pending reports whether a task is waiting for its delay to elapse.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending task, if any, and reports whether one was dropped.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

// Stop cancels the pending task, cancels the context of a running one and
// waits for it to return. Later calls to Schedule do nothing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.cancel()
	d.mu.Unlock()

	d.running.Wait()
}
