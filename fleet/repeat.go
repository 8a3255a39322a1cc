package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RepeatingTask calls fn, sleeps interval, and repeats until stopped. The
// stop flag is checked before every iteration.
type RepeatingTask struct {
	stop atomic.Bool
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func StartRepeating(ctx context.Context, interval time.Duration, fn func(context.Context)) *RepeatingTask {
	t := &RepeatingTask{
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.loop(ctx, interval, fn)
	return t
}

func (t *RepeatingTask) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer close(t.done)
	for !t.stop.Load() && ctx.Err() == nil {
		fn(ctx)
		if t.stop.Load() {
			return
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-t.wake:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop sets the stop flag. An iteration already running completes; no
// further iteration starts.
func (t *RepeatingTask) Stop() {
	t.once.Do(func() {
		t.stop.Store(true)
		close(t.wake)
	})
}

// Done is closed once the task has exited.
func (t *RepeatingTask) Done() <-chan struct{} {
	return t.done
}

// HoldAction repeats fn while held: Press starts it, Release stops it.
type HoldAction struct {
	interval time.Duration
	fn       func(context.Context)

	mu   sync.Mutex
	task *RepeatingTask
}

func NewHoldAction(interval time.Duration, fn func(context.Context)) *HoldAction {
	return &HoldAction{interval: interval, fn: fn}
}

// Press starts repeating unless already held.
func (h *HoldAction) Press(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.task != nil {
		return
	}
	h.task = StartRepeating(ctx, h.interval, h.fn)
}

func (h *HoldAction) Release() {
	h.mu.Lock()
	task := h.task
	h.task = nil
	h.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

func (h *HoldAction) Held() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.task != nil
}
