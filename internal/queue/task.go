package queue

import (
	"context"
	"sync"
	"time"
)

// Task is a periodically scheduled attempt with explicit cancellation.
// It replaces raw timer plumbing in callers: the owning operation holds
// the Task and stops it once an attempt succeeds or the need goes away.
type Task struct {
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Schedule runs fn every interval until the task is stopped or fn
// returns true (meaning the task completed its purpose and cancels its
// own interval). The first attempt happens after one interval, not
// immediately; callers wanting an immediate attempt run fn themselves
// first.
func Schedule(interval time.Duration, fn func(ctx context.Context) bool) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if fn(ctx) {
					return
				}
			}
		}
	}()
	return t
}

// Stop cancels the task. Safe to call multiple times and from fn itself.
func (t *Task) Stop() {
	t.stopOnce.Do(t.cancel)
}

// Wait blocks until the task loop has exited.
func (t *Task) Wait() {
	<-t.done
}

// Done returns a channel closed when the task loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
