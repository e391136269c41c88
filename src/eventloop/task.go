// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package eventloop

import (
	"sync/atomic"
	"time"
)

// Task is a unit of work queued on a [Loop], either for the next
// iteration ([Loop.PostTask]) or after a delay ([Loop.PostDelayedTask]).
//
// A Task is its own cancellation handle: once [Task.Cancel] returns the
// closure is guaranteed not to run, provided Cancel is called on the loop
// goroutine (which is where every component in this module calls it).
type Task struct {
	fn       func()
	canceled atomic.Bool
	deadline time.Time
	seq      uint64
}

// Cancel prevents the task from running. It is safe to call on a nil
// Task, on a task that already ran, and more than once.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.canceled.Store(true)
}

// Canceled reports whether [Task.Cancel] has been called.
func (t *Task) Canceled() bool {
	return t != nil && t.canceled.Load()
}

func (t *Task) run() {
	if t.canceled.Load() {
		return
	}
	t.fn()
}

// timerHeap orders delayed tasks by deadline, then by post order so that
// tasks with equal deadlines run FIFO.
type timerHeap []*Task

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
