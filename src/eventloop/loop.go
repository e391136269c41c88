// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

// Package eventloop provides the cooperative, single-goroutine dispatcher
// that the connectivity diagnostics run on.
//
// A [Loop] multiplexes three kinds of work onto one goroutine:
//
//   - posted tasks ([Loop.PostTask]), run on the next iteration
//   - delayed tasks ([Loop.PostDelayedTask]), run once their deadline passes
//   - descriptor readiness ([Loop.CreateReadyHandler]) and buffered input
//     ([Loop.CreateInputHandler]), driven by epoll
//
// Posting tasks is safe from any goroutine. Everything else, including
// creating and stopping handlers, must happen on the loop goroutine (or
// before [Loop.Run] starts).
package eventloop

import (
	"container/heap"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	maxEvents      = 64
	readBufferSize = 4096
)

// ReadyMode selects which readiness condition a ready handler waits for.
type ReadyMode int

const (
	// ModeRead fires when the descriptor is readable.
	ModeRead ReadyMode = iota
	// ModeWrite fires when the descriptor is writable (or a pending
	// connect has completed).
	ModeWrite
)

// Handler is a registered descriptor watcher. Once Stop returns the
// handler never fires again.
type Handler interface {
	Stop()
}

// Dispatcher is the scheduling surface the diagnostics depend on.
// [Loop] is the production implementation.
type Dispatcher interface {
	PostTask(task func()) *Task
	PostDelayedTask(task func(), delay time.Duration) *Task
	CreateReadyHandler(fd int, mode ReadyMode, callback func(fd int)) (Handler, error)
	CreateInputHandler(fd int, onData func(data []byte), onError func(err error)) (Handler, error)
}

var _ Dispatcher = (*Loop)(nil)

// Option configures a [Loop].
type Option func(*Loop)

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// Loop is an epoll based [Dispatcher].
type Loop struct {
	epfd   int
	wakefd int
	logger *zap.Logger

	mu     sync.Mutex
	tasks  []*Task
	timers timerHeap
	seq    uint64
	closed bool

	// Loop goroutine only.
	handlers map[int]*ioHandler
	events   []unix.EpollEvent
}

// New creates a [Loop]. Call [Loop.Run] to start dispatching and
// [Loop.Close] to release its descriptors.
func New(opts ...Option) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventloop: eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventloop: register wake descriptor: %w", err)
	}

	l := &Loop{
		epfd:     epfd,
		wakefd:   wakefd,
		logger:   zap.NewNop(),
		handlers: make(map[int]*ioHandler),
		events:   make([]unix.EpollEvent, maxEvents),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// PostTask queues task for the next loop iteration. Tasks posted from
// the same goroutine run in post order.
func (l *Loop) PostTask(task func()) *Task {
	t := &Task{fn: task}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		t.Cancel()
		return t
	}
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()

	l.wake()
	return t
}

// PostDelayedTask queues task to run once delay has elapsed.
func (l *Loop) PostDelayedTask(task func(), delay time.Duration) *Task {
	if delay < 0 {
		delay = 0
	}
	t := &Task{fn: task, deadline: time.Now().Add(delay)}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		t.Cancel()
		return t
	}
	l.seq++
	t.seq = l.seq
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.wake()
	return t
}

// CreateReadyHandler calls callback on the loop goroutine each time fd
// satisfies mode, until the returned handler is stopped. Error and hangup
// conditions also fire the callback so the owner can inspect SO_ERROR.
func (l *Loop) CreateReadyHandler(fd int, mode ReadyMode, callback func(fd int)) (Handler, error) {
	var events uint32 = unix.EPOLLIN
	if mode == ModeWrite {
		events = unix.EPOLLOUT
	}
	h := &ioHandler{loop: l, fd: fd, ready: callback}
	if err := l.register(h, events); err != nil {
		return nil, err
	}
	return h, nil
}

// CreateInputHandler reads fd whenever it becomes readable and hands the
// bytes to onData. End of stream is reported as onData with an empty
// slice; read errors go to onError. The slice passed to onData is only
// valid for the duration of the call.
func (l *Loop) CreateInputHandler(fd int, onData func(data []byte), onError func(err error)) (Handler, error) {
	h := &ioHandler{
		loop:    l,
		fd:      fd,
		onData:  onData,
		onError: onError,
		buf:     make([]byte, readBufferSize),
	}
	if err := l.register(h, unix.EPOLLIN|unix.EPOLLRDHUP); err != nil {
		return nil, err
	}
	return h, nil
}

func (l *Loop) register(h *ioHandler, events uint32) error {
	if h.fd < 0 {
		return ErrInvalidDescriptor
	}
	if l.isClosed() {
		return ErrClosed
	}
	if _, exists := l.handlers[h.fd]; exists {
		return fmt.Errorf("%w: fd %d", ErrHandlerExists, h.fd)
	}

	ev := unix.EpollEvent{Events: events, Fd: int32(h.fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, h.fd, &ev); err != nil {
		return fmt.Errorf("eventloop: register fd %d: %w", h.fd, err)
	}
	h.active = true
	l.handlers[h.fd] = h
	return nil
}

func (l *Loop) unregister(h *ioHandler) {
	if cur, ok := l.handlers[h.fd]; ok && cur == h {
		delete(l.handlers, h.fd)
	}
	// The descriptor may already be closed, which removes it from the
	// epoll set on its own.
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, h.fd, nil)
}

// Run dispatches work on the calling goroutine until ctx is done or the
// loop is closed. It returns ctx.Err() on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.wake)
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.isClosed() {
			return ErrClosed
		}

		l.runPending()

		n, err := unix.EpollWait(l.epfd, l.events, l.nextTimeout())
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if l.isClosed() {
				return ErrClosed
			}
			return fmt.Errorf("%w: %v", ErrPoll, err)
		}

		// Resolve handlers before dispatching any of them so a handler
		// created during this batch on a recycled descriptor does not see
		// an event meant for its predecessor.
		batch := make([]readyEvent, 0, n)
		for i := 0; i < n; i++ {
			fd := int(l.events[i].Fd)
			if fd == l.wakefd {
				l.drainWake()
				continue
			}
			if h, ok := l.handlers[fd]; ok {
				batch = append(batch, readyEvent{h: h, events: l.events[i].Events})
			}
		}
		for _, ev := range batch {
			if ev.h.active {
				ev.h.dispatch(ev.events)
			}
		}

		l.runTimers()
	}
}

// Close releases the loop's descriptors. Pending tasks never run. Cancel
// the context given to [Loop.Run] and wait for it to return first.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.tasks = nil
	l.timers = nil
	l.mu.Unlock()

	var err error
	err = multierr.Append(err, unix.Close(l.wakefd))
	err = multierr.Append(err, unix.Close(l.epfd))
	if err != nil {
		return fmt.Errorf("eventloop: close: %w", err)
	}
	return nil
}

type readyEvent struct {
	h      *ioHandler
	events uint32
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) runPending() {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, t := range tasks {
		t.run()
	}
}

func (l *Loop) runTimers() {
	now := time.Now()
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].deadline.After(now) {
			l.mu.Unlock()
			return
		}
		t := heap.Pop(&l.timers).(*Task)
		l.mu.Unlock()

		t.run()
	}
}

// nextTimeout returns the epoll_wait timeout in milliseconds: zero when
// tasks are queued, -1 when nothing is scheduled.
func (l *Loop) nextTimeout() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) > 0 {
		return 0
	}
	// Drop canceled timers at the head so they do not cause wakeups.
	for len(l.timers) > 0 && l.timers[0].Canceled() {
		heap.Pop(&l.timers)
	}
	if len(l.timers) == 0 {
		return -1
	}
	d := time.Until(l.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	// Round up so we never wake before the deadline.
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(l.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		// EBADF after Close is expected; anything else is worth a note.
		if !errors.Is(err, unix.EBADF) {
			l.logger.Debug("eventloop_wake_failed", zap.Error(err))
		}
	}
}

func (l *Loop) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(l.wakefd, buf[:])
}
