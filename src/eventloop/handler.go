// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package eventloop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ioHandler backs both ready handlers (ready != nil) and input handlers.
type ioHandler struct {
	loop   *Loop
	fd     int
	active bool

	ready func(fd int)

	onData  func(data []byte)
	onError func(err error)
	buf     []byte
}

// Stop unregisters the handler. Safe to call more than once.
func (h *ioHandler) Stop() {
	if !h.active {
		return
	}
	h.active = false
	h.loop.unregister(h)
}

func (h *ioHandler) dispatch(events uint32) {
	if h.ready != nil {
		h.ready(h.fd)
		return
	}
	h.readInput()
}

// readInput performs one read per readiness event. The descriptor is
// level triggered, so remaining data fires another event.
func (h *ioHandler) readInput() {
	for {
		n, err := unix.Read(h.fd, h.buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return
		case err != nil:
			h.onError(err)
			return
		case n == 0:
			h.onData(nil)
			return
		default:
			h.onData(h.buf[:n])
			return
		}
	}
}
