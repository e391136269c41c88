// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package eventloop

import "errors"

// Sentinel errors for the eventloop package.
var (
	// ErrClosed is returned when registering work on a closed [Loop].
	ErrClosed = errors.New("eventloop: loop closed")

	// ErrHandlerExists is returned when a descriptor already has an
	// active handler. Stop the existing handler first.
	ErrHandlerExists = errors.New("eventloop: descriptor already has a handler")

	// ErrInvalidDescriptor is returned for negative file descriptors.
	ErrInvalidDescriptor = errors.New("eventloop: invalid file descriptor")

	// ErrPoll is returned by [Loop.Run] when epoll_wait fails.
	ErrPoll = errors.New("eventloop: poll failed")
)
