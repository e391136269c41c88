// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package sockets

import "errors"

// Sentinel errors for the sockets package.
var (
	// ErrTableUnavailable is returned when none of the kernel TCP tables
	// could be read.
	ErrTableUnavailable = errors.New("sockets: TCP socket table unavailable")

	// ErrMalformedEntry is returned when a table row cannot be parsed.
	ErrMalformedEntry = errors.New("sockets: malformed socket table entry")
)
