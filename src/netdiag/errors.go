// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package netdiag

import "errors"

// Sentinel errors for the netdiag package.
var (
	// ErrClosed is returned by every method once [Checker.Close] was
	// called.
	ErrClosed = errors.New("netdiag: checker closed")

	// ErrNoDNSServers is returned by [Checker.DNSTest] when neither the
	// call nor the connection names a server.
	ErrNoDNSServers = errors.New("netdiag: no DNS servers to test")

	// ErrInternalPanic is returned when a diagnostic panics on the loop.
	ErrInternalPanic = errors.New("netdiag: internal panic")
)
