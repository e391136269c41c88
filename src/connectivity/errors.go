// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package connectivity

import "errors"

// Sentinel errors for the connectivity package.
var (
	// ErrInvalidURL is returned when a string is not an absolute
	// http:// or https:// URL with a usable host and port.
	ErrInvalidURL = errors.New("connectivity: invalid URL")

	// ErrConnectInProgress is returned by [AsyncConnection.Start] while
	// a previous connect has not completed. Call Stop first.
	ErrConnectInProgress = errors.New("connectivity: connect already in progress")

	// ErrConnectFailed wraps the syscall error of a failed connect.
	ErrConnectFailed = errors.New("connectivity: connect failed")

	// ErrNoTrialURL is returned by [Trial.Retry] before any successful
	// [Trial.Start].
	ErrNoTrialURL = errors.New("connectivity: no trial URL to retry")

	// ErrUnsupportedPort is returned by [HealthChecker.AddRemoteURL] for
	// URLs that do not use the probe port.
	ErrUnsupportedPort = errors.New("connectivity: unsupported remote port")

	// ErrInvalidAddress is returned for zero or unspecified addresses.
	ErrInvalidAddress = errors.New("connectivity: invalid address")
)
