// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package dnsclient

import "errors"

// Sentinel errors for the dnsclient package.
var (
	// ErrTimedOut is reported when no server answered within the
	// configured timeout.
	ErrTimedOut = errors.New("dnsclient: query timed out")

	// ErrNoServers is returned by Start when neither the configuration
	// nor the system resolver supplies a server.
	ErrNoServers = errors.New("dnsclient: no DNS servers configured")

	// ErrNoRecords is reported when a server answered without an address
	// record of the requested family.
	ErrNoRecords = errors.New("dnsclient: no address records in response")

	// ErrQueryFailed is reported when every server failed for a reason
	// other than a timeout.
	ErrQueryFailed = errors.New("dnsclient: query failed")

	// ErrAlreadyRunning is returned by Start while a lookup is in flight.
	ErrAlreadyRunning = errors.New("dnsclient: lookup already in progress")

	// ErrInvalidHostname is returned by Start for names that cannot be
	// converted to their ASCII form.
	ErrInvalidHostname = errors.New("dnsclient: invalid hostname")
)
