// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package connectivity diagnoses whether a live network connection
// actually reaches the Internet.
//
// It answers three questions about a [Connection]:
//
//   - Is there a captive portal in the way? A [Trial] fetches a URL that
//     must answer "204 No Content" and reports which phase (DNS,
//     Connection, HTTP, Content) failed when it does not.
//   - Is the connection silently stalled? A [HealthChecker] opens probe
//     connections, sends one byte on each and watches the kernel TCP
//     table to see whether the byte leaves the transmit queue.
//   - Do these DNS servers work? A [DNSServerTester] resolves a
//     well-known name using only the servers it is given.
//
// The building blocks are exported too: [ParseURL], [AsyncConnection]
// (a non-blocking TCP connector) and [HTTPRequest] (a raw HTTP/1.1 GET
// with layered timeouts).
//
// # Threading
//
// Every component runs on an [eventloop.Dispatcher] and must only be used
// from its goroutine. Nothing here blocks: each step returns to the loop
// and resumes from a timer or a socket readiness event. Results are
// delivered by callback, after the component has cleaned up, so a
// callback may restart or discard the component that called it.
//
// Except for [AsyncConnection], whose callback may fire inside Start when
// the kernel connects immediately, callbacks never fire before the call
// that started the work returns. Stop is always safe and never fires a
// callback.
//
// # Quick Start
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	conn := connectivity.NewStaticConnection("", []string{"8.8.8.8"}, false)
//	trial := connectivity.NewTrial(conn, loop, func(r connectivity.TrialResult) {
//	    fmt.Println("trial:", r)
//	    cancel()
//	})
//	loop.PostTask(func() {
//	    if err := trial.Start(connectivity.DefaultTrialURL, 0); err != nil {
//	        log.Print(err)
//	        cancel()
//	    }
//	})
//	_ = loop.Run(ctx)
//
// # Configuration
//
// Constructors take functional options. The same options are accepted
// everywhere; each component ignores the ones it does not use:
//
//	trial := connectivity.NewTrial(conn, loop, onResult,
//	    connectivity.WithLogger(logger),
//	    connectivity.WithTrialTimeout(5*time.Second),
//	    connectivity.WithDNSClientFactory(myFactory),
//	)
//
// [WithSockets], [WithSocketTable] and [WithDNSClientFactory] replace the
// system collaborators, which is how the tests drive failure paths.
//
// # Error Handling
//
// Lower layers never retry. Failures are values: [HTTPResult],
// [TrialResult], [HealthResult] and [DNSTestStatus] always keep a timeout
// distinct from a failure. Errors returned directly (bad URL, connect
// already in progress) wrap the sentinels in this package and can be
// matched with [errors.Is].
package connectivity
