// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package netdiag runs the connectivity diagnostics of the connectivity
// package behind a blocking, context-aware API.
//
// A [Checker] owns an event loop goroutine. Each call posts one
// diagnostic to the loop and waits for its callback:
//
//	c, err := netdiag.New(netdiag.WithConnection("wlan0", nil, false))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	rec, err := c.Trial(ctx, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rec.Result) // "Content/Success" when not behind a portal
//
// Every call returns a [report.Record], ready for the report and status
// packages. Cancelling the context stops the diagnostic on the loop.
package netdiag
