// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

// Package eventlooptest provides helpers for tests that drive components
// on a running [eventloop.Loop].
package eventlooptest

import (
	"context"
	"testing"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wait is how long Do and Receive wait before failing the test.
const Wait = 5 * time.Second

// Start runs a new loop on its own goroutine until the test ends.
func Start(t testing.TB) *eventloop.Loop {
	t.Helper()

	l, err := eventloop.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		assert.NoError(t, l.Close())
	})
	return l
}

// Do runs fn on the loop goroutine and waits for it to return.
//
// fn must not call t.FailNow (require.*): that would exit the loop
// goroutine. Use assert and return early instead.
func Do(t testing.TB, d eventloop.Dispatcher, fn func()) {
	t.Helper()

	done := make(chan struct{})
	d.PostTask(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(Wait):
		t.Fatal("loop task did not run")
	}
}

// Receive waits for a value on ch.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(Wait):
		t.Fatal("timed out waiting for callback")
	}
	var zero T
	return zero
}

// Never asserts that nothing arrives on ch within d.
func Never[T any](t testing.TB, ch <-chan T, d time.Duration) {
	t.Helper()

	select {
	case v := <-ch:
		t.Errorf("unexpected value: %v", v)
	case <-time.After(d):
	}
}
