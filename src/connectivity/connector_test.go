// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop/eventlooptest"
	"github.com/H0llyW00dzZ/connectivity-checker/src/sockets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type connectOutcome struct {
	success bool
	fd      int
}

func TestAsyncConnectionSuccess(t *testing.T) {
	loop := eventlooptest.Start(t)
	accepted := make(chan struct{}, 1)
	target := startTCPServer(t, func(net.Conn) { accepted <- struct{}{} })

	results := make(chan connectOutcome, 2)
	c := NewAsyncConnection("", loop, sockets.System{}, func(ok bool, fd int) {
		results <- connectOutcome{ok, fd}
	}, nil)

	eventlooptest.Do(t, loop, func() {
		assert.NoError(t, c.Start(target.Addr(), int(target.Port())))
	})

	got := eventlooptest.Receive(t, results)
	require.True(t, got.success)
	require.GreaterOrEqual(t, got.fd, 0)
	defer unix.Close(got.fd)
	eventlooptest.Receive(t, accepted)

	eventlooptest.Never(t, results, 100*time.Millisecond)
	eventlooptest.Do(t, loop, func() {
		assert.False(t, c.IsConnecting())
		assert.NoError(t, c.Err())
		// The callee owns fd; Stop must not close it.
		c.Stop()
	})
	_, err := unix.Write(got.fd, []byte("x"))
	assert.NoError(t, err)
}

func TestAsyncConnectionRefused(t *testing.T) {
	loop := eventlooptest.Start(t)
	target := closedPort(t)

	results := make(chan connectOutcome, 2)
	c := NewAsyncConnection("", loop, sockets.System{}, func(ok bool, fd int) {
		results <- connectOutcome{ok, fd}
	}, nil)

	var startErr error
	eventlooptest.Do(t, loop, func() { startErr = c.Start(target.Addr(), int(target.Port())) })

	if startErr != nil {
		// Some kernels refuse loopback connects synchronously.
		assert.ErrorIs(t, startErr, unix.ECONNREFUSED)
		eventlooptest.Never(t, results, 100*time.Millisecond)
		return
	}

	got := eventlooptest.Receive(t, results)
	assert.Equal(t, connectOutcome{false, -1}, got)
	eventlooptest.Never(t, results, 100*time.Millisecond)

	var err error
	eventlooptest.Do(t, loop, func() { err = c.Err() })
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, unix.ECONNREFUSED)
}

func TestAsyncConnectionStopSuppressesCallback(t *testing.T) {
	loop := eventlooptest.Start(t)

	// A non-routable address keeps the connect pending.
	results := make(chan connectOutcome, 1)
	c := NewAsyncConnection("", loop, sockets.System{}, func(ok bool, fd int) {
		results <- connectOutcome{ok, fd}
	}, nil)

	var startErr error
	eventlooptest.Do(t, loop, func() {
		startErr = c.Start(netip.MustParseAddr("10.255.255.1"), 80)
		if startErr != nil {
			return
		}
		assert.True(t, c.IsConnecting())
		assert.ErrorIs(t, c.Start(netip.MustParseAddr("10.255.255.1"), 80), ErrConnectInProgress)
		c.Stop()
		c.Stop()
		assert.False(t, c.IsConnecting())
	})
	if startErr != nil {
		t.Skipf("no route for pending connect: %v", startErr)
	}
	eventlooptest.Never(t, results, 200*time.Millisecond)
}

func TestAsyncConnectionStopBeforeStart(t *testing.T) {
	loop := eventlooptest.Start(t)
	c := NewAsyncConnection("", loop, sockets.System{}, func(bool, int) {
		t.Error("callback fired")
	}, nil)
	eventlooptest.Do(t, loop, func() {
		c.Stop()
		c.Stop()
	})
}

func TestAsyncConnectionImmediateSuccess(t *testing.T) {
	loop := eventlooptest.Start(t)
	s := newFakeSockets()

	var (
		fired    bool
		returned bool
		gotFD    int
	)
	c := NewAsyncConnection("eth0", loop, s, func(ok bool, fd int) {
		// Runs inside Start.
		fired = ok
		gotFD = fd
		assert.False(t, returned)
	}, nil)

	eventlooptest.Do(t, loop, func() {
		assert.NoError(t, c.Start(netip.MustParseAddr("192.0.2.1"), 80))
		returned = true
		assert.True(t, fired)
		assert.Equal(t, 100, gotFD)
		assert.False(t, c.IsConnecting())
	})

	assert.Equal(t, []string{"eth0"}, s.bound)
	_, _, closed := s.stats()
	assert.Zero(t, closed, "fd belongs to the callee")
}

func TestAsyncConnectionSyncFailureClosesSocket(t *testing.T) {
	loop := eventlooptest.Start(t)
	s := newFakeSockets()
	s.connectErr = unix.ENETUNREACH

	c := NewAsyncConnection("", loop, s, func(bool, int) {
		t.Error("callback fired")
	}, nil)

	var err error
	eventlooptest.Do(t, loop, func() { err = c.Start(netip.MustParseAddr("192.0.2.1"), 80) })
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, unix.ENETUNREACH)
	assert.ErrorIs(t, c.Err(), unix.ENETUNREACH)
	assert.Equal(t, []int{100}, s.closed)
}

func TestAsyncConnectionInvalidAddress(t *testing.T) {
	loop := eventlooptest.Start(t)
	c := NewAsyncConnection("", loop, newFakeSockets(), func(bool, int) {}, nil)

	var err error
	eventlooptest.Do(t, loop, func() { err = c.Start(netip.Addr{}, 80) })
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestAsyncConnectionBindsLocalAddress(t *testing.T) {
	loop := eventlooptest.Start(t)
	target := startTCPServer(t, func(net.Conn) {})

	results := make(chan connectOutcome, 1)
	c := NewAsyncConnection("", loop, sockets.System{}, func(ok bool, fd int) {
		results <- connectOutcome{ok, fd}
	}, nil)
	c.SetLocalAddress(netip.MustParseAddr("127.0.0.1"))

	eventlooptest.Do(t, loop, func() {
		assert.NoError(t, c.Start(target.Addr(), int(target.Port())))
	})
	got := eventlooptest.Receive(t, results)
	require.True(t, got.success)
	defer unix.Close(got.fd)

	sa, err := unix.Getsockname(got.fd)
	require.NoError(t, err)
	local, ok := sockets.AddrPort(sa)
	require.True(t, ok)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), local.Addr())
}
