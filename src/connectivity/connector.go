// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/H0llyW00dzZ/connectivity-checker/src/sockets"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ConnectCallback receives the outcome of an [AsyncConnection]. On
// success fd is the connected socket and the callee owns it. On failure
// fd is -1.
type ConnectCallback func(success bool, fd int)

// AsyncConnection opens one non-blocking outbound TCP connection at a
// time.
//
// The callback may fire before [AsyncConnection.Start] returns when the
// kernel completes the connect immediately.
type AsyncConnection struct {
	ifname     string
	local      netip.Addr
	dispatcher eventloop.Dispatcher
	sockets    sockets.Sockets
	callback   ConnectCallback
	logger     *zap.Logger

	fd      int
	handler eventloop.Handler
	err     error
}

// NewAsyncConnection returns a connector that binds its sockets to
// ifname when ifname is not empty.
func NewAsyncConnection(ifname string, d eventloop.Dispatcher, s sockets.Sockets, cb ConnectCallback, logger *zap.Logger) *AsyncConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncConnection{
		ifname:     ifname,
		dispatcher: d,
		sockets:    s,
		callback:   cb,
		logger:     logger,
		fd:         -1,
	}
}

// SetLocalAddress binds future sockets to addr before connecting.
// The zero Addr disables binding.
func (c *AsyncConnection) SetLocalAddress(addr netip.Addr) {
	c.local = addr
}

// Start begins connecting to addr:port. A nil error means the callback
// will fire exactly once, unless Stop is called first.
func (c *AsyncConnection) Start(addr netip.Addr, port int) error {
	if c.fd >= 0 {
		return ErrConnectInProgress
	}
	if !addr.IsValid() {
		return c.fail(-1, fmt.Errorf("%w: %v", ErrInvalidAddress, addr))
	}

	family := unix.AF_INET6
	if addr.Unmap().Is4() {
		family = unix.AF_INET
	}

	fd, err := c.sockets.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return c.fail(-1, err)
	}
	if err := c.sockets.SetNonBlocking(fd); err != nil {
		return c.fail(fd, err)
	}
	if c.ifname != "" {
		if err := c.sockets.BindToDevice(fd, c.ifname); err != nil {
			return c.fail(fd, err)
		}
	}
	if c.local.IsValid() {
		if err := c.sockets.Bind(fd, sockets.Sockaddr(c.local, 0)); err != nil {
			return c.fail(fd, err)
		}
	}

	err = c.sockets.Connect(fd, sockets.Sockaddr(addr, port))
	switch {
	case err == nil:
		c.logger.Debug("connect_immediate", zap.Stringer("addr", addr), zap.Int("port", port))
		c.err = nil
		cb := c.callback
		cb(true, fd)
		return nil
	case errors.Is(err, unix.EINPROGRESS):
	default:
		return c.fail(fd, err)
	}

	handler, err := c.dispatcher.CreateReadyHandler(fd, eventloop.ModeWrite, c.onConnectReady)
	if err != nil {
		return c.fail(fd, err)
	}
	c.fd = fd
	c.handler = handler
	c.err = nil
	return nil
}

// Stop abandons a pending connect. The callback will not fire.
func (c *AsyncConnection) Stop() {
	if c.handler != nil {
		c.handler.Stop()
		c.handler = nil
	}
	if c.fd >= 0 {
		_ = c.sockets.Close(c.fd)
		c.fd = -1
	}
}

// Err returns the reason for the last failure.
func (c *AsyncConnection) Err() error {
	return c.err
}

// IsConnecting reports whether a connect is pending.
func (c *AsyncConnection) IsConnecting() bool {
	return c.fd >= 0
}

func (c *AsyncConnection) onConnectReady(fd int) {
	if c.handler != nil {
		c.handler.Stop()
		c.handler = nil
	}
	c.fd = -1

	soErr, err := c.sockets.GetSocketError(fd)
	if err == nil && soErr != 0 {
		err = unix.Errno(soErr)
	}

	cb := c.callback
	if err != nil {
		c.err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
		c.logger.Debug("connect_failed", zap.Error(err))
		_ = c.sockets.Close(fd)
		cb(false, -1)
		return
	}
	cb(true, fd)
}

// fail closes fd (if any) and records err.
func (c *AsyncConnection) fail(fd int, err error) error {
	if fd >= 0 {
		_ = c.sockets.Close(fd)
	}
	if !errors.Is(err, ErrConnectFailed) {
		err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	c.err = err
	c.logger.Debug("connect_start_failed", zap.Error(err))
	return err
}
