// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

// Package sockets wraps the raw socket syscalls used by the connectivity
// diagnostics and reads the kernel TCP socket table.
//
// The [Sockets] interface exists so tests can substitute failures that
// are hard to provoke on a real host (bind errors, send errors, sockets
// that vanish from the kernel table).
package sockets

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Sockets is the syscall surface used by the connector and the health
// checker. Every method returns the underlying errno wrapped, so callers
// can match it with errors.Is (e.g. unix.EINPROGRESS).
type Sockets interface {
	Socket(domain, typ, protocol int) (int, error)
	Bind(fd int, sa unix.Sockaddr) error
	BindToDevice(fd int, ifname string) error
	SetNonBlocking(fd int) error
	Connect(fd int, sa unix.Sockaddr) error
	GetSockName(fd int) (unix.Sockaddr, error)
	GetSocketError(fd int) (int, error)
	Send(fd int, buf []byte, flags int) (int, error)
	Close(fd int) error
}

// System implements [Sockets] with real syscalls.
type System struct{}

var _ Sockets = System{}

// Socket creates a close-on-exec socket.
func (System) Socket(domain, typ, protocol int) (int, error) {
	fd, err := unix.Socket(domain, typ|unix.SOCK_CLOEXEC, protocol)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	return fd, nil
}

// Bind binds fd to a local address.
func (System) Bind(fd int, sa unix.Sockaddr) error {
	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

// BindToDevice restricts fd to traffic on the named interface.
func (System) BindToDevice(fd int, ifname string) error {
	if err := unix.BindToDevice(fd, ifname); err != nil {
		return fmt.Errorf("bind to device %q: %w", ifname, err)
	}
	return nil
}

// SetNonBlocking puts fd in non-blocking mode.
func (System) SetNonBlocking(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set non-blocking: %w", err)
	}
	return nil
}

// Connect starts a connection. A non-blocking socket reports
// unix.EINPROGRESS while the handshake is pending.
func (System) Connect(fd int, sa unix.Sockaddr) error {
	if err := unix.Connect(fd, sa); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// GetSockName returns the local address fd is bound to.
func (System) GetSockName(fd int) (unix.Sockaddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return sa, nil
}

// GetSocketError returns and clears the pending SO_ERROR value.
func (System) GetSocketError(fd int) (int, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	return v, nil
}

// Send writes buf to fd.
func (System) Send(fd int, buf []byte, flags int) (int, error) {
	n, err := unix.SendmsgN(fd, buf, nil, nil, flags)
	if err != nil {
		return n, fmt.Errorf("send: %w", err)
	}
	return n, nil
}

// Close closes fd.
func (System) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Sockaddr converts an address and port into the matching unix.Sockaddr.
func Sockaddr(addr netip.Addr, port int) unix.Sockaddr {
	if addr.Is4() || addr.Is4In6() {
		return &unix.SockaddrInet4{Port: port, Addr: addr.Unmap().As4()}
	}
	return &unix.SockaddrInet6{Port: port, Addr: addr.As16()}
}

// AddrPort converts an inet unix.Sockaddr back into a netip.AddrPort.
// Other address families yield ok == false.
func AddrPort(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port)), true
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port)), true
	default:
		return netip.AddrPort{}, false
	}
}
