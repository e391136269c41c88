// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"bufio"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/H0llyW00dzZ/connectivity-checker/src/sockets"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeDNS is a dnsclient.Factory whose resolvers answer from a script.
type fakeDNS struct {
	mu       sync.Mutex
	startErr error
	// answer is called on Start; nil means the lookup never completes.
	answer  func(hostname string) (netip.Addr, error)
	configs []dnsclient.Config
	starts  int
	stops   int
}

func (f *fakeDNS) factory(cfg dnsclient.Config, d eventloop.Dispatcher, cb dnsclient.Callback) dnsclient.Resolver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return &fakeResolver{owner: f, d: d, cb: cb}
}

func (f *fakeDNS) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeDNS) lastConfig() dnsclient.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[len(f.configs)-1]
}

type fakeResolver struct {
	owner  *fakeDNS
	d      eventloop.Dispatcher
	cb     dnsclient.Callback
	active bool
	gen    int
}

func (r *fakeResolver) Start(hostname string) error {
	r.owner.mu.Lock()
	err, answer := r.owner.startErr, r.owner.answer
	if err == nil {
		r.owner.starts++
	}
	r.owner.mu.Unlock()
	if err != nil {
		return err
	}

	r.active = true
	r.gen++
	if answer == nil {
		return nil
	}
	gen := r.gen
	ip, aerr := answer(hostname)
	r.d.PostTask(func() {
		if !r.active || r.gen != gen {
			return
		}
		r.active = false
		r.cb(ip, aerr)
	})
	return nil
}

func (r *fakeResolver) Stop() {
	r.owner.mu.Lock()
	r.owner.stops++
	r.owner.mu.Unlock()
	r.active = false
	r.gen++
}

func (r *fakeResolver) IsActive() bool { return r.active }

// fakeSockets scripts the syscall layer. Descriptors are plain numbers
// and are never registered with the loop, so connects must either
// succeed or fail synchronously.
type fakeSockets struct {
	mu         sync.Mutex
	nextFD     int
	connectErr error
	sendErr    error
	local      map[int]netip.AddrPort
	connects   []netip.AddrPort
	sends      int
	closed     []int
	bound      []string
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{nextFD: 100, local: make(map[int]netip.AddrPort)}
}

func (s *fakeSockets) Socket(int, int, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd := s.nextFD
	s.nextFD++
	// Each probe socket gets its own local port.
	s.local[fd] = netip.AddrPortFrom(netip.MustParseAddr("10.0.0.2"), uint16(40000+fd))
	return fd, nil
}

func (s *fakeSockets) Bind(int, unix.Sockaddr) error { return nil }

func (s *fakeSockets) BindToDevice(_ int, ifname string) error {
	s.mu.Lock()
	s.bound = append(s.bound, ifname)
	s.mu.Unlock()
	return nil
}

func (s *fakeSockets) SetNonBlocking(int) error { return nil }

func (s *fakeSockets) Connect(_ int, sa unix.Sockaddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, _ := sockets.AddrPort(sa)
	s.connects = append(s.connects, ap)
	return s.connectErr
}

func (s *fakeSockets) GetSockName(fd int) (unix.Sockaddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ap, ok := s.local[fd]
	if !ok {
		return nil, unix.EBADF
	}
	return sockets.Sockaddr(ap.Addr(), int(ap.Port())), nil
}

func (s *fakeSockets) GetSocketError(int) (int, error) { return 0, nil }

func (s *fakeSockets) Send(_ int, buf []byte, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	s.sends++
	return len(buf), nil
}

func (s *fakeSockets) Close(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, fd)
	// Closed sockets leave the kernel table.
	delete(s.local, fd)
	return nil
}

func (s *fakeSockets) stats() (connects, sends, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connects), s.sends, len(s.closed)
}

// fakeTable reports the state of each probe socket through a function
// of its local endpoint and the number of table reads for it so far.
type fakeTable struct {
	sockets *fakeSockets
	mu      sync.Mutex
	reads   map[netip.AddrPort]int
	state   func(read int) (sockets.Info, bool)
	err     error
}

func (f *fakeTable) LoadTCPSocketInfo() ([]sockets.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.reads == nil {
		f.reads = make(map[netip.AddrPort]int)
	}

	var out []sockets.Info
	f.sockets.mu.Lock()
	locals := make([]netip.AddrPort, 0, len(f.sockets.local))
	for _, ap := range f.sockets.local {
		locals = append(locals, ap)
	}
	f.sockets.mu.Unlock()

	// Unrelated noise the checker must skip.
	out = append(out, sockets.Info{
		Local: netip.MustParseAddrPort("127.0.0.1:22"),
		State: sockets.StateListen,
	})
	for _, ap := range locals {
		info, ok := f.state(f.reads[ap])
		f.reads[ap]++
		if !ok {
			continue
		}
		info.Local = ap
		out = append(out, info)
	}
	return out, nil
}

// startTCPServer accepts connections on 127.0.0.1 and hands each to
// handle on its own goroutine.
func startTCPServer(t *testing.T, handle func(net.Conn)) netip.AddrPort {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				handle(c)
			}()
		}
	}()
	return netip.MustParseAddrPort(ln.Addr().String())
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	ap := netip.MustParseAddrPort(ln.Addr().String())
	require.NoError(t, ln.Close())
	return ap
}

// readRequest consumes an HTTP request head and returns it.
func readRequest(c net.Conn) string {
	r := bufio.NewReader(c)
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if err != nil || line == "\r\n" {
			return b.String()
		}
	}
}

// respond returns a handler that answers every request with resp and
// closes.
func respond(resp string) func(net.Conn) {
	return func(c net.Conn) {
		readRequest(c)
		_, _ = c.Write([]byte(resp))
	}
}

// hang returns a handler that reads the request, writes prefix and then
// holds the connection open until the test ends.
func hang(t *testing.T, prefix string) func(net.Conn) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	return func(c net.Conn) {
		readRequest(c)
		if prefix != "" {
			_, _ = c.Write([]byte(prefix))
		}
		<-done
	}
}

// pendingSockets hands out descriptors whose connect never completes:
// the read end of a pipe is never writable while its write end stays
// open.
type pendingSockets struct {
	sockets.System
	t *testing.T
}

func (s pendingSockets) Socket(int, int, int) (int, error) {
	var p [2]int
	require.NoError(s.t, unix.Pipe2(p[:], unix.O_CLOEXEC))
	s.t.Cleanup(func() { _ = unix.Close(p[1]) })
	return p[0], nil
}

func (pendingSockets) Connect(int, unix.Sockaddr) error { return unix.EINPROGRESS }
