// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package dnsclient resolves a single hostname asynchronously and reports
// the answer on an [eventloop.Dispatcher].
//
// The wire exchange runs on a helper goroutine. Its result is posted back
// to the dispatcher, so the callback always runs on the loop goroutine and
// never after [Client.Stop].
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/sys/unix"
)

// Default configuration values.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultResolvConf = "/etc/resolv.conf"
	defaultPort       = "53"
	defaultEDNS0Size  = 1232
)

// Family selects the address family to resolve.
type Family int

const (
	// IPv4 queries A records.
	IPv4 Family = iota
	// IPv6 queries AAAA records.
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "IPv6"
	}
	return "IPv4"
}

func (f Family) qtype() uint16 {
	if f == IPv6 {
		return dns.TypeAAAA
	}
	return dns.TypeA
}

// Config describes one resolver instance.
type Config struct {
	Family Family

	// Interface, when set, binds the query sockets to that device.
	Interface string

	// Servers are tried in order. Entries are IP addresses with an
	// optional port. Empty means the nameservers in ResolvConf.
	Servers []string

	// Timeout bounds the whole lookup, across all servers.
	Timeout time.Duration

	// ResolvConf overrides the system resolver file.
	ResolvConf string

	Logger *zap.Logger
}

// Callback receives the outcome of a lookup. Exactly one of ip and err
// is meaningful.
type Callback func(ip netip.Addr, err error)

// Resolver is an asynchronous single-name lookup.
type Resolver interface {
	// Start begins resolving hostname. Errors returned here mean no
	// lookup was launched and the callback will not fire.
	Start(hostname string) error
	// Stop abandons the lookup in flight. The callback will not fire.
	Stop()
	IsActive() bool
}

// Factory builds resolvers. Components take a Factory so tests can swap
// in a fake.
type Factory func(cfg Config, d eventloop.Dispatcher, cb Callback) Resolver

// DefaultFactory builds [Client] resolvers.
func DefaultFactory(cfg Config, d eventloop.Dispatcher, cb Callback) Resolver {
	return New(cfg, d, cb)
}

// Client is the miekg/dns backed [Resolver].
type Client struct {
	cfg        Config
	dispatcher eventloop.Dispatcher
	callback   Callback
	logger     *zap.Logger

	active bool
	gen    uint64
	cancel context.CancelFunc
}

var _ Resolver = (*Client)(nil)

// New creates a [Client]. Call its methods on the dispatcher goroutine.
func New(cfg Config, d eventloop.Dispatcher, cb Callback) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ResolvConf == "" {
		cfg.ResolvConf = DefaultResolvConf
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		dispatcher: d,
		callback:   cb,
		logger:     logger,
	}
}

// Start launches the lookup of hostname.
func (c *Client) Start(hostname string) error {
	if c.active {
		return ErrAlreadyRunning
	}

	name, err := idna.Lookup.ToASCII(strings.TrimSuffix(hostname, "."))
	if err != nil || name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}

	servers, err := c.servers()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	c.active = true
	c.cancel = cancel
	c.gen++
	gen := c.gen

	client := c.dnsClient()
	qtype := c.cfg.Family.qtype()
	logger := c.logger.With(zap.String("hostname", name))

	go func() {
		defer cancel()
		ip, err := resolve(ctx, client, name, servers, qtype, logger)
		c.dispatcher.PostTask(func() { c.complete(gen, ip, err) })
	}()
	return nil
}

// Stop abandons the lookup in flight.
func (c *Client) Stop() {
	if !c.active {
		return
	}
	c.active = false
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// IsActive reports whether a lookup is in flight.
func (c *Client) IsActive() bool {
	return c.active
}

func (c *Client) complete(gen uint64, ip netip.Addr, err error) {
	if !c.active || gen != c.gen {
		return
	}
	c.active = false
	c.cancel = nil

	cb := c.callback
	if cb != nil {
		cb(ip, err)
	}
}

// servers returns the server list with ports filled in.
func (c *Client) servers() ([]string, error) {
	list := c.cfg.Servers
	port := defaultPort
	if len(list) == 0 {
		conf, err := dns.ClientConfigFromFile(c.cfg.ResolvConf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoServers, err)
		}
		list = conf.Servers
		if conf.Port != "" {
			port = conf.Port
		}
	}

	out := make([]string, 0, len(list))
	for _, s := range list {
		if addr := normalizeServer(s, port); addr != "" {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoServers
	}
	return out, nil
}

// normalizeServer returns s as host:port, adding port when s is a bare
// address.
func normalizeServer(s, port string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return net.JoinHostPort(addr.String(), port)
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	return net.JoinHostPort(s, port)
}

func (c *Client) dnsClient() *dns.Client {
	client := &dns.Client{Net: "udp", Timeout: c.cfg.Timeout}
	if c.cfg.Interface != "" {
		iface := c.cfg.Interface
		client.Dialer = &net.Dialer{
			Timeout: c.cfg.Timeout,
			Control: func(_, _ string, rc syscall.RawConn) error {
				var opErr error
				err := rc.Control(func(fd uintptr) {
					opErr = unix.BindToDevice(int(fd), iface)
				})
				if err != nil {
					return err
				}
				return opErr
			},
		}
	}
	return client
}

// resolve queries each server in turn until one returns an address.
func resolve(ctx context.Context, client *dns.Client, name string, servers []string, qtype uint16, logger *zap.Logger) (netip.Addr, error) {
	var lastErr error
	for _, server := range servers {
		if ctx.Err() != nil {
			break
		}
		ip, err := queryServer(ctx, client, name, server, qtype)
		if err == nil {
			return ip, nil
		}
		logger.Debug("dns_query_failed", zap.String("server", server), zap.Error(err))
		lastErr = err
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(lastErr) {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrTimedOut, name)
	}
	if errors.Is(lastErr, ErrNoRecords) || errors.Is(lastErr, ErrQueryFailed) {
		return netip.Addr{}, lastErr
	}
	return netip.Addr{}, fmt.Errorf("%w: %v", ErrQueryFailed, lastErr)
}

func queryServer(ctx context.Context, client *dns.Client, name, server string, qtype uint16) (netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(defaultEDNS0Size, false)

	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return netip.Addr{}, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("%w: %s from %s", ErrQueryFailed, dns.RcodeToString[resp.Rcode], server)
	}
	if ip, ok := firstAddress(resp, qtype); ok {
		return ip, nil
	}
	return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoRecords, server)
}

// firstAddress returns the first address record of qtype in the answer.
func firstAddress(msg *dns.Msg, qtype uint16) (netip.Addr, bool) {
	for _, rr := range msg.Answer {
		switch v := rr.(type) {
		case *dns.A:
			if qtype != dns.TypeA {
				continue
			}
			if ip, ok := netip.AddrFromSlice(v.A.To4()); ok {
				return ip, true
			}
		case *dns.AAAA:
			if qtype != dns.TypeAAAA {
				continue
			}
			if ip, ok := netip.AddrFromSlice(v.AAAA.To16()); ok {
				return ip, true
			}
		}
	}
	return netip.Addr{}, false
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
