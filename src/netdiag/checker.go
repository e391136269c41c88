// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package netdiag

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/connectivity"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Checker runs connectivity diagnostics on its own event loop and blocks
// until each one finishes. It is safe for concurrent use; diagnostics
// started concurrently run side by side on the loop.
type Checker struct {
	logger            *zap.Logger
	trialURL          string
	remoteIPs         []netip.Addr
	remoteURLs        []string
	dnsTestServers    []string
	retryUntilSuccess bool
	componentOpts     []connectivity.Option

	mu     sync.RWMutex
	conn   *connectivity.StaticConnection
	closed bool

	loop   *eventloop.Loop
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// New starts a [Checker]. Call [Checker.Close] to stop its loop.
//
//	// Any interface, system resolvers:
//	c, err := netdiag.New()
//
//	// Pinned to an interface:
//	c, err := netdiag.New(
//	    netdiag.WithConnection("wlan0", []string{"192.0.2.53"}, false),
//	    netdiag.WithRetryUntilSuccess(true),
//	)
func New(opts ...Option) (*Checker, error) {
	c := &Checker{
		logger:   zap.NewNop(),
		trialURL: connectivity.DefaultTrialURL,
		conn:     connectivity.NewStaticConnection("", nil, false),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	loop, err := eventloop.New(eventloop.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.loop = loop

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
			c.runErr = err
		}
	}()
	return c, nil
}

// Close stops the loop. Diagnostics in flight return [ErrClosed].
func (c *Checker) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return multierr.Combine(c.runErr, c.loop.Close())
}

// SetConnection replaces the connection used by later diagnostics.
// Diagnostics in flight keep the connection they started with.
func (c *Checker) SetConnection(iface string, dnsServers []string, ipv6 bool) {
	conn := connectivity.NewStaticConnection(iface, dnsServers, ipv6)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("connection_updated", zap.String("interface", iface), zap.Strings("dns_servers", dnsServers))
}

// Connection returns the connection the next diagnostic will use.
func (c *Checker) Connection() connectivity.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Trial runs a captive portal trial against rawURL, or the configured
// trial URL when rawURL is empty.
func (c *Checker) Trial(ctx context.Context, rawURL string) (report.Record, error) {
	if rawURL == "" {
		rawURL = c.trialURL
	}
	conn := c.Connection()
	begin := time.Now()

	res, err := await(ctx, c, func(done func(connectivity.TrialResult)) (func(), error) {
		t := connectivity.NewTrial(conn, c.loop, done, c.componentOpts...)
		if err := t.Start(rawURL, 0); err != nil {
			return nil, err
		}
		return t.Stop, nil
	})
	if err != nil {
		return report.Record{}, err
	}

	rec := c.record(report.KindTrial, conn, rawURL, res.String(), res.Success(), begin)
	c.logger.Info("trial_complete", zap.String("url", rawURL), zap.Stringer("result", res))
	return rec, nil
}

// Health runs one connection health check. Addresses learned from the
// configured remote URLs join the pool before the run starts.
func (c *Checker) Health(ctx context.Context) (report.Record, error) {
	conn := c.Connection()
	begin := time.Now()

	var pool int
	res, err := await(ctx, c, func(done func(connectivity.HealthResult)) (func(), error) {
		var h *connectivity.HealthChecker
		h = connectivity.NewHealthChecker(conn, c.loop, c.remoteIPs, func(r connectivity.HealthResult) {
			pool = len(h.RemoteIPs())
			done(r)
		}, c.componentOpts...)
		for _, u := range c.remoteURLs {
			if err := h.AddRemoteURL(u); err != nil {
				c.logger.Warn("health_remote_url_rejected", zap.String("url", u), zap.Error(err))
			}
		}
		h.StartAfterLookups()
		return func() {
			h.StopLookups()
			h.Stop()
		}, nil
	})
	if err != nil {
		return report.Record{}, err
	}

	target := fmt.Sprintf("%d remote addresses", pool)
	return c.record(report.KindHealth, conn, target, res.String(), res == connectivity.HealthSuccess, begin), nil
}

// DNSTest checks that servers resolve the test hostname. Without servers
// it tests the configured DNS test servers, or else the connection's.
func (c *Checker) DNSTest(ctx context.Context, servers ...string) (report.Record, error) {
	conn := c.Connection()
	if len(servers) == 0 {
		servers = c.dnsTestServers
	}
	if len(servers) == 0 {
		servers = conn.DNSServers()
	}
	if len(servers) == 0 {
		return report.Record{}, ErrNoDNSServers
	}
	begin := time.Now()

	res, err := await(ctx, c, func(done func(connectivity.DNSTestStatus)) (func(), error) {
		t := connectivity.NewDNSServerTester(conn, c.loop, servers, c.retryUntilSuccess, done, c.componentOpts...)
		t.Start()
		return t.Stop, nil
	})
	if err != nil {
		return report.Record{}, err
	}

	target := strings.Join(servers, ",")
	return c.record(report.KindDNSTest, conn, target, res.String(), res == connectivity.DNSTestSuccess, begin), nil
}

func (c *Checker) record(kind report.Kind, conn connectivity.Connection, target, result string, success bool, begin time.Time) report.Record {
	return report.Record{
		Time:      begin,
		Kind:      kind,
		Interface: conn.InterfaceName(),
		Target:    target,
		Result:    result,
		Success:   success,
		Duration:  time.Since(begin),
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// await runs start on the loop and waits for it to call done. When ctx
// ends first, the stop function returned by start runs on the loop.
func await[T any](ctx context.Context, c *Checker, start func(done func(T)) (stop func(), err error)) (T, error) {
	var zero T

	out := make(chan outcome[T], 2)
	stopc := make(chan func(), 1)

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return zero, ErrClosed
	}
	c.loop.PostTask(func() {
		var stop func()
		defer func() {
			if r := recover(); r != nil {
				out <- outcome[T]{err: fmt.Errorf("%w: %v", ErrInternalPanic, r)}
			}
			stopc <- stop
		}()

		fired := false
		var err error
		stop, err = start(func(v T) {
			if fired {
				return
			}
			fired = true
			out <- outcome[T]{value: v}
		})
		if err != nil {
			out <- outcome[T]{err: err}
		}
	})
	c.mu.RUnlock()

	select {
	case o := <-out:
		return o.value, o.err
	case <-ctx.Done():
		c.loop.PostTask(func() {
			if stop := <-stopc; stop != nil {
				stop()
			}
		})
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrClosed
	}
}
