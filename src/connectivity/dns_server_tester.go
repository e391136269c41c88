// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"net/netip"
	"slices"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"go.uber.org/zap"
)

// DNSServerTester checks that a given set of DNS servers can resolve a
// well-known name.
//
// In one-shot mode the callback fires once per Start. In retry mode a
// failed lookup is retried after the retry interval and the callback only
// fires on success, or when the lookup cannot be launched at all.
//
// All methods must be called on the dispatcher goroutine.
type DNSServerTester struct {
	dispatcher eventloop.Dispatcher
	opts       options
	logger     *zap.Logger
	retry      bool
	callback   func(DNSTestStatus)
	servers    []string

	client       dnsclient.Resolver
	attemptTask  *eventloop.Task
	lastDuration time.Duration
	started      time.Time
}

// NewDNSServerTester returns an idle tester that queries only servers,
// through conn's interface.
func NewDNSServerTester(conn Connection, d eventloop.Dispatcher, servers []string, retryUntilSuccess bool, callback func(DNSTestStatus), opts ...Option) *DNSServerTester {
	o := newOptions(opts)
	t := &DNSServerTester{
		dispatcher: d,
		opts:       o,
		logger:     o.logger.Named("dns_server_tester"),
		retry:      retryUntilSuccess,
		callback:   callback,
		servers:    slices.Clone(servers),
	}
	family := dnsclient.IPv4
	if conn.IsIPv6() {
		family = dnsclient.IPv6
	}
	t.client = o.dnsFactory(dnsclient.Config{
		Family:    family,
		Interface: conn.InterfaceName(),
		Servers:   t.servers,
		Timeout:   o.dnsTimeout,
		Logger:    o.logger,
	}, d, t.onDNSResult)
	return t
}

// Start cancels any attempt in flight and schedules a new one
// immediately.
func (t *DNSServerTester) Start() {
	t.Stop()
	t.startAttempt(0)
}

// Stop cancels the scheduled retry and the lookup in flight. The
// callback does not fire.
func (t *DNSServerTester) Stop() {
	t.attemptTask.Cancel()
	t.attemptTask = nil
	t.client.Stop()
}

// Servers returns the servers under test.
func (t *DNSServerTester) Servers() []string {
	return slices.Clone(t.servers)
}

// LastDuration returns how long the last finished lookup took.
func (t *DNSServerTester) LastDuration() time.Duration {
	return t.lastDuration
}

func (t *DNSServerTester) startAttempt(delay time.Duration) {
	t.attemptTask = t.dispatcher.PostDelayedTask(t.runAttempt, delay)
}

func (t *DNSServerTester) runAttempt() {
	t.attemptTask = nil
	t.started = time.Now()
	if len(t.servers) == 0 {
		// The client would fall back to the system resolvers.
		t.logger.Warn("dns_test_launch_failed", zap.Error(dnsclient.ErrNoServers))
		t.report(DNSTestFailure)
		return
	}
	if err := t.client.Start(t.opts.dnsTestHostname); err != nil {
		// Not a resolution failure: retrying would not help.
		t.logger.Warn("dns_test_launch_failed", zap.Strings("servers", t.servers), zap.Error(err))
		t.report(DNSTestFailure)
	}
}

func (t *DNSServerTester) onDNSResult(ip netip.Addr, err error) {
	t.lastDuration = time.Since(t.started)
	if err == nil {
		t.logger.Debug("dns_test_resolved", zap.Stringer("addr", ip), zap.Duration("took", t.lastDuration))
		t.report(DNSTestSuccess)
		return
	}

	t.logger.Debug("dns_attempt_failed", zap.Strings("servers", t.servers), zap.Error(err))
	if t.retry {
		t.startAttempt(t.opts.dnsTestRetryInterval)
		return
	}
	t.report(DNSTestFailure)
}

func (t *DNSServerTester) report(status DNSTestStatus) {
	cb := t.callback
	t.Stop()
	if cb != nil {
		cb(status)
	}
}
