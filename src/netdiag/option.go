// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package netdiag

import (
	"net/netip"
	"slices"

	"github.com/H0llyW00dzZ/connectivity-checker/src/connectivity"
	"go.uber.org/zap"
)

// Option configures a [Checker].
type Option func(*Checker)

// WithLogger sets the logger shared by the checker and every diagnostic.
func WithLogger(l *zap.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConnection sets the connection the diagnostics run over. The
// default is any interface with the system resolvers.
func WithConnection(iface string, dnsServers []string, ipv6 bool) Option {
	return func(c *Checker) {
		c.conn = connectivity.NewStaticConnection(iface, dnsServers, ipv6)
	}
}

// WithTrialURL sets the URL used by [Checker.Trial] when called with an
// empty URL. The default is [connectivity.DefaultTrialURL].
func WithTrialURL(u string) Option {
	return func(c *Checker) {
		c.trialURL = u
	}
}

// WithRemoteIPs adds seed addresses to every health check.
func WithRemoteIPs(ips ...netip.Addr) Option {
	return func(c *Checker) {
		c.remoteIPs = append(c.remoteIPs, ips...)
	}
}

// WithRemoteURLs adds port 80 URLs whose hosts are resolved into the
// health check pool.
func WithRemoteURLs(urls ...string) Option {
	return func(c *Checker) {
		c.remoteURLs = append(c.remoteURLs, urls...)
	}
}

// WithDNSTestServers sets the servers used by [Checker.DNSTest] when
// called without servers. The default is the connection's servers.
func WithDNSTestServers(servers ...string) Option {
	return func(c *Checker) {
		c.dnsTestServers = slices.Clone(servers)
	}
}

// WithRetryUntilSuccess makes [Checker.DNSTest] retry failed lookups
// until one succeeds or the context ends.
func WithRetryUntilSuccess(retry bool) Option {
	return func(c *Checker) {
		c.retryUntilSuccess = retry
	}
}

// WithComponentOptions passes opts to every diagnostic component.
func WithComponentOptions(opts ...connectivity.Option) Option {
	return func(c *Checker) {
		c.componentOpts = append(c.componentOpts, opts...)
	}
}
