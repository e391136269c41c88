// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"math/rand/v2"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/sockets"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultDNSTimeout           = 5 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultInputTimeout         = 10 * time.Second
	DefaultTrialTimeout         = 10 * time.Second
	DefaultTCPStateUpdateWait   = 5000 * time.Millisecond
	DefaultDNSTestRetryInterval = 60 * time.Second
	DefaultDNSTestHostname      = "www.gstatic.com"
)

// options holds the settings shared by every component. Each
// constructor only reads the fields it needs.
type options struct {
	logger     *zap.Logger
	sockets    sockets.Sockets
	table      sockets.TableReader
	dnsFactory dnsclient.Factory
	rng        *rand.Rand

	dnsTimeout           time.Duration
	connectTimeout       time.Duration
	inputTimeout         time.Duration
	trialTimeout         time.Duration
	tcpStateUpdateWait   time.Duration
	dnsTestRetryInterval time.Duration
	dnsTestHostname      string
}

func newOptions(opts []Option) options {
	o := options{
		logger:               zap.NewNop(),
		sockets:              sockets.System{},
		table:                sockets.ProcReader{},
		dnsFactory:           dnsclient.DefaultFactory,
		dnsTimeout:           DefaultDNSTimeout,
		connectTimeout:       DefaultConnectTimeout,
		inputTimeout:         DefaultInputTimeout,
		trialTimeout:         DefaultTrialTimeout,
		tcpStateUpdateWait:   DefaultTCPStateUpdateWait,
		dnsTestRetryInterval: DefaultDNSTestRetryInterval,
		dnsTestHostname:      DefaultDNSTestHostname,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// Option is a functional option for configuring the diagnostics
// components.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSockets replaces the socket syscall layer.
func WithSockets(s sockets.Sockets) Option {
	return func(o *options) {
		if s != nil {
			o.sockets = s
		}
	}
}

// WithSocketTable replaces the kernel TCP table reader used by the
// [HealthChecker].
func WithSocketTable(t sockets.TableReader) Option {
	return func(o *options) {
		if t != nil {
			o.table = t
		}
	}
}

// WithDNSClientFactory sets how DNS resolvers are built.
// The default is [dnsclient.DefaultFactory].
func WithDNSClientFactory(f dnsclient.Factory) Option {
	return func(o *options) {
		if f != nil {
			o.dnsFactory = f
		}
	}
}

// WithDNSTimeout bounds each DNS lookup. The default is 5 seconds.
func WithDNSTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dnsTimeout = d
		}
	}
}

// WithConnectTimeout bounds the TCP handshake of an [HTTPRequest].
// The default is 10 seconds.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithInputTimeout sets the idle timeout of an [HTTPRequest]. It is
// restarted on every write and every chunk read.
// The default is 10 seconds.
func WithInputTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.inputTimeout = d
		}
	}
}

// WithTrialTimeout bounds a whole [Trial] attempt. The default is 10
// seconds.
func WithTrialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.trialTimeout = d
		}
	}
}

// WithTCPStateUpdateWait sets how long the [HealthChecker] waits after
// sending its probe byte before reading the socket table again.
// The default is 5 seconds.
func WithTCPStateUpdateWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tcpStateUpdateWait = d
		}
	}
}

// WithDNSTestRetryInterval sets the delay between attempts of a
// retrying [DNSServerTester]. The default is 60 seconds.
func WithDNSTestRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dnsTestRetryInterval = d
		}
	}
}

// WithDNSTestHostname sets the name a [DNSServerTester] resolves.
// The default is "www.gstatic.com".
func WithDNSTestHostname(name string) Option {
	return func(o *options) {
		if name != "" {
			o.dnsTestHostname = name
		}
	}
}

// WithRandSource seeds the [HealthChecker]'s remote address selection.
func WithRandSource(src rand.Source) Option {
	return func(o *options) {
		if src != nil {
			o.rng = rand.New(src)
		}
	}
}
