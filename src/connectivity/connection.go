// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package connectivity

import (
	"slices"
	"sync"
)

// Connection is the network connection the diagnostics run over.
type Connection interface {
	// InterfaceName is the device probes are bound to. Empty means any.
	InterfaceName() string
	// DNSServers lists the connection's resolvers.
	DNSServers() []string
	// RequestRouting reserves routing priority for diagnostic traffic.
	// Each call must be paired with ReleaseRouting.
	RequestRouting()
	ReleaseRouting()
	IsIPv6() bool
}

// StaticConnection is a [Connection] with fixed properties. Routing
// reservations are only counted.
type StaticConnection struct {
	mu      sync.Mutex
	iface   string
	servers []string
	ipv6    bool
	routing int
}

var _ Connection = (*StaticConnection)(nil)

// NewStaticConnection returns a [Connection] bound to iface (may be
// empty) using servers for DNS.
func NewStaticConnection(iface string, servers []string, ipv6 bool) *StaticConnection {
	return &StaticConnection{
		iface:   iface,
		servers: slices.Clone(servers),
		ipv6:    ipv6,
	}
}

func (c *StaticConnection) InterfaceName() string { return c.iface }

func (c *StaticConnection) DNSServers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.servers)
}

// SetDNSServers replaces the resolver list. Components pick it up the
// next time they build a resolver.
func (c *StaticConnection) SetDNSServers(servers []string) {
	c.mu.Lock()
	c.servers = slices.Clone(servers)
	c.mu.Unlock()
}

func (c *StaticConnection) RequestRouting() {
	c.mu.Lock()
	c.routing++
	c.mu.Unlock()
}

func (c *StaticConnection) ReleaseRouting() {
	c.mu.Lock()
	if c.routing > 0 {
		c.routing--
	}
	c.mu.Unlock()
}

// RoutingRequests returns the number of outstanding reservations.
func (c *StaticConnection) RoutingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routing
}

func (c *StaticConnection) IsIPv6() bool { return c.ipv6 }
