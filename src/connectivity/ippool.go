// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package connectivity

import (
	"math/rand/v2"
	"net/netip"
	"slices"
)

// IPPool is an insertion-ordered set of addresses.
type IPPool struct {
	addrs []netip.Addr
	index map[netip.Addr]struct{}
}

// NewIPPool returns a pool holding addrs, minus duplicates.
func NewIPPool(addrs ...netip.Addr) *IPPool {
	p := &IPPool{index: make(map[netip.Addr]struct{})}
	for _, a := range addrs {
		p.Add(a)
	}
	return p
}

// Add inserts addr and reports whether it was new. Invalid addresses are
// ignored.
func (p *IPPool) Add(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	if _, ok := p.index[addr]; ok {
		return false
	}
	p.index[addr] = struct{}{}
	p.addrs = append(p.addrs, addr)
	return true
}

// Len returns the number of addresses.
func (p *IPPool) Len() int { return len(p.addrs) }

// Addrs returns a copy of the addresses in insertion order.
func (p *IPPool) Addrs() []netip.Addr { return slices.Clone(p.addrs) }

// Random returns an address chosen uniformly with rng.
func (p *IPPool) Random(rng *rand.Rand) (netip.Addr, bool) {
	if len(p.addrs) == 0 {
		return netip.Addr{}, false
	}
	return p.addrs[rng.IntN(len(p.addrs))], true
}
