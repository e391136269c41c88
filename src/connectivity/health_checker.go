// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"fmt"
	"net/netip"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/H0llyW00dzZ/connectivity-checker/src/sockets"
	"go.uber.org/zap"
)

// Health checker limits. The first counter to reach its limit decides
// the result.
const (
	MaxFailedConnectionAttempts = 2
	MinCongestedQueueAttempts   = 2
	MinSuccessfulSendAttempts   = 1
	MaxSentDataPollingAttempts  = 2
	NumDNSQueries               = 5
	RemotePort                  = 80
)

// DefaultRemoteIPs seed every [HealthChecker] pool.
var DefaultRemoteIPs = []netip.Addr{
	netip.MustParseAddr("74.125.224.47"),
	netip.MustParseAddr("74.125.224.79"),
	netip.MustParseAddr("74.125.224.127"),
	netip.MustParseAddr("74.125.224.111"),
	netip.MustParseAddr("74.125.224.143"),
}

// HealthChecker decides whether an established connection can still move
// data. It repeatedly connects to a random remote address on port 80,
// sends one byte and watches the kernel socket table to see whether the
// byte leaves the transmit queue.
//
// All methods must be called on the dispatcher goroutine.
type HealthChecker struct {
	conn       Connection
	dispatcher eventloop.Dispatcher
	opts       options
	logger     *zap.Logger
	callback   func(HealthResult)

	connector  *AsyncConnection
	pool       *IPPool
	dnsClients []dnsclient.Resolver

	inProgress  bool
	startOnDone bool
	fd          int
	verifyTask  *eventloop.Task
	startTask   *eventloop.Task

	failures       int
	congested      int
	successes      int
	pollAttempts   int
	oldTxQueueSize uint64
}

// NewHealthChecker returns an idle checker over conn whose pool holds
// [DefaultRemoteIPs] plus remoteIPs.
func NewHealthChecker(conn Connection, d eventloop.Dispatcher, remoteIPs []netip.Addr, callback func(HealthResult), opts ...Option) *HealthChecker {
	o := newOptions(opts)
	h := &HealthChecker{
		conn:       conn,
		dispatcher: d,
		opts:       o,
		logger:     o.logger.Named("health_checker"),
		callback:   callback,
		pool:       NewIPPool(remoteIPs...),
		fd:         -1,
	}
	for _, ip := range DefaultRemoteIPs {
		h.pool.Add(ip)
	}
	h.connector = h.newConnector()
	return h
}

// Start begins a run. It does nothing while a run is in progress. The
// callback fires once per run, never before Start returns.
func (h *HealthChecker) Start() {
	if h.inProgress {
		h.logger.Debug("health_check_already_running")
		return
	}
	if h.pool.Len() == 0 {
		h.logger.Debug("health_check_no_remote_ips")
		cb := h.callback
		h.startTask.Cancel()
		h.startTask = h.dispatcher.PostTask(func() {
			if cb != nil {
				cb(HealthUnknown)
			}
		})
		return
	}

	h.reset()
	h.inProgress = true
	h.startTask = h.dispatcher.PostTask(func() {
		h.startTask = nil
		h.nextSample()
	})
}

// Stop abandons the run and resets all counters. The callback does not
// fire.
func (h *HealthChecker) Stop() {
	h.startTask.Cancel()
	h.startTask = nil
	h.connector.Stop()
	h.verifyTask.Cancel()
	h.verifyTask = nil
	h.closeSocket()
	h.inProgress = false
	h.reset()
}

// InProgress reports whether a run is active.
func (h *HealthChecker) InProgress() bool {
	return h.inProgress
}

// AddRemoteIP adds ip to the pool.
func (h *HealthChecker) AddRemoteIP(ip netip.Addr) {
	h.pool.Add(ip)
}

// RemoteIPs returns the current pool.
func (h *HealthChecker) RemoteIPs() []netip.Addr {
	return h.pool.Addrs()
}

// AddRemoteURL resolves the host of rawURL several times in parallel and
// adds every answer to the pool. Only port 80 URLs are accepted.
func (h *HealthChecker) AddRemoteURL(rawURL string) error {
	h.collectDNSClients()

	u, err := ParseURL(rawURL)
	if err != nil {
		return err
	}
	if u.Port() != RemotePort {
		return fmt.Errorf("%w: %d", ErrUnsupportedPort, u.Port())
	}

	family := dnsclient.IPv4
	if h.conn.IsIPv6() {
		family = dnsclient.IPv6
	}
	cfg := dnsclient.Config{
		Family:    family,
		Interface: h.conn.InterfaceName(),
		Servers:   h.conn.DNSServers(),
		Timeout:   h.opts.dnsTimeout,
		Logger:    h.opts.logger,
	}
	for range NumDNSQueries {
		client := h.opts.dnsFactory(cfg, h.dispatcher, h.onDNSResult)
		if err := client.Start(u.Host()); err != nil {
			h.logger.Debug("dns_client_start_failed", zap.String("host", u.Host()), zap.Error(err))
			continue
		}
		h.dnsClients = append(h.dnsClients, client)
	}
	return nil
}

// StartAfterLookups calls Start once every lookup queued by AddRemoteURL
// has finished, so their answers join the run.
func (h *HealthChecker) StartAfterLookups() {
	h.collectDNSClients()
	if len(h.dnsClients) == 0 {
		h.Start()
		return
	}
	h.startOnDone = true
}

// StopLookups cancels the lookups queued by AddRemoteURL and a pending
// StartAfterLookups.
func (h *HealthChecker) StopLookups() {
	h.startOnDone = false
	for _, c := range h.dnsClients {
		c.Stop()
	}
	h.dnsClients = nil
}

// SetConnection rebinds the checker to conn. A run in progress restarts
// from scratch.
func (h *HealthChecker) SetConnection(conn Connection) {
	restart := h.inProgress
	h.Stop()
	h.StopLookups()

	h.conn = conn
	h.connector = h.newConnector()
	if restart {
		h.Start()
	}
}

func (h *HealthChecker) newConnector() *AsyncConnection {
	return NewAsyncConnection(h.conn.InterfaceName(), h.dispatcher, h.opts.sockets, h.onConnectComplete, h.opts.logger)
}

func (h *HealthChecker) reset() {
	h.failures = 0
	h.congested = 0
	h.successes = 0
	h.pollAttempts = 0
	h.oldTxQueueSize = 0
}

// nextSample reports the result if a counter hit its limit, otherwise
// connects to a random address. A synchronous connect failure loops
// until the failure limit is hit.
func (h *HealthChecker) nextSample() {
	for {
		switch {
		case h.failures >= MaxFailedConnectionAttempts:
			h.report(HealthConnectionFailure)
			return
		case h.congested >= MinCongestedQueueAttempts:
			h.report(HealthCongestedTxQueue)
			return
		case h.successes >= MinSuccessfulSendAttempts:
			h.report(HealthSuccess)
			return
		}

		ip, _ := h.pool.Random(h.opts.rng)
		h.logger.Debug("health_check_connect", zap.Stringer("addr", ip))
		err := h.connector.Start(ip, RemotePort)
		if err == nil {
			return
		}
		h.logger.Debug("health_check_connect_failed", zap.Stringer("addr", ip), zap.Error(err))
		h.failures++
	}
}

func (h *HealthChecker) onConnectComplete(success bool, fd int) {
	if !success {
		h.logger.Debug("health_check_connect_failed", zap.Error(h.connector.Err()))
		h.failures++
		h.nextSample()
		return
	}

	h.fd = fd
	info, ok := h.socketInfo()
	if !ok || info.State != sockets.StateEstablished {
		h.logger.Debug("health_check_not_established", zap.Bool("found", ok), zap.Stringer("state", info.State))
		h.failures++
		h.closeSocket()
		h.nextSample()
		return
	}

	h.oldTxQueueSize = info.TransmitQueue
	h.pollAttempts = 0
	if _, err := h.opts.sockets.Send(h.fd, []byte{0}, 0); err != nil {
		h.logger.Debug("health_check_send_failed", zap.Error(err))
		h.failures++
		h.closeSocket()
		h.nextSample()
		return
	}
	h.verifyTask = h.dispatcher.PostDelayedTask(h.verifySentData, h.opts.tcpStateUpdateWait)
}

// verifySentData classifies the probe socket after the send.
func (h *HealthChecker) verifySentData() {
	h.verifyTask = nil

	info, ok := h.socketInfo()
	switch {
	case !ok || (info.State != sockets.StateEstablished && info.State != sockets.StateCloseWait):
		// CloseWait is fine: the peer got the byte and hung up.
		h.logger.Debug("health_check_bad_state", zap.Bool("found", ok), zap.Stringer("state", info.State))
		h.failures++
	case info.TransmitQueue > h.oldTxQueueSize && info.RetransmitPending():
		if h.pollAttempts < MaxSentDataPollingAttempts {
			h.pollAttempts++
			h.logger.Debug("health_check_poll_again", zap.Int("attempt", h.pollAttempts))
			h.verifyTask = h.dispatcher.PostDelayedTask(h.verifySentData, h.opts.tcpStateUpdateWait)
			return
		}
		h.logger.Debug("health_check_tx_congested", zap.Uint64("tx_queue", info.TransmitQueue))
		h.congested++
	default:
		h.successes++
	}

	h.closeSocket()
	h.nextSample()
}

// socketInfo finds the probe socket in the kernel table by its local
// address.
func (h *HealthChecker) socketInfo() (sockets.Info, bool) {
	sa, err := h.opts.sockets.GetSockName(h.fd)
	if err != nil {
		h.logger.Debug("health_check_getsockname_failed", zap.Error(err))
		return sockets.Info{}, false
	}
	local, ok := sockets.AddrPort(sa)
	if !ok {
		return sockets.Info{}, false
	}
	infos, err := h.opts.table.LoadTCPSocketInfo()
	if err != nil {
		h.logger.Debug("health_check_socket_table_failed", zap.Error(err))
		return sockets.Info{}, false
	}
	return sockets.Find(infos, local)
}

func (h *HealthChecker) closeSocket() {
	if h.fd >= 0 {
		_ = h.opts.sockets.Close(h.fd)
		h.fd = -1
	}
}

func (h *HealthChecker) report(result HealthResult) {
	h.logger.Info("health_check_result", zap.Stringer("result", result),
		zap.Int("failures", h.failures),
		zap.Int("congested", h.congested),
		zap.Int("successes", h.successes))

	cb := h.callback
	h.Stop()
	if cb != nil {
		cb(result)
	}
}

func (h *HealthChecker) onDNSResult(ip netip.Addr, err error) {
	if err != nil {
		h.logger.Debug("health_check_dns_failed", zap.Error(err))
	} else if h.pool.Add(ip) {
		h.logger.Debug("health_check_remote_ip_added", zap.Stringer("addr", ip))
	}

	if !h.startOnDone {
		return
	}
	h.collectDNSClients()
	if len(h.dnsClients) == 0 {
		h.startOnDone = false
		h.Start()
	}
}

// collectDNSClients drops finished lookups.
func (h *HealthChecker) collectDNSClients() {
	kept := h.dnsClients[:0]
	for _, c := range h.dnsClients {
		if c.IsActive() {
			kept = append(kept, c)
		}
	}
	clear(h.dnsClients[len(kept):])
	h.dnsClients = kept
}

// pendingDNSClients returns the number of lookups kept by the checker.
func (h *HealthChecker) pendingDNSClients() int {
	return len(h.dnsClients)
}
