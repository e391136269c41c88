// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const httpRequestTemplate = "GET %s HTTP/1.1\r\nHost: %s:%d\r\nConnection: Close\r\n\r\n"

type requestState int

const (
	requestIdle requestState = iota
	requestResolving
	requestConnecting
	requestWriting
	requestReading
)

// HTTPRequest sends one minimal HTTP/1.1 GET over a raw socket and
// streams back the raw response bytes. It does not parse the response.
//
// All methods must be called on the dispatcher goroutine.
type HTTPRequest struct {
	conn       Connection
	dispatcher eventloop.Dispatcher
	opts       options
	logger     *zap.Logger

	dns       dnsclient.Resolver
	connector *AsyncConnection

	state   requestState
	host    string
	port    int
	request []byte

	response []byte

	fd           int
	writeHandler eventloop.Handler
	readHandler  eventloop.Handler

	timeout       *eventloop.Task
	timeoutResult HTTPResult

	// Set while Start runs. A result reached before Start returns is
	// handed back by Start instead of onDone.
	starting    bool
	startResult HTTPResult

	onBytes func(response []byte)
	onDone  func(result HTTPResult, response []byte)
}

// NewHTTPRequest returns an idle request bound to conn.
func NewHTTPRequest(conn Connection, d eventloop.Dispatcher, opts ...Option) *HTTPRequest {
	o := newOptions(opts)
	r := &HTTPRequest{
		conn:       conn,
		dispatcher: d,
		opts:       o,
		logger:     o.logger.Named("http_request"),
		fd:         -1,
	}

	family := dnsclient.IPv4
	if conn.IsIPv6() {
		family = dnsclient.IPv6
	}
	r.dns = o.dnsFactory(dnsclient.Config{
		Family:    family,
		Interface: conn.InterfaceName(),
		Servers:   conn.DNSServers(),
		Timeout:   o.dnsTimeout,
		Logger:    o.logger,
	}, d, r.onDNSResolve)
	r.connector = NewAsyncConnection(conn.InterfaceName(), d, o.sockets, r.onConnectComplete, o.logger)
	return r
}

// Start fetches u. onBytes is called with the whole response received so
// far after every read. onDone is called once when the request ends,
// after the request has been stopped.
//
// When Start returns anything other than [HTTPInProgress] the request
// has already ended and onDone will not be called.
func (r *HTTPRequest) Start(u URL, onBytes func(response []byte), onDone func(result HTTPResult, response []byte)) HTTPResult {
	if r.state != requestIdle {
		r.Stop()
	}
	if !u.IsValid() {
		return HTTPUnknown
	}

	r.request = fmt.Appendf(nil, httpRequestTemplate, u.Path(), u.Host(), u.Port())
	r.host = u.Host()
	r.port = u.Port()
	r.onBytes = onBytes
	r.onDone = onDone
	r.conn.RequestRouting()

	r.starting = true
	r.startResult = HTTPInProgress
	result := r.begin()
	r.starting = false
	if result == HTTPInProgress {
		result = r.startResult
	}
	return result
}

func (r *HTTPRequest) begin() HTTPResult {
	if addr, err := netip.ParseAddr(r.host); err == nil {
		r.state = requestConnecting
		if err := r.connectServer(addr); err != nil {
			r.logger.Debug("connect_start_failed", zap.String("host", r.host), zap.Error(err))
			r.Stop()
			return HTTPConnectionFailure
		}
		return HTTPInProgress
	}

	r.state = requestResolving
	if err := r.dns.Start(r.host); err != nil {
		r.logger.Debug("dns_start_failed", zap.String("host", r.host), zap.Error(err))
		r.Stop()
		return HTTPDNSFailure
	}
	return HTTPInProgress
}

// Stop abandons the request. onDone is not called. Safe to call at any
// time.
func (r *HTTPRequest) Stop() {
	if r.state == requestIdle {
		return
	}
	r.timeout.Cancel()
	r.timeout = nil
	r.timeoutResult = HTTPUnknown

	r.conn.ReleaseRouting()
	r.dns.Stop()
	r.connector.Stop()

	if r.writeHandler != nil {
		r.writeHandler.Stop()
		r.writeHandler = nil
	}
	if r.readHandler != nil {
		r.readHandler.Stop()
		r.readHandler = nil
	}
	if r.fd >= 0 {
		_ = r.opts.sockets.Close(r.fd)
		r.fd = -1
	}

	r.state = requestIdle
	r.request = nil
	r.response = nil
	r.host = ""
	r.port = 0
	r.onBytes = nil
	r.onDone = nil
}

// IsRunning reports whether a request is in flight.
func (r *HTTPRequest) IsRunning() bool {
	return r.state != requestIdle
}

// Response returns a copy of the bytes received so far.
func (r *HTTPRequest) Response() []byte {
	return append([]byte(nil), r.response...)
}

// BytesReceived returns the number of response bytes received so far.
func (r *HTTPRequest) BytesReceived() int {
	return len(r.response)
}

func (r *HTTPRequest) connectServer(addr netip.Addr) error {
	if err := r.connector.Start(addr, r.port); err != nil {
		return err
	}
	// Still pending unless the connect completed inline.
	if r.state == requestConnecting {
		r.startIdleTimeout(r.opts.connectTimeout, HTTPConnectionTimeout)
	}
	return nil
}

func (r *HTTPRequest) onDNSResolve(ip netip.Addr, err error) {
	if r.state != requestResolving {
		return
	}
	if err != nil {
		r.logger.Debug("dns_failed", zap.String("host", r.host), zap.Error(err))
		if errors.Is(err, dnsclient.ErrTimedOut) {
			r.sendStatus(HTTPDNSTimeout)
		} else {
			r.sendStatus(HTTPDNSFailure)
		}
		return
	}

	r.state = requestConnecting
	if err := r.connectServer(ip); err != nil {
		r.logger.Debug("connect_start_failed", zap.Stringer("addr", ip), zap.Error(err))
		r.sendStatus(HTTPConnectionFailure)
	}
}

func (r *HTTPRequest) onConnectComplete(success bool, fd int) {
	if !success {
		r.logger.Debug("connect_failed", zap.String("host", r.host), zap.Error(r.connector.Err()))
		r.sendStatus(HTTPConnectionFailure)
		return
	}

	r.fd = fd
	r.state = requestWriting
	h, err := r.dispatcher.CreateReadyHandler(fd, eventloop.ModeWrite, r.writeToServer)
	if err != nil {
		r.logger.Debug("write_handler_failed", zap.Error(err))
		r.sendStatus(HTTPRequestFailure)
		return
	}
	r.writeHandler = h
	r.startIdleTimeout(r.opts.inputTimeout, HTTPRequestTimeout)
}

func (r *HTTPRequest) writeToServer(fd int) {
	n, err := r.opts.sockets.Send(fd, r.request, unix.MSG_NOSIGNAL)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		r.logger.Debug("send_failed", zap.Error(err))
		r.sendStatus(HTTPRequestFailure)
		return
	}

	r.request = r.request[n:]
	if len(r.request) > 0 {
		r.startIdleTimeout(r.opts.inputTimeout, HTTPRequestTimeout)
		return
	}

	r.writeHandler.Stop()
	r.writeHandler = nil
	r.state = requestReading
	h, err := r.dispatcher.CreateInputHandler(fd, r.readFromServer, r.onReadError)
	if err != nil {
		r.logger.Debug("read_handler_failed", zap.Error(err))
		r.sendStatus(HTTPResponseFailure)
		return
	}
	r.readHandler = h
	r.startIdleTimeout(r.opts.inputTimeout, HTTPResponseTimeout)
}

func (r *HTTPRequest) readFromServer(data []byte) {
	if len(data) == 0 {
		r.sendStatus(HTTPSuccess)
		return
	}
	r.response = append(r.response, data...)
	r.startIdleTimeout(r.opts.inputTimeout, HTTPResponseTimeout)

	if cb := r.onBytes; cb != nil {
		cb(r.response)
	}
}

func (r *HTTPRequest) onReadError(err error) {
	r.logger.Debug("read_failed", zap.Error(err))
	r.sendStatus(HTTPResponseFailure)
}

// startIdleTimeout replaces any pending timeout.
func (r *HTTPRequest) startIdleTimeout(d time.Duration, result HTTPResult) {
	r.timeout.Cancel()
	r.timeoutResult = result
	r.timeout = r.dispatcher.PostDelayedTask(r.onTimeout, d)
}

func (r *HTTPRequest) onTimeout() {
	r.timeout = nil
	r.sendStatus(r.timeoutResult)
}

// sendStatus stops the request and then reports result. Nothing on r is
// touched after the callback, which may restart or drop the request.
func (r *HTTPRequest) sendStatus(result HTTPResult) {
	cb := r.onDone
	response := r.response
	r.logger.Debug("http_request_done", zap.Stringer("result", result), zap.Int("bytes", len(response)))

	r.Stop()
	if r.starting {
		r.startResult = result
		return
	}
	if cb != nil {
		cb(result, response)
	}
}
