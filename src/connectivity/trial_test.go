// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/dnsclient"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop/eventlooptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trialHarness struct {
	t       *testing.T
	loop    eventloop.Dispatcher
	conn    *StaticConnection
	dns     *fakeDNS
	trial   *Trial
	results chan TrialResult
}

func newTrialHarness(t *testing.T, opts ...Option) *trialHarness {
	t.Helper()
	h := &trialHarness{
		t:       t,
		loop:    eventlooptest.Start(t),
		conn:    NewStaticConnection("", []string{"192.0.2.53"}, false),
		dns:     &fakeDNS{},
		results: make(chan TrialResult, 4),
	}
	opts = append([]Option{WithDNSClientFactory(h.dns.factory)}, opts...)
	h.trial = NewTrial(h.conn, h.loop, func(r TrialResult) {
		assert.False(t, h.trial.IsActive())
		h.results <- r
	}, opts...)
	return h
}

func (h *trialHarness) start(rawURL string, delay time.Duration) error {
	h.t.Helper()
	var err error
	eventlooptest.Do(h.t, h.loop, func() { err = h.trial.Start(rawURL, delay) })
	return err
}

func serve(t *testing.T, resp string) netip.AddrPort {
	return startTCPServer(t, respond(resp))
}

func TestTrialContentSuccess(t *testing.T) {
	target := serve(t, "HTTP/1.1 204 No Content\r\n\r\n")
	h := newTrialHarness(t)

	require.NoError(t, h.start(urlFor(target, "/generate_204"), 0))
	got := eventlooptest.Receive(t, h.results)
	assert.Equal(t, TrialResult{PhaseContent, StatusSuccess}, got)
	assert.True(t, got.Success())
	eventlooptest.Never(t, h.results, 100*time.Millisecond)
	assert.Zero(t, h.conn.RoutingRequests())
}

func TestTrialContentFailure(t *testing.T) {
	target := serve(t, "HTTP/1.0 200 OK\r\n\r\n<html>login</html>")
	h := newTrialHarness(t)

	require.NoError(t, h.start(urlFor(target, "/generate_204"), 0))
	assert.Equal(t, TrialResult{PhaseContent, StatusFailure}, eventlooptest.Receive(t, h.results))
	eventlooptest.Never(t, h.results, 100*time.Millisecond)
}

func TestTrialShortResponseIsContentFailure(t *testing.T) {
	// Closes after a partial but matching prefix.
	target := serve(t, "HTTP/1.1 20")
	h := newTrialHarness(t)

	require.NoError(t, h.start(urlFor(target, "/"), 0))
	assert.Equal(t, TrialResult{PhaseContent, StatusFailure}, eventlooptest.Receive(t, h.results))
}

func TestTrialDNSFailure(t *testing.T) {
	h := newTrialHarness(t)
	h.dns.answer = func(string) (netip.Addr, error) { return netip.Addr{}, dnsclient.ErrQueryFailed }

	require.NoError(t, h.start("http://portal.example/generate_204", 0))
	assert.Equal(t, TrialResult{PhaseDNS, StatusFailure}, eventlooptest.Receive(t, h.results))
}

func TestTrialSynchronousRequestFailure(t *testing.T) {
	h := newTrialHarness(t)
	h.dns.startErr = dnsclient.ErrNoServers

	require.NoError(t, h.start("http://portal.example/generate_204", 0))
	assert.Equal(t, TrialResult{PhaseDNS, StatusFailure}, eventlooptest.Receive(t, h.results))
}

func TestTrialFailureDuringStartReportsOnce(t *testing.T) {
	s := newFakeSockets()
	s.nextFD = 9999
	h := newTrialHarness(t, WithSockets(s), WithTrialTimeout(100*time.Millisecond))

	require.NoError(t, h.start("http://192.0.2.80/generate_204", 0))
	assert.Equal(t, TrialResult{PhaseHTTP, StatusFailure}, eventlooptest.Receive(t, h.results))
	eventlooptest.Never(t, h.results, 300*time.Millisecond)

	eventlooptest.Do(t, h.loop, func() {
		assert.False(t, h.trial.IsActive())
	})
}

func TestTrialTimeoutWithoutBytes(t *testing.T) {
	target := startTCPServer(t, hang(t, ""))
	h := newTrialHarness(t, WithTrialTimeout(100*time.Millisecond))

	require.NoError(t, h.start(urlFor(target, "/"), 0))
	assert.Equal(t, TrialResult{PhaseUnknown, StatusTimeout}, eventlooptest.Receive(t, h.results))
}

func TestTrialTimeoutWithBytes(t *testing.T) {
	target := startTCPServer(t, hang(t, "HTTP/1."))
	h := newTrialHarness(t, WithTrialTimeout(200*time.Millisecond))

	require.NoError(t, h.start(urlFor(target, "/"), 0))
	assert.Equal(t, TrialResult{PhaseContent, StatusTimeout}, eventlooptest.Receive(t, h.results))
}

func TestTrialStartDelay(t *testing.T) {
	target := serve(t, "HTTP/1.1 204 No Content\r\n\r\n")
	h := newTrialHarness(t)

	begin := time.Now()
	require.NoError(t, h.start(urlFor(target, "/"), 100*time.Millisecond))

	var active bool
	eventlooptest.Do(t, h.loop, func() { active = h.trial.IsActive() })
	assert.False(t, active, "not active until the delay expires")

	assert.Equal(t, TrialResult{PhaseContent, StatusSuccess}, eventlooptest.Receive(t, h.results))
	assert.GreaterOrEqual(t, time.Since(begin), 100*time.Millisecond)
}

func TestTrialRetry(t *testing.T) {
	target := serve(t, "HTTP/1.1 204 No Content\r\n\r\n")
	h := newTrialHarness(t)

	var err error
	eventlooptest.Do(t, h.loop, func() { err = h.trial.Retry(0) })
	assert.ErrorIs(t, err, ErrNoTrialURL)

	require.NoError(t, h.start(urlFor(target, "/"), 0))
	assert.Equal(t, TrialResult{PhaseContent, StatusSuccess}, eventlooptest.Receive(t, h.results))

	eventlooptest.Do(t, h.loop, func() { err = h.trial.Retry(0) })
	require.NoError(t, err)
	assert.Equal(t, TrialResult{PhaseContent, StatusSuccess}, eventlooptest.Receive(t, h.results))
}

func TestTrialBadURL(t *testing.T) {
	h := newTrialHarness(t)
	assert.ErrorIs(t, h.start("gopher://example.com", 0), ErrInvalidURL)

	var err error
	eventlooptest.Do(t, h.loop, func() { err = h.trial.Retry(0) })
	assert.ErrorIs(t, err, ErrNoTrialURL)
}

func TestTrialStopSuppressesCallback(t *testing.T) {
	target := startTCPServer(t, hang(t, ""))
	h := newTrialHarness(t, WithTrialTimeout(100*time.Millisecond))

	require.NoError(t, h.start(urlFor(target, "/"), 0))
	eventlooptest.Do(t, h.loop, func() {
		assert.True(t, h.trial.IsActive())
		h.trial.Stop()
		h.trial.Stop()
		assert.False(t, h.trial.IsActive())
	})
	eventlooptest.Never(t, h.results, 300*time.Millisecond)
	assert.Zero(t, h.conn.RoutingRequests())
}

func TestTrialStopCancelsScheduledStart(t *testing.T) {
	accepted := make(chan struct{}, 1)
	target := startTCPServer(t, func(net.Conn) { accepted <- struct{}{} })
	h := newTrialHarness(t)

	require.NoError(t, h.start(urlFor(target, "/"), 50*time.Millisecond))
	eventlooptest.Do(t, h.loop, h.trial.Stop)
	eventlooptest.Never(t, accepted, 200*time.Millisecond)
	eventlooptest.Never(t, h.results, 10*time.Millisecond)
}

func TestTrialStopBeforeStart(t *testing.T) {
	h := newTrialHarness(t)
	eventlooptest.Do(t, h.loop, func() {
		h.trial.Stop()
		h.trial.Stop()
	})
	eventlooptest.Never(t, h.results, 10*time.Millisecond)
}

func TestTrialRestartReplacesAttempt(t *testing.T) {
	slow := startTCPServer(t, hang(t, ""))
	fast := serve(t, "HTTP/1.1 204 No Content\r\n\r\n")
	h := newTrialHarness(t, WithTrialTimeout(time.Second))

	require.NoError(t, h.start(urlFor(slow, "/"), 0))
	require.NoError(t, h.start(urlFor(fast, "/"), 0))
	assert.Equal(t, TrialResult{PhaseContent, StatusSuccess}, eventlooptest.Receive(t, h.results))
	eventlooptest.Never(t, h.results, 100*time.Millisecond)
}

func TestTrialPrefixMatching(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     *TrialResult
	}{
		{"too short to decide", "HTTP/1", nil},
		{"matching prefix", "HTTP/1.1 20", nil},
		{"exact", "HTTP/1.1 204", &TrialResult{PhaseContent, StatusSuccess}},
		{"full 204", "HTTP/1.1 204 No Content", &TrialResult{PhaseContent, StatusSuccess}},
		{"http 2.0", "HTTP/2.0 204", &TrialResult{PhaseContent, StatusSuccess}},
		{"200", "HTTP/1.0 200 OK", &TrialResult{PhaseContent, StatusFailure}},
		{"early mismatch", "<htm", &TrialResult{PhaseContent, StatusFailure}},
		{"lowercase", "http/1.1 204", &TrialResult{PhaseContent, StatusFailure}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTrialHarness(t)
			eventlooptest.Do(t, h.loop, func() {
				h.trial.onBytesReceived([]byte(tt.response))
			})
			if tt.want == nil {
				eventlooptest.Never(t, h.results, 10*time.Millisecond)
				return
			}
			assert.Equal(t, *tt.want, eventlooptest.Receive(t, h.results))
		})
	}
}

func TestTrialResultFor(t *testing.T) {
	tests := []struct {
		in   HTTPResult
		want TrialResult
	}{
		{HTTPSuccess, TrialResult{PhaseContent, StatusFailure}},
		{HTTPDNSFailure, TrialResult{PhaseDNS, StatusFailure}},
		{HTTPDNSTimeout, TrialResult{PhaseDNS, StatusTimeout}},
		{HTTPConnectionFailure, TrialResult{PhaseConnection, StatusFailure}},
		{HTTPConnectionTimeout, TrialResult{PhaseConnection, StatusTimeout}},
		{HTTPRequestFailure, TrialResult{PhaseHTTP, StatusFailure}},
		{HTTPResponseFailure, TrialResult{PhaseHTTP, StatusFailure}},
		{HTTPRequestTimeout, TrialResult{PhaseHTTP, StatusTimeout}},
		{HTTPResponseTimeout, TrialResult{PhaseHTTP, StatusTimeout}},
		{HTTPUnknown, TrialResult{PhaseUnknown, StatusFailure}},
		{HTTPInProgress, TrialResult{PhaseUnknown, StatusFailure}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrialResultFor(tt.in), tt.in.String())
	}
	assert.Equal(t, "Content/Success", TrialResult{PhaseContent, StatusSuccess}.String())
}
