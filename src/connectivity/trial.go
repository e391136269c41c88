// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

//go:build linux

package connectivity

import (
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/eventloop"
	"go.uber.org/zap"
)

// DefaultTrialURL answers every request with an empty 204. Anything else
// means something on the path rewrote the response.
const DefaultTrialURL = "http://www.gstatic.com/generate_204"

// expectedResponse is matched against the start of the response. '?'
// matches any single byte.
const expectedResponse = "HTTP/?.? 204"

// Trial is a repeatable captive-portal probe: it fetches a URL that must
// answer 204 and reports which phase failed when it does not.
//
// All methods must be called on the dispatcher goroutine. The callback
// runs on it too, after the trial has been cleaned up, so it may call
// Start or Retry again.
type Trial struct {
	dispatcher eventloop.Dispatcher
	opts       options
	logger     *zap.Logger
	callback   func(TrialResult)

	request *HTTPRequest
	url     URL

	startTask   *eventloop.Task
	timeoutTask *eventloop.Task
	active      bool
}

// NewTrial returns an idle trial over conn.
func NewTrial(conn Connection, d eventloop.Dispatcher, callback func(TrialResult), opts ...Option) *Trial {
	o := newOptions(opts)
	return &Trial{
		dispatcher: d,
		opts:       o,
		logger:     o.logger.Named("trial"),
		callback:   callback,
		request:    NewHTTPRequest(conn, d, opts...),
	}
}

// Start probes rawURL after delay, cancelling any attempt in progress.
// Only a malformed URL fails here; everything else is reported through
// the callback.
func (t *Trial) Start(rawURL string, delay time.Duration) error {
	u, err := ParseURL(rawURL)
	if err != nil {
		t.logger.Warn("trial_bad_url", zap.String("url", rawURL), zap.Error(err))
		return err
	}
	t.cleanup()
	t.url = u
	t.startAfter(delay)
	return nil
}

// Retry probes the URL of the last successful Start again after delay.
func (t *Trial) Retry(delay time.Duration) error {
	if !t.url.IsValid() {
		return ErrNoTrialURL
	}
	t.cleanup()
	t.startAfter(delay)
	return nil
}

// Stop cancels a scheduled or running probe. The callback does not fire.
func (t *Trial) Stop() {
	t.cleanup()
}

// IsActive reports whether a probe is awaiting its result.
func (t *Trial) IsActive() bool {
	return t.active
}

// URL returns the URL probed by Retry.
func (t *Trial) URL() URL {
	return t.url
}

func (t *Trial) startAfter(delay time.Duration) {
	t.startTask.Cancel()
	t.startTask = t.dispatcher.PostDelayedTask(t.run, delay)
}

func (t *Trial) run() {
	t.startTask = nil
	t.logger.Debug("trial_start", zap.Stringer("url", t.url))

	result := t.request.Start(t.url, t.onBytesReceived, t.onRequestDone)
	if result != HTTPInProgress {
		t.complete(TrialResultFor(result))
		return
	}
	t.active = true
	t.timeoutTask = t.dispatcher.PostDelayedTask(t.onTimeout, t.opts.trialTimeout)
}

// onBytesReceived decides as soon as the response prefix can match or
// can no longer match the expected status line.
func (t *Trial) onBytesReceived(response []byte) {
	n := min(len(response), len(expectedResponse))
	if !matchPrefix(response[:n], expectedResponse[:n]) {
		t.complete(TrialResult{PhaseContent, StatusFailure})
		return
	}
	if n == len(expectedResponse) {
		t.complete(TrialResult{PhaseContent, StatusSuccess})
	}
}

func (t *Trial) onRequestDone(result HTTPResult, _ []byte) {
	t.complete(TrialResultFor(result))
}

func (t *Trial) onTimeout() {
	t.timeoutTask = nil
	if t.request.BytesReceived() > 0 {
		t.complete(TrialResult{PhaseContent, StatusTimeout})
		return
	}
	t.complete(TrialResult{PhaseUnknown, StatusTimeout})
}

func (t *Trial) complete(result TrialResult) {
	cb := t.callback
	t.cleanup()
	t.logger.Debug("trial_complete", zap.Stringer("result", result))
	if cb != nil {
		cb(result)
	}
}

func (t *Trial) cleanup() {
	t.startTask.Cancel()
	t.startTask = nil
	t.timeoutTask.Cancel()
	t.timeoutTask = nil
	t.request.Stop()
	t.active = false
}

// matchPrefix compares data against pattern of the same length, where
// '?' in pattern matches any byte.
func matchPrefix(data []byte, pattern string) bool {
	if len(data) != len(pattern) {
		return false
	}
	for i := range data {
		if pattern[i] != '?' && pattern[i] != data[i] {
			return false
		}
	}
	return true
}
