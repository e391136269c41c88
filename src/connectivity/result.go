// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package connectivity

import "fmt"

// HTTPResult is the outcome of an [HTTPRequest].
type HTTPResult int

// HTTP request results.
const (
	HTTPUnknown HTTPResult = iota
	HTTPInProgress
	HTTPDNSFailure
	HTTPDNSTimeout
	HTTPConnectionFailure
	HTTPConnectionTimeout
	HTTPRequestFailure
	HTTPRequestTimeout
	HTTPResponseFailure
	HTTPResponseTimeout
	HTTPSuccess
)

func (r HTTPResult) String() string {
	switch r {
	case HTTPInProgress:
		return "in-progress"
	case HTTPDNSFailure:
		return "dns-failure"
	case HTTPDNSTimeout:
		return "dns-timeout"
	case HTTPConnectionFailure:
		return "connection-failure"
	case HTTPConnectionTimeout:
		return "connection-timeout"
	case HTTPRequestFailure:
		return "request-failure"
	case HTTPRequestTimeout:
		return "request-timeout"
	case HTTPResponseFailure:
		return "response-failure"
	case HTTPResponseTimeout:
		return "response-timeout"
	case HTTPSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Phase is the stage of a probe that produced a [TrialResult].
type Phase int

// Probe phases.
const (
	PhaseUnknown Phase = iota
	PhaseConnection
	PhaseDNS
	PhaseHTTP
	PhaseContent
)

func (p Phase) String() string {
	switch p {
	case PhaseConnection:
		return "Connection"
	case PhaseDNS:
		return "DNS"
	case PhaseHTTP:
		return "HTTP"
	case PhaseContent:
		return "Content"
	default:
		return "Unknown"
	}
}

// Status is the verdict within a [Phase].
type Status int

// Probe statuses.
const (
	StatusFailure Status = iota
	StatusSuccess
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusTimeout:
		return "Timeout"
	default:
		return "Failure"
	}
}

// TrialResult is the (phase, status) pair reported by a [Trial].
type TrialResult struct {
	Phase  Phase
	Status Status
}

func (r TrialResult) String() string {
	return fmt.Sprintf("%s/%s", r.Phase, r.Status)
}

// Success reports whether the probe saw the expected response.
func (r TrialResult) Success() bool {
	return r.Phase == PhaseContent && r.Status == StatusSuccess
}

// TrialResultFor maps a finished [HTTPRequest] result onto a
// [TrialResult].
func TrialResultFor(r HTTPResult) TrialResult {
	switch r {
	case HTTPSuccess:
		// A complete response that never matched the expected status
		// line.
		return TrialResult{PhaseContent, StatusFailure}
	case HTTPDNSFailure:
		return TrialResult{PhaseDNS, StatusFailure}
	case HTTPDNSTimeout:
		return TrialResult{PhaseDNS, StatusTimeout}
	case HTTPConnectionFailure:
		return TrialResult{PhaseConnection, StatusFailure}
	case HTTPConnectionTimeout:
		return TrialResult{PhaseConnection, StatusTimeout}
	case HTTPRequestFailure, HTTPResponseFailure:
		return TrialResult{PhaseHTTP, StatusFailure}
	case HTTPRequestTimeout, HTTPResponseTimeout:
		return TrialResult{PhaseHTTP, StatusTimeout}
	default:
		return TrialResult{PhaseUnknown, StatusFailure}
	}
}

// HealthResult is the verdict of a [HealthChecker] run.
type HealthResult int

// Health check results.
const (
	HealthUnknown HealthResult = iota
	HealthConnectionFailure
	HealthCongestedTxQueue
	HealthSuccess
)

func (r HealthResult) String() string {
	switch r {
	case HealthConnectionFailure:
		return "ConnectionFailure"
	case HealthCongestedTxQueue:
		return "CongestedTxQueue"
	case HealthSuccess:
		return "Success"
	default:
		return "Unknown"
	}
}

// DNSTestStatus is the verdict of a [DNSServerTester] attempt.
type DNSTestStatus int

// DNS test statuses.
const (
	DNSTestFailure DNSTestStatus = iota
	DNSTestSuccess
)

func (s DNSTestStatus) String() string {
	if s == DNSTestSuccess {
		return "Success"
	}
	return "Failure"
}
