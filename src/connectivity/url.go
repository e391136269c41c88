// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package connectivity

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the scheme of a [URL].
type Protocol int

// Supported protocols.
const (
	ProtocolUnknown Protocol = iota
	ProtocolHTTP
	ProtocolHTTPS
)

const (
	prefixHTTP  = "http://"
	prefixHTTPS = "https://"

	defaultHTTPPort  = 80
	defaultHTTPSPort = 443

	// hostDelimiters end the authority part of a URL.
	hostDelimiters = " /#?"
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolHTTPS:
		return "https"
	default:
		return "unknown"
	}
}

// URL is a parsed absolute http(s) URL. The zero value is unparsed and
// reports [ProtocolUnknown].
type URL struct {
	protocol Protocol
	host     string
	port     int
	path     string
}

// ParseURL parses s. On failure it returns the zero URL and an error
// wrapping [ErrInvalidURL].
//
// The authority ends at the first space, '/', '#' or '?'. Everything from
// there on is the path, which always starts with '/'. ParseURL does no
// percent-decoding and no network access.
func ParseURL(s string) (URL, error) {
	var (
		protocol Protocol
		port     int
		rest     string
	)
	switch {
	case strings.HasPrefix(s, prefixHTTP):
		protocol, port, rest = ProtocolHTTP, defaultHTTPPort, s[len(prefixHTTP):]
	case strings.HasPrefix(s, prefixHTTPS):
		protocol, port, rest = ProtocolHTTPS, defaultHTTPSPort, s[len(prefixHTTPS):]
	default:
		return URL{}, fmt.Errorf("%w: %q: unsupported scheme", ErrInvalidURL, s)
	}

	end := strings.IndexAny(rest, hostDelimiters)
	if end < 0 {
		end = len(rest)
	}
	authority, path := rest[:end], rest[end:]

	parts := strings.Split(authority, ":")
	if len(parts) > 2 {
		return URL{}, fmt.Errorf("%w: %q: too many ':' in host", ErrInvalidURL, s)
	}
	if parts[0] == "" {
		return URL{}, fmt.Errorf("%w: %q: empty host", ErrInvalidURL, s)
	}
	if len(parts) == 2 {
		p, err := strconv.Atoi(parts[1])
		if err != nil || p < 0 || p > 65535 {
			return URL{}, fmt.Errorf("%w: %q: bad port %q", ErrInvalidURL, s, parts[1])
		}
		port = p
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return URL{protocol: protocol, host: parts[0], port: port, path: path}, nil
}

// MustParseURL is like [ParseURL] but panics on error. Use it for
// constants.
func MustParseURL(s string) URL {
	u, err := ParseURL(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Protocol returns the scheme, or [ProtocolUnknown] for an unparsed URL.
func (u URL) Protocol() Protocol { return u.protocol }

// Host returns the host as written, which may be a literal address.
func (u URL) Host() string { return u.host }

// Port returns the explicit port or the scheme default.
func (u URL) Port() int { return u.port }

// Path returns the path, query and fragment.
func (u URL) Path() string { return u.path }

// IsValid reports whether u came from a successful parse.
func (u URL) IsValid() bool { return u.protocol != ProtocolUnknown }

// String formats u with an explicit port, so parsing the result gives
// back the same fields.
func (u URL) String() string {
	if !u.IsValid() {
		return ""
	}
	return fmt.Sprintf("%s://%s:%d%s", u.protocol, u.host, u.port, u.path)
}
