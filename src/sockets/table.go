// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package sockets

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Default kernel table locations.
const (
	DefaultTCPv4Path = "/proc/net/tcp"
	DefaultTCPv6Path = "/proc/net/tcp6"
)

// ConnectionState is the kernel TCP state of a socket, numbered as in
// include/net/tcp_states.h.
type ConnectionState uint8

// TCP connection states.
const (
	StateUnknown ConnectionState = iota
	StateEstablished
	StateSynSent
	StateSynRecv
	StateFinWait1
	StateFinWait2
	StateTimeWait
	StateClose
	StateCloseWait
	StateLastAck
	StateListen
	StateClosing
)

var stateNames = [...]string{
	StateUnknown:     "UNKNOWN",
	StateEstablished: "ESTABLISHED",
	StateSynSent:     "SYN_SENT",
	StateSynRecv:     "SYN_RECV",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateTimeWait:    "TIME_WAIT",
	StateClose:       "CLOSE",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
	StateListen:      "LISTEN",
	StateClosing:     "CLOSING",
}

func (s ConnectionState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// TimerState is the "tr" column of the kernel table.
type TimerState uint8

// Kernel timer states.
const (
	TimerNone TimerState = iota
	TimerRetransmit
	TimerKeepAlive
	TimerTimeWait
	TimerZeroWindowProbe
)

func (t TimerState) String() string {
	switch t {
	case TimerNone:
		return "none"
	case TimerRetransmit:
		return "retransmit"
	case TimerKeepAlive:
		return "keepalive"
	case TimerTimeWait:
		return "time_wait"
	case TimerZeroWindowProbe:
		return "zero_window_probe"
	default:
		return "unknown"
	}
}

// Info is a point-in-time snapshot of one TCP socket.
type Info struct {
	Local         netip.AddrPort
	Remote        netip.AddrPort
	State         ConnectionState
	TransmitQueue uint64
	ReceiveQueue  uint64
	Timer         TimerState
}

// RetransmitPending reports whether the kernel is waiting to retransmit
// unacknowledged data on this socket.
func (i Info) RetransmitPending() bool {
	return i.Timer == TimerRetransmit
}

// TableReader enumerates the local TCP sockets.
type TableReader interface {
	LoadTCPSocketInfo() ([]Info, error)
}

// ProcReader reads the kernel TCP tables from procfs.
//
// Missing files are skipped, so a host without IPv6 still reports its
// IPv4 sockets. The read only fails when no table could be read at all.
type ProcReader struct {
	// Paths lists the tables to read. Empty means the IPv4 and IPv6
	// defaults.
	Paths []string
}

var _ TableReader = ProcReader{}

// LoadTCPSocketInfo returns a fresh snapshot of every TCP socket.
func (r ProcReader) LoadTCPSocketInfo() ([]Info, error) {
	paths := r.Paths
	if len(paths) == 0 {
		paths = []string{DefaultTCPv4Path, DefaultTCPv6Path}
	}

	var (
		infos []Info
		errs  error
		read  int
	)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		entries, err := ParseTCPTable(f)
		_ = f.Close()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		read++
		infos = append(infos, entries...)
	}
	if read == 0 {
		return nil, fmt.Errorf("%w: %v", ErrTableUnavailable, errs)
	}
	return infos, nil
}

// ParseTCPTable parses the contents of /proc/net/tcp or /proc/net/tcp6.
// The header line is skipped. A malformed entry fails the whole parse.
func ParseTCPTable(r io.Reader) ([]Info, error) {
	var infos []Info

	sc := bufio.NewScanner(r)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		info, err := parseEntry(line)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

// parseEntry decodes one row:
//
//	sl  local_address rem_address   st tx_queue:rx_queue tr:tm->when ...
func parseEntry(line string) (Info, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return Info{}, fmt.Errorf("%w: %q", ErrMalformedEntry, line)
	}

	local, err := parseEndpoint(fields[1])
	if err != nil {
		return Info{}, err
	}
	remote, err := parseEndpoint(fields[2])
	if err != nil {
		return Info{}, err
	}

	st, err := strconv.ParseUint(fields[3], 16, 8)
	if err != nil {
		return Info{}, fmt.Errorf("%w: state %q", ErrMalformedEntry, fields[3])
	}
	state := ConnectionState(st)
	if state > StateClosing {
		state = StateUnknown
	}

	txs, rxs, ok := strings.Cut(fields[4], ":")
	if !ok {
		return Info{}, fmt.Errorf("%w: queues %q", ErrMalformedEntry, fields[4])
	}
	tx, err := strconv.ParseUint(txs, 16, 64)
	if err != nil {
		return Info{}, fmt.Errorf("%w: tx_queue %q", ErrMalformedEntry, txs)
	}
	rx, err := strconv.ParseUint(rxs, 16, 64)
	if err != nil {
		return Info{}, fmt.Errorf("%w: rx_queue %q", ErrMalformedEntry, rxs)
	}

	trs, _, ok := strings.Cut(fields[5], ":")
	if !ok {
		return Info{}, fmt.Errorf("%w: timer %q", ErrMalformedEntry, fields[5])
	}
	tr, err := strconv.ParseUint(trs, 16, 8)
	if err != nil {
		return Info{}, fmt.Errorf("%w: timer %q", ErrMalformedEntry, trs)
	}

	return Info{
		Local:         local,
		Remote:        remote,
		State:         state,
		TransmitQueue: tx,
		ReceiveQueue:  rx,
		Timer:         TimerState(tr),
	}, nil
}

// parseEndpoint decodes "ADDR:PORT" where ADDR is the in-kernel address
// printed as 32-bit words in host byte order and PORT is big-endian hex.
func parseEndpoint(s string) (netip.AddrPort, error) {
	addrHex, portHex, ok := strings.Cut(s, ":")
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: endpoint %q", ErrMalformedEntry, s)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: port %q", ErrMalformedEntry, portHex)
	}

	raw, err := hex.DecodeString(addrHex)
	if err != nil || (len(raw) != 4 && len(raw) != 16) {
		return netip.AddrPort{}, fmt.Errorf("%w: address %q", ErrMalformedEntry, addrHex)
	}
	// Each word was printed as a number; undo that to recover the
	// bytes as they sit in memory.
	for i := 0; i < len(raw); i += 4 {
		w := binary.BigEndian.Uint32(raw[i:])
		binary.NativeEndian.PutUint32(raw[i:], w)
	}

	var addr netip.Addr
	if len(raw) == 4 {
		addr = netip.AddrFrom4([4]byte(raw))
	} else {
		addr = netip.AddrFrom16([16]byte(raw)).Unmap()
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

// Find returns the entry whose local endpoint is local.
func Find(infos []Info, local netip.AddrPort) (Info, bool) {
	for _, info := range infos {
		if info.Local == local {
			return info, true
		}
	}
	return Info{}, false
}
