// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package sockets

import (
	"encoding/binary"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tcp4Table = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0
   1: 0101A8C0:C350 2FE07D4A:0050 01 00000010:00000002 01:00000014 00000000  1000        0 23456 1 0000000000000000 20 4 30 10 -1
`

const tcp6Table = `  sl  local_address                         remote_address                        st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000000000000000000001000000:0016 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 3456 1 0000000000000000 100 0 0 10 0
   1: 0000000000000000FFFF00000100007F:A000 0000000000000000FFFF00000100007F:1F90 08 00000000:00000000 02:000003E8 00000000  1000        0 4567 1 0000000000000000 20 4 0 10 -1
`

func skipBigEndian(t *testing.T) {
	t.Helper()
	if binary.NativeEndian.Uint16([]byte{1, 0}) != 1 {
		t.Skip("fixtures are little-endian")
	}
}

func TestParseTCPTableIPv4(t *testing.T) {
	skipBigEndian(t)

	infos, err := ParseTCPTable(strings.NewReader(tcp4Table))
	require.NoError(t, err)
	require.Len(t, infos, 2)

	listen := infos[0]
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:8080"), listen.Local)
	assert.Equal(t, StateListen, listen.State)
	assert.Equal(t, TimerNone, listen.Timer)
	assert.False(t, listen.RetransmitPending())

	est := infos[1]
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.1:50000"), est.Local)
	assert.Equal(t, netip.MustParseAddrPort("74.125.224.47:80"), est.Remote)
	assert.Equal(t, StateEstablished, est.State)
	assert.Equal(t, uint64(16), est.TransmitQueue)
	assert.Equal(t, uint64(2), est.ReceiveQueue)
	assert.True(t, est.RetransmitPending())
}

func TestParseTCPTableIPv6(t *testing.T) {
	skipBigEndian(t)

	infos, err := ParseTCPTable(strings.NewReader(tcp6Table))
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, netip.MustParseAddrPort("[::1]:22"), infos[0].Local)
	assert.Equal(t, StateListen, infos[0].State)

	// v4-mapped addresses come back unmapped so they compare equal to
	// what getsockname reports for an AF_INET socket.
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:40960"), infos[1].Local)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:8080"), infos[1].Remote)
	assert.Equal(t, StateCloseWait, infos[1].State)
	assert.Equal(t, TimerKeepAlive, infos[1].Timer)
}

func TestParseTCPTableMalformed(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"too few fields", "0: 0100007F:1F90 00000000:0000 0A"},
		{"bad address", "0: ZZ00007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000"},
		{"bad port", "0: 0100007F:XYZ 00000000:0000 0A 00000000:00000000 00:00000000"},
		{"bad queues", "0: 0100007F:1F90 00000000:0000 0A 00000000 00:00000000"},
		{"bad timer", "0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 QQ:00000000"},
		{"short address", "0: 01007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTCPTable(strings.NewReader("header\n" + tt.row + "\n"))
			assert.ErrorIs(t, err, ErrMalformedEntry)
		})
	}
}

func TestParseTCPTableEmpty(t *testing.T) {
	infos, err := ParseTCPTable(strings.NewReader("  sl  local_address\n"))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestProcReaderSkipsMissingTable(t *testing.T) {
	skipBigEndian(t)

	dir := t.TempDir()
	v4 := filepath.Join(dir, "tcp")
	require.NoError(t, os.WriteFile(v4, []byte(tcp4Table), 0o644))

	r := ProcReader{Paths: []string{v4, filepath.Join(dir, "tcp6")}}
	infos, err := r.LoadTCPSocketInfo()
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestProcReaderNoTables(t *testing.T) {
	dir := t.TempDir()
	r := ProcReader{Paths: []string{filepath.Join(dir, "tcp"), filepath.Join(dir, "tcp6")}}
	_, err := r.LoadTCPSocketInfo()
	assert.ErrorIs(t, err, ErrTableUnavailable)
}

func TestFind(t *testing.T) {
	a := Info{Local: netip.MustParseAddrPort("10.0.0.1:1000"), State: StateEstablished}
	b := Info{Local: netip.MustParseAddrPort("10.0.0.1:1001"), State: StateCloseWait}

	got, ok := Find([]Info{a, b}, b.Local)
	assert.True(t, ok)
	assert.Equal(t, StateCloseWait, got.State)

	_, ok = Find([]Info{a, b}, netip.MustParseAddrPort("10.0.0.2:1000"))
	assert.False(t, ok)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "ESTABLISHED", StateEstablished.String())
	assert.Equal(t, "CLOSE_WAIT", StateCloseWait.String())
	assert.Equal(t, "UNKNOWN", ConnectionState(99).String())
	assert.Equal(t, "retransmit", TimerRetransmit.String())
	assert.Equal(t, "unknown", TimerState(9).String())
}
