package reachability

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

func echoReply(t *testing.T, id, seq int) []byte {
	t.Helper()

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("fleetx-reachability")},
	}
	packet, err := msg.Marshal(nil)
	require.NoError(t, err)
	return packet
}

func TestParseReply(t *testing.T) {
	seq, ok := parseReply(family4, echoReply(t, 42, 3), 42, false)
	require.True(t, ok)
	assert.Equal(t, 3, seq)

	_, ok = parseReply(family4, echoReply(t, 7, 3), 42, false)
	assert.False(t, ok)

	seq, ok = parseReply(family4, echoReply(t, 7, 2), 42, true)
	require.True(t, ok)
	assert.Equal(t, 2, seq)

	request, err := echoRequest(family4, 42, 1)
	require.NoError(t, err)
	_, ok = parseReply(family4, request, 42, false)
	assert.False(t, ok)

	_, ok = parseReply(family4, []byte{0x01}, 42, false)
	assert.False(t, ok)
}

func TestSameHost(t *testing.T) {
	ip := net.ParseIP("10.0.0.1")

	assert.True(t, sameHost(&net.IPAddr{IP: net.ParseIP("10.0.0.1")}, ip))
	assert.True(t, sameHost(&net.UDPAddr{IP: net.ParseIP("10.0.0.1")}, ip))
	assert.False(t, sameHost(&net.IPAddr{IP: net.ParseIP("10.0.0.2")}, ip))
	assert.False(t, sameHost(&net.TCPAddr{IP: ip}, ip))
}

func TestCheckWithoutSocket(t *testing.T) {
	var networks []string
	c := New()
	c.listen = func(network, address string) (*icmp.PacketConn, error) {
		networks = append(networks, network)
		return nil, errors.New("operation not permitted")
	}

	assert.Equal(t, types.DiagnosisUnknown, c.Check(context.Background(), "127.0.0.1"))
	assert.Equal(t, []string{"ip4:icmp", "udp4"}, networks)

	networks = nil
	assert.Equal(t, types.DiagnosisUnknown, c.Check(context.Background(), "::1"))
	assert.Equal(t, []string{"ip6:ipv6-icmp", "udp6"}, networks)
}
