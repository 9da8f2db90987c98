package reachability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
	mapsutil "github.com/projectdiscovery/utils/maps"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 2
)

var errNoSocket = errors.New("no icmp socket available")

// ListenFunc opens an icmp packet connection, icmp.ListenPacket by default
type ListenFunc func(network, address string) (*icmp.PacketConn, error)

// Checker diagnoses hosts with icmp echo requests
type Checker struct {
	// Timeout is the wait for a reply after each request
	Timeout time.Duration
	// Retries is the number of requests sent after the first one
	Retries int

	listen   ListenFunc
	resolver *net.Resolver
}

// New returns a Checker with the default timeout and retries
func New() *Checker {
	return &Checker{
		Timeout:  DefaultTimeout,
		Retries:  DefaultRetries,
		listen:   icmp.ListenPacket,
		resolver: net.DefaultResolver,
	}
}

// pendingEcho is a request waiting for its reply
type pendingEcho struct {
	Seq   int
	Start time.Time
}

// family carries the per address family constants
type family struct {
	privileged   string
	unprivileged string
	address      string
	protocol     int
	request      icmp.Type
	reply        icmp.Type
}

var (
	family4 = family{
		privileged:   "ip4:icmp",
		unprivileged: "udp4",
		address:      "0.0.0.0",
		protocol:     ipv4.ICMPTypeEchoReply.Protocol(),
		request:      ipv4.ICMPTypeEcho,
		reply:        ipv4.ICMPTypeEchoReply,
	}
	family6 = family{
		privileged:   "ip6:ipv6-icmp",
		unprivileged: "udp6",
		address:      "::",
		protocol:     ipv6.ICMPTypeEchoReply.Protocol(),
		request:      ipv6.ICMPTypeEchoRequest,
		reply:        ipv6.ICMPTypeEchoReply,
	}
)

// Check reports whether host answers echo requests. DiagnosisUnknown is
// returned when the check cannot be performed, typically for lack of
// privileges to open an icmp socket.
func (c *Checker) Check(ctx context.Context, host string) types.Diagnosis {
	ip, err := c.resolve(ctx, host)
	if err != nil {
		gologger.Verbose().Msgf("could not resolve %s: %v", host, err)
		return types.DiagnosisUnreachable
	}

	fam := family4
	if ip.To4() == nil {
		fam = family6
	}

	conn, privileged, err := c.open(fam)
	if err != nil {
		gologger.Verbose().Msgf("could not check reachability of %s: %v", host, err)
		return types.DiagnosisUnknown
	}
	defer func() {
		_ = conn.Close()
	}()

	alive, err := c.ping(ctx, conn, fam, ip, privileged)
	if err != nil {
		gologger.Verbose().Msgf("could not check reachability of %s: %v", host, err)
		return types.DiagnosisUnknown
	}
	if alive {
		return types.DiagnosisAlive
	}
	return types.DiagnosisUnreachable
}

func (c *Checker) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := c.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		if addr.IP.To4() != nil {
			return addr.IP, nil
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no address for %s", host)
	}
	return addrs[0].IP, nil
}

// open prefers a raw socket and falls back to the unprivileged datagram
// socket some systems allow for echo requests
func (c *Checker) open(fam family) (*icmp.PacketConn, bool, error) {
	conn, err := c.listen(fam.privileged, fam.address)
	if err == nil {
		return conn, true, nil
	}
	conn, fallbackErr := c.listen(fam.unprivileged, fam.address)
	if fallbackErr == nil {
		return conn, false, nil
	}
	return nil, false, fmt.Errorf("%w: %v, %v", errNoSocket, err, fallbackErr)
}

// ping sends up to Retries+1 echo requests and reports whether any of them
// was answered
func (c *Checker) ping(ctx context.Context, conn *icmp.PacketConn, fam family, ip net.IP, privileged bool) (bool, error) {
	pending := mapsutil.NewSyncLockMap[int, *pendingEcho]()
	id := os.Getpid() & 0xffff

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !privileged {
		dst = &net.UDPAddr{IP: ip}
	}

	for attempt := 0; attempt <= c.Retries; attempt++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		seq := attempt + 1
		packet, err := echoRequest(fam, id, seq)
		if err != nil {
			return false, err
		}
		_ = pending.Set(seq, &pendingEcho{Seq: seq, Start: time.Now()})
		if _, err := conn.WriteTo(packet, dst); err != nil {
			return false, fmt.Errorf("could not send echo request: %w", err)
		}

		deadline := time.Now().Add(c.Timeout)
		for time.Now().Before(deadline) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if err := conn.SetReadDeadline(deadline); err != nil {
				return false, err
			}
			reply := make([]byte, 1500)
			n, peer, err := conn.ReadFrom(reply)
			if err != nil {
				break
			}
			if !sameHost(peer, ip) {
				continue
			}
			// the kernel rewrites the identifier of unprivileged echo requests
			replySeq, ok := parseReply(fam, reply[:n], id, !privileged)
			if !ok {
				continue
			}
			if echo, exists := pending.Get(replySeq); exists {
				gologger.Verbose().Msgf("%s answered echo %d in %s", ip, echo.Seq, time.Since(echo.Start))
				return true, nil
			}
		}
	}
	return false, nil
}

func echoRequest(fam family, id, seq int) ([]byte, error) {
	msg := &icmp.Message{
		Type: fam.request,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: []byte("fleetx-reachability"),
		},
	}
	return msg.Marshal(nil)
}

// parseReply returns the sequence number of an echo reply addressed to id
func parseReply(fam family, packet []byte, id int, anyID bool) (int, bool) {
	msg, err := icmp.ParseMessage(fam.protocol, packet)
	if err != nil || msg.Type != fam.reply {
		return 0, false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return 0, false
	}
	if !anyID && echo.ID != id {
		return 0, false
	}
	return echo.Seq, true
}

func sameHost(peer net.Addr, ip net.IP) bool {
	switch addr := peer.(type) {
	case *net.IPAddr:
		return addr.IP.Equal(ip)
	case *net.UDPAddr:
		return addr.IP.Equal(ip)
	default:
		return false
	}
}
