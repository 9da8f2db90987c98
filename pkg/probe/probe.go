// Package probe picks the remote shell transport of a host by checking which
// well known ports accept tcp connections.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
)

const (
	DefaultSecurePort = 22
	DefaultLegacyPort = 23
	DefaultTimeout    = 2 * time.Second
)

// Prober checks the secure port, then the legacy port
type Prober struct {
	SecurePort int
	LegacyPort int
	// Timeout bounds each connection attempt
	Timeout time.Duration
}

// New returns a Prober on the standard ssh and telnet ports
func New() *Prober {
	return &Prober{
		SecurePort: DefaultSecurePort,
		LegacyPort: DefaultLegacyPort,
		Timeout:    DefaultTimeout,
	}
}

// Probe returns TransportSecure when the secure port is open whatever the
// legacy port state, TransportLegacy when only the legacy port is open and
// TransportNone otherwise. Unreachable or unresolvable hosts are TransportNone.
func (p *Prober) Probe(ctx context.Context, host string) types.TransportKind {
	secure := p.PortOpen(ctx, host, p.SecurePort)
	legacy := p.PortOpen(ctx, host, p.LegacyPort)
	gologger.Verbose().Msgf("%s: port %d open=%t, port %d open=%t", host, p.SecurePort, secure, p.LegacyPort, legacy)

	switch {
	case secure:
		return types.TransportSecure
	case legacy:
		return types.TransportLegacy
	default:
		return types.TransportNone
	}
}

// PortOpen reports whether a tcp connection to host:port succeeds in time
func (p *Prober) PortOpen(ctx context.Context, host string, port int) bool {
	if port <= 0 {
		return false
	}
	dialer := &net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		gologger.Debug().Msgf("%s:%d: %v", host, port, err)
		return false
	}
	_ = conn.Close()
	return true
}
