// Package spawn opens interactive sessions to hosts.
//
// Two client modes are supported. The native mode speaks ssh through
// golang.org/x/crypto/ssh and telnet through github.com/ziutek/telnet. The
// exec mode runs the system ssh or telnet client on a pseudo-terminal, the
// way an operator would, and leaves the password prompt to the login step.
//
// On the legacy transport the username prompt is answered here, before the
// session is handed to authentication.
package spawn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/session"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
)

var (
	// ErrSpawn is returned when no client or connection could be created
	ErrSpawn = errors.New("could not spawn session")
	// ErrAuthentication is returned when the ssh handshake rejected the credentials
	ErrAuthentication = errors.New("ssh authentication failed")
)

// Mode selects how sessions are opened
type Mode string

const (
	// ModeNative uses in-process ssh and telnet clients
	ModeNative Mode = "native"
	// ModeExec runs the system clients on a pseudo-terminal
	ModeExec Mode = "exec"
)

// HostKeyPolicy decides what happens to ssh host keys missing from known_hosts
type HostKeyPolicy string

const (
	// HostKeyWarn accepts unknown hosts with a warning and rejects changed keys
	HostKeyWarn HostKeyPolicy = "warn"
	// HostKeyStrict rejects unknown hosts and changed keys
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyInsecure accepts every key
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// Options configure a Spawner
type Options struct {
	Username string
	// Password authenticates the native ssh handshake
	Password string

	Mode           Mode
	HostKeyPolicy  HostKeyPolicy
	KnownHostsFile string

	SecurePort int
	LegacyPort int
	// DialTimeout bounds connection setup
	DialTimeout time.Duration
	// PromptTimeout bounds the wait for the legacy username prompt
	PromptTimeout time.Duration

	// SSHBinary and TelnetBinary are the clients run in exec mode
	SSHBinary    string
	TelnetBinary string

	Entry *catalog.Entry
}

// Spawner opens sessions
type Spawner struct {
	options Options
	dialer  func(ctx context.Context, network, address string) (net.Conn, error)
}

// New validates options and returns a Spawner
func New(options Options) (*Spawner, error) {
	if options.Entry == nil {
		return nil, fmt.Errorf("no catalog entry")
	}
	switch options.Mode {
	case "":
		options.Mode = ModeNative
	case ModeNative, ModeExec:
	default:
		return nil, fmt.Errorf("unknown client mode %q", options.Mode)
	}
	switch options.HostKeyPolicy {
	case "":
		options.HostKeyPolicy = HostKeyWarn
	case HostKeyWarn, HostKeyStrict:
	case HostKeyInsecure:
		gologger.Warning().Msgf("ssh host key verification is disabled")
	default:
		return nil, fmt.Errorf("unknown host key policy %q", options.HostKeyPolicy)
	}
	if options.SSHBinary == "" {
		options.SSHBinary = "ssh"
	}
	if options.TelnetBinary == "" {
		options.TelnetBinary = "telnet"
	}

	dialer := &net.Dialer{Timeout: options.DialTimeout}
	return &Spawner{options: options, dialer: dialer.DialContext}, nil
}

// Spawn opens a session to host over transport. The session is in the
// Connecting state, ready for login.
func (sp *Spawner) Spawn(ctx context.Context, host string, transport types.TransportKind) (*session.Session, error) {
	var (
		conn session.Conn
		err  error
	)
	switch {
	case transport == types.TransportSecure && sp.options.Mode == ModeExec:
		conn, err = sp.execSecure(host)
	case transport == types.TransportSecure:
		conn, err = sp.dialSecure(ctx, host)
	case transport == types.TransportLegacy && sp.options.Mode == ModeExec:
		conn, err = sp.execLegacy(host)
	case transport == types.TransportLegacy:
		conn, err = sp.dialLegacy(ctx, host)
	default:
		return nil, fmt.Errorf("%w: no transport for %s", ErrSpawn, host)
	}
	if err != nil {
		return nil, err
	}

	s := session.New(host, transport, conn)
	gologger.Verbose().Label(s.ID).Msgf("spawned %s session to %s (%s)", transport, host, sp.options.Mode)

	if transport == types.TransportLegacy {
		if err := sp.sendUsername(ctx, s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// sendUsername answers the username prompt of a legacy session. Lines that
// only ask for a password are left untouched for the login step.
func (sp *Spawner) sendUsername(ctx context.Context, s *session.Session) error {
	patterns := session.PatternSet{
		Credential: sp.options.Entry.UsernamePrompt,
		Ready:      sp.options.Entry.CredentialPrompt,
	}
	match := s.Await(ctx, patterns, sp.options.PromptTimeout)
	switch match.Event {
	case session.EventCredentialPrompt:
		return s.SendLine(sp.options.Username, sp.options.Entry.LineEnding)
	case session.EventReadyPrompt:
		// password prompt came first
		s.Unread(match.Before + match.Prompt)
		return nil
	case session.EventEndOfStream:
		return fmt.Errorf("%w: %s closed the connection before login", ErrSpawn, s.Host)
	default:
		gologger.Verbose().Label(s.ID).Msgf("no username prompt from %s", s.Host)
		return nil
	}
}

func address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
