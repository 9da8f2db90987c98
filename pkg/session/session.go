// Package session owns the byte stream of one remote interactive session and
// scans it for prompts.
//
// A Session wraps any Conn (an ssh channel, a telnet connection, the master
// side of a pseudo-terminal, or an in-memory script). A reader goroutine pumps
// the Conn into a channel so that Await can bound every wait with a timeout:
//
//	s := session.New(host, types.TransportSecure, conn)
//	defer s.Close()
//
//	match := s.Await(ctx, session.PatternSet{Ready: entry.ReadyPrompt}, 10*time.Second)
//	if match.Event == session.EventTimeout {
//		// device is silent
//	}
package session

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
	"github.com/rs/xid"
)

// Conn is the capability a transport provides: send bytes, receive bytes,
// and signal the end of the stream through a read error.
type Conn interface {
	io.ReadWriteCloser
}

var (
	// ErrUnusable is returned when a Failed or Closed session is reused
	ErrUnusable = errors.New("session is failed or closed")
	// ErrBusy is returned when a second operation is started on a session
	ErrBusy = errors.New("session is busy")
)

const (
	readBufferSize = 4096
	secretMask     = "********"
)

// State is the lifecycle state of a Session
type State int

const (
	StateConnecting State = iota
	StateAwaitingCredentials
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingCredentials:
		return "awaiting-credentials"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one interactive connection to one host
type Session struct {
	ID        string
	Host      string
	Transport types.TransportKind

	conn Conn

	mu      sync.Mutex
	state   State
	secrets []string

	op sync.Mutex

	chunks chan []byte
	done   chan struct{}
	// buf holds normalized text received but not yet consumed by a match
	buf     strings.Builder
	partial string
	eof     bool
	// resync is set when a ready prompt is still owed by the remote end
	resync bool

	closeOnce sync.Once
}

// New starts pumping conn and returns the session in the Connecting state
func New(host string, transport types.TransportKind, conn Conn) *Session {
	s := &Session{
		ID:        xid.New().String(),
		Host:      host,
		Transport: transport,
		conn:      conn,
		state:     StateConnecting,
		chunks:    make(chan []byte, 16),
		done:      make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump reads from the connection until it fails; any read error ends the stream
func (s *Session) pump() {
	defer close(s.chunks)

	for {
		buffer := make([]byte, readBufferSize)
		n, err := s.conn.Read(buffer)
		if n > 0 {
			gologger.Debug().Label(s.ID).Msgf("%s <- %q", s.Host, s.redact(string(buffer[:n])))
			select {
			case s.chunks <- buffer[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				gologger.Debug().Label(s.ID).Msgf("%s stream ended: %v", s.Host, err)
			}
			return
		}
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// SetState moves the session to state. Failed and Closed are terminal.
func (s *Session) SetState(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateClosed {
		if state == StateClosed {
			s.state = StateClosed
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrUnusable, s.state, state)
	}
	s.state = state
	return nil
}

// Usable reports whether the session may still send and receive
func (s *Session) Usable() bool {
	state := s.State()
	return state != StateFailed && state != StateClosed
}

// Acquire reserves the session for one operation; the returned function
// releases it. A session never runs two operations at once.
func (s *Session) Acquire() (func(), error) {
	if !s.Usable() {
		return nil, ErrUnusable
	}
	if !s.op.TryLock() {
		return nil, ErrBusy
	}
	return s.op.Unlock, nil
}

// SendLine writes text followed by lineEnding
func (s *Session) SendLine(text, lineEnding string) error {
	gologger.Debug().Label(s.ID).Msgf("%s -> %q", s.Host, text)
	return s.write(text + lineEnding)
}

// SendSecret writes a secret followed by lineEnding; the transcript only
// shows a mask
func (s *Session) SendSecret(secret, lineEnding string) error {
	if secret != "" {
		s.mu.Lock()
		s.secrets = append(s.secrets, secret)
		s.mu.Unlock()
	}
	gologger.Debug().Label(s.ID).Msgf("%s -> %q", s.Host, secretMask)
	return s.write(secret + lineEnding)
}

// redact masks every secret sent on this session, in case the remote end
// echoes it back
func (s *Session) redact(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, secret := range s.secrets {
		text = strings.ReplaceAll(text, secret, secretMask)
	}
	return text
}

func (s *Session) write(data string) error {
	if !s.Usable() {
		return ErrUnusable
	}
	if _, err := io.WriteString(s.conn, data); err != nil {
		return fmt.Errorf("could not write to %s: %w", s.Host, err)
	}
	return nil
}

// Buffered returns the received text not consumed by a match yet
func (s *Session) Buffered() string {
	return s.buf.String()
}

// MarkResync records that an exchange ended before its ready prompt, so
// late output must be discarded before the next one
func (s *Session) MarkResync() {
	s.resync = true
}

// NeedsResync reports whether MarkResync was called since the last Discard
func (s *Session) NeedsResync() bool {
	return s.resync
}

// Unread puts text back in front of the buffered text, so that the next
// Await sees it again
func (s *Session) Unread(text string) {
	if text == "" {
		return
	}
	rest := s.buf.String()
	s.buf.Reset()
	s.buf.WriteString(text)
	s.buf.WriteString(rest)
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.SetState(StateClosed)
		close(s.done)
		err = s.conn.Close()
		gologger.Debug().Label(s.ID).Msgf("%s session closed (%s buffered)", s.Host, humanize.Bytes(uint64(s.buf.Len())))
	})
	return err
}
