package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/session"
	"github.com/projectdiscovery/gologger"
)

var (
	// ErrCredentialsRejected is returned when the remote end closed the stream
	// after asking for credentials
	ErrCredentialsRejected = errors.New("credentials rejected")
	// ErrConnectionClosed is returned when the stream ended before any prompt
	ErrConnectionClosed = errors.New("connection closed before login")
	// ErrLoginTimeout is returned when no ready prompt showed up in time
	ErrLoginTimeout = errors.New("login timed out")
)

// DefaultMaxAttempts bounds the credential prompts answered during one login
const DefaultMaxAttempts = 5

// Authenticator drives the login and elevation exchanges of a session
type Authenticator struct {
	Entry *catalog.Entry
	// Timeout bounds each wait for a prompt
	Timeout time.Duration
	// MaxAttempts bounds the credential prompts answered during login
	MaxAttempts int
}

// New returns an Authenticator for the platform entry
func New(entry *catalog.Entry, timeout time.Duration) *Authenticator {
	return &Authenticator{
		Entry:       entry,
		Timeout:     timeout,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (a *Authenticator) patterns() session.PatternSet {
	return session.PatternSet{
		Credential: a.Entry.CredentialPrompt,
		Ready:      a.Entry.ReadyPrompt,
	}
}

// Login answers credential prompts with password until the remote end shows
// a ready prompt. A nil error means the session is Ready.
//
// The remote end closing the stream after a credential prompt is taken as a
// rejection of the password, since devices do not agree on any failure message.
func (a *Authenticator) Login(ctx context.Context, s *session.Session, password string) error {
	release, err := s.Acquire()
	if err != nil {
		return err
	}
	defer release()

	err = a.login(ctx, s, password)
	if err != nil {
		_ = s.SetState(session.StateFailed)
		gologger.Verbose().Label(s.ID).Msgf("login to %s failed: %v", s.Host, err)
	}
	return err
}

func (a *Authenticator) login(ctx context.Context, s *session.Session, password string) error {
	prompts := 0
	for {
		match := s.Await(ctx, a.patterns(), a.Timeout)
		switch match.Event {
		case session.EventCredentialPrompt:
			prompts++
			if a.MaxAttempts > 0 && prompts > a.MaxAttempts {
				return fmt.Errorf("%w: %d credential prompts", ErrCredentialsRejected, prompts)
			}
			if err := s.SetState(session.StateAwaitingCredentials); err != nil {
				return err
			}
			if err := s.SendSecret(password, a.Entry.LineEnding); err != nil {
				return err
			}
		case session.EventReadyPrompt:
			return s.SetState(session.StateReady)
		case session.EventEndOfStream:
			if prompts > 0 {
				return ErrCredentialsRejected
			}
			return ErrConnectionClosed
		default:
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrLoginTimeout, ctx.Err())
			}
			return fmt.Errorf("%w after %s", ErrLoginTimeout, a.Timeout)
		}
	}
}

// Enable requests privileged mode and answers its credential prompts. It is
// best effort: the outcome is not reported, an unconfirmed elevation is only
// logged.
func (a *Authenticator) Enable(ctx context.Context, s *session.Session, password string) {
	if a.Entry.ElevationCommand == "" {
		return
	}
	release, err := s.Acquire()
	if err != nil {
		gologger.Warning().Msgf("could not elevate on %s: %v", s.Host, err)
		return
	}
	defer release()

	if err := s.SendLine(a.Entry.ElevationCommand, a.Entry.LineEnding); err != nil {
		gologger.Warning().Msgf("could not elevate on %s: %v", s.Host, err)
		return
	}

	for prompts := 0; ; {
		match := s.Await(ctx, a.patterns(), a.Timeout)
		switch match.Event {
		case session.EventCredentialPrompt:
			prompts++
			if a.MaxAttempts > 0 && prompts > a.MaxAttempts {
				gologger.Warning().Msgf("elevation unconfirmed on %s: %d credential prompts", s.Host, prompts)
				return
			}
			if err := s.SendSecret(password, a.Entry.LineEnding); err != nil {
				gologger.Warning().Msgf("elevation unconfirmed on %s: %v", s.Host, err)
				return
			}
		case session.EventReadyPrompt:
			gologger.Verbose().Label(s.ID).Msgf("elevation requested on %s", s.Host)
			return
		default:
			if match.Event == session.EventTimeout {
				s.MarkResync()
			}
			gologger.Warning().Msgf("elevation unconfirmed on %s: %s", s.Host, match.Event)
			return
		}
	}
}
