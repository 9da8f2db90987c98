// Package executor sends commands over a ready session and extracts the
// device response from the echo-laden terminal output.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/auth"
	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/session"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
)

// DefaultResyncGrace bounds the wait for the late prompt of a timed-out command
const DefaultResyncGrace = time.Second

// Executor runs single commands on a session
type Executor struct {
	Entry *catalog.Entry
	Auth  *auth.Authenticator
	// Timeout bounds the wait for the prompt following a command
	Timeout time.Duration
	// ResyncGrace bounds the wait for the prompt still owed by a timed-out
	// command before the next one is sent
	ResyncGrace time.Duration
	// Password answers elevation prompts
	Password string
}

// New returns an Executor for the platform entry
func New(entry *catalog.Entry, authenticator *auth.Authenticator, timeout time.Duration, password string) *Executor {
	return &Executor{
		Entry:       entry,
		Auth:        authenticator,
		Timeout:     timeout,
		ResyncGrace: min(DefaultResyncGrace, timeout),
		Password:    password,
	}
}

// Execute sends command and waits for the ready prompt. Commands starting
// with the elevation prefix of the platform are handed to the elevation
// exchange instead and yield an empty result.
func (e *Executor) Execute(ctx context.Context, s *session.Session, command string) types.CommandResult {
	start := time.Now()

	if s.NeedsResync() {
		e.resync(ctx, s)
	}

	if e.Entry.Elevates(command) {
		e.Auth.Enable(ctx, s, e.Password)
		result := types.NewCommandResult(s.Host, command, "", time.Since(start))
		result.Elevation = true
		return result
	}

	release, err := s.Acquire()
	if err != nil {
		gologger.Warning().Msgf("could not run %q on %s: %v", command, s.Host, err)
		return timedOut(s.Host, command, time.Since(start))
	}
	defer release()

	sent := e.Entry.EscapeCommand(command)
	if err := s.SendLine(sent, e.Entry.LineEnding); err != nil {
		gologger.Warning().Msgf("could not run %q on %s: %v", command, s.Host, err)
		return timedOut(s.Host, command, time.Since(start))
	}

	match := s.Await(ctx, session.PatternSet{Ready: e.Entry.ReadyPrompt}, e.Timeout)
	switch match.Event {
	case session.EventReadyPrompt:
		return types.NewCommandResult(s.Host, command, Extract(match.Before, command, sent), time.Since(start))
	case session.EventEndOfStream:
		gologger.Warning().Msgf("%s closed the session while running %q", s.Host, command)
		_ = s.SetState(session.StateFailed)
	default:
		gologger.Warning().Msgf("%q on %s timed out after %s", command, s.Host, e.Timeout)
		s.MarkResync()
	}
	return timedOut(s.Host, command, time.Since(start))
}

// resync drops the late output of a timed-out exchange so that it is not
// taken as the response of the next command
func (e *Executor) resync(ctx context.Context, s *session.Session) {
	release, err := s.Acquire()
	if err != nil {
		return
	}
	defer release()

	dropped := s.Discard(ctx, e.Entry.ReadyPrompt, e.ResyncGrace)
	gologger.Debug().Label(s.ID).Msgf("%s: discarded %d bytes of late output", s.Host, len(dropped))
}

func timedOut(host, command string, duration time.Duration) types.CommandResult {
	return types.CommandResult{
		Host:     host,
		Command:  command,
		Status:   types.StatusTimedOut,
		Duration: duration,
	}
}

// Extract isolates the device response from the text captured before the
// ready prompt:
//
//  1. split into lines and drop blank lines
//  2. drop the final line, the prompt remnant
//  3. rejoin the remaining lines
//  4. split on the command text and keep the final segment, which removes
//     the echo even when it wrapped; sent is tried when the echo shows the
//     escaped form
//  5. trim leading whitespace
//
// Output that repeats the command text verbatim is cut after its last
// occurrence.
func Extract(buffer, command, sent string) string {
	var lines []string
	for _, line := range strings.Split(buffer, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	text := strings.Join(lines[:len(lines)-1], "\n")

	marker := command
	if marker == "" || !strings.Contains(text, marker) {
		marker = sent
	}
	if marker != "" {
		segments := strings.Split(text, marker)
		text = segments[len(segments)-1]
	}
	return strings.TrimLeft(text, " \t\n")
}
