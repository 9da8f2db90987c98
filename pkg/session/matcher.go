package session

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Event is the outcome of one Await call
type Event int

const (
	EventTimeout Event = iota
	EventCredentialPrompt
	EventReadyPrompt
	EventEndOfStream
)

func (e Event) String() string {
	switch e {
	case EventCredentialPrompt:
		return "credential-prompt"
	case EventReadyPrompt:
		return "ready-prompt"
	case EventEndOfStream:
		return "end-of-stream"
	default:
		return "timeout"
	}
}

// PatternSet is what Await scans for. A nil pattern is never matched.
type PatternSet struct {
	Credential *regexp.Regexp
	Ready      *regexp.Regexp
}

// Match describes where the scan stopped
type Match struct {
	Event Event
	// Before is the text received before the matched prompt. On end of stream
	// and timeout it is everything buffered.
	Before string
	// Prompt is the matched text
	Prompt string
}

var (
	ansiEscape   = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|[()][A-Z0-9]|[=>])`)
	ansiComplete = regexp.MustCompile(`^\x1b(?:\[[0-9;?]*[a-zA-Z]|[()][A-Z0-9]|[=>])`)
)

// maxEscapeLength bounds how much of a chunk tail is held back as a possibly
// incomplete escape sequence
const maxEscapeLength = 16

// Normalize strips terminal escape sequences, carriage returns and NUL bytes
func Normalize(raw string) string {
	text := ansiEscape.ReplaceAllString(raw, "")
	return strings.NewReplacer("\r", "", "\x00", "").Replace(text)
}

// Await scans the incoming stream for the first of: a credential prompt, a
// ready prompt, or the end of the stream. It gives up with EventTimeout when
// timeout elapses or ctx is done. Text after the matched prompt stays
// buffered for the next call.
func (s *Session) Await(ctx context.Context, patterns PatternSet, timeout time.Duration) Match {
	if match, ok := s.scan(patterns); ok {
		return match
	}
	if s.eof {
		return s.endOfStream()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Match{Event: EventTimeout, Before: s.buf.String()}
		case <-timer.C:
			return Match{Event: EventTimeout, Before: s.buf.String()}
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				s.flushPartial()
				if match, ok := s.scan(patterns); ok {
					return match
				}
				return s.endOfStream()
			}
			s.append(chunk)
			if match, ok := s.scan(patterns); ok {
				return match
			}
		}
	}
}

// Discard drops stale text left by an exchange that timed out: everything
// received so far up to and including the last ready prompt, plus whatever
// follows it. When no ready prompt is buffered it waits up to grace for one.
// The dropped text is returned.
func (s *Session) Discard(ctx context.Context, ready *regexp.Regexp, grace time.Duration) string {
	var dropped strings.Builder
	patterns := PatternSet{Ready: ready}

	s.drain()
	found := s.consume(patterns, &dropped)
	if !found && !s.eof && grace > 0 {
		match := s.Await(ctx, patterns, grace)
		switch match.Event {
		case EventReadyPrompt:
			dropped.WriteString(match.Before + match.Prompt)
			s.drain()
			s.consume(patterns, &dropped)
		case EventEndOfStream:
			// the buffer was already handed over in match
			dropped.WriteString(match.Before)
		}
	}

	dropped.WriteString(s.buf.String())
	s.buf.Reset()
	s.resync = false
	return dropped.String()
}

// consume removes every ready prompt already in the buffer
func (s *Session) consume(patterns PatternSet, dropped *strings.Builder) bool {
	found := false
	for {
		match, ok := s.scan(patterns)
		if !ok {
			return found
		}
		found = true
		dropped.WriteString(match.Before + match.Prompt)
	}
}

// drain moves the chunks already received into the buffer without waiting
func (s *Session) drain() {
	for !s.eof {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				s.eof = true
				s.flushPartial()
				return
			}
			s.append(chunk)
		default:
			return
		}
	}
}

// scan looks for the earliest match among the patterns in the buffer.
// On equal positions the credential prompt wins.
func (s *Session) scan(patterns PatternSet) (Match, bool) {
	text := s.buf.String()
	if text == "" {
		return Match{}, false
	}

	candidates := []struct {
		event   Event
		pattern *regexp.Regexp
	}{
		{EventCredentialPrompt, patterns.Credential},
		{EventReadyPrompt, patterns.Ready},
	}

	var (
		best     Event
		location []int
	)
	for _, candidate := range candidates {
		if candidate.pattern == nil {
			continue
		}
		loc := candidate.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if location == nil || loc[0] < location[0] {
			best, location = candidate.event, loc
		}
	}
	if location == nil {
		return Match{}, false
	}

	match := Match{
		Event:  best,
		Before: text[:location[0]],
		Prompt: text[location[0]:location[1]],
	}
	s.buf.Reset()
	s.buf.WriteString(text[location[1]:])
	return match, true
}

func (s *Session) endOfStream() Match {
	match := Match{Event: EventEndOfStream, Before: s.buf.String()}
	s.buf.Reset()
	return match
}

// append normalizes a chunk into the buffer, holding back a trailing escape
// sequence split across reads
func (s *Session) append(chunk []byte) {
	raw := s.partial + string(chunk)
	s.partial = ""
	if i := strings.LastIndexByte(raw, 0x1b); i >= 0 && len(raw)-i < maxEscapeLength && !ansiComplete.MatchString(raw[i:]) {
		s.partial = raw[i:]
		raw = raw[:i]
	}
	s.buf.WriteString(Normalize(raw))
}

func (s *Session) flushPartial() {
	if s.partial == "" {
		return
	}
	s.buf.WriteString(Normalize(s.partial))
	s.partial = ""
}
