// Package scripted provides an in-memory session.Conn that plays back a
// script, for deterministic tests of the login and command state machines
// without network access.
//
//	conn := scripted.New("Password: ",
//		scripted.Step{Expect: "secret", Reply: "\r\nr1#"},
//	)
//	conn.Rule("show clock", "show clock\r\n12:00:00\r\nr1#")
package scripted

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Step is one scripted exchange. Steps are consumed in order.
type Step struct {
	// Expect is the line that triggers the step; "*" matches any line
	Expect string
	// Reply is written to the stream when the step triggers
	Reply string
	// Hangup ends the stream after Reply
	Hangup bool
}

// Conn is a scripted remote end
type Conn struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending bytes.Buffer
	hangup  bool
	closed  bool

	steps []Step
	next  int
	rules map[string]string

	input   strings.Builder
	written []string
}

// New returns a Conn that first emits greeting, then replies to lines
// written to it according to steps
func New(greeting string, steps ...Step) *Conn {
	c := &Conn{
		steps: steps,
		rules: make(map[string]string),
	}
	c.cond = sync.NewCond(&c.mu)
	c.pending.WriteString(greeting)
	return c
}

// Rule registers a reply sent every time line is written, once the ordered
// steps do not match
func (c *Conn) Rule(line, reply string) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules[line] = reply
	return c
}

// Hangup ends the stream once pending output is drained
func (c *Conn) Hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hangup = true
	c.cond.Broadcast()
}

// Emit queues raw output as if the remote end printed it
func (c *Conn) Emit(output string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending.WriteString(output)
	c.cond.Broadcast()
}

// Read blocks until output is queued or the stream ends
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.pending.Len() == 0 && !c.hangup && !c.closed {
		c.cond.Wait()
	}
	if c.pending.Len() > 0 && !c.closed {
		return c.pending.Read(p)
	}
	return 0, io.EOF
}

// Write records input and triggers the script for every complete line
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.hangup {
		return 0, io.ErrClosedPipe
	}

	c.input.Write(p)
	for {
		data := c.input.String()
		index := strings.IndexAny(data, "\r\n")
		if index < 0 {
			break
		}
		line := data[:index]
		rest := strings.TrimLeft(data[index:], "\r\n")
		c.input.Reset()
		c.input.WriteString(rest)
		c.respond(line)
	}
	c.cond.Broadcast()
	return len(p), nil
}

func (c *Conn) respond(line string) {
	c.written = append(c.written, line)

	if c.next < len(c.steps) {
		step := c.steps[c.next]
		if step.Expect == "*" || step.Expect == line {
			c.next++
			c.pending.WriteString(step.Reply)
			if step.Hangup {
				c.hangup = true
			}
			return
		}
	}
	if reply, ok := c.rules[line]; ok {
		c.pending.WriteString(reply)
	}
}

// Close ends the stream
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.cond.Broadcast()
	return nil
}

// Written returns the lines written so far
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.written...)
}

// Closed reports whether Close was called
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
