// Package catalog holds the prompt patterns of the supported platform families.
//
// An Entry is pure data: what marks a credential prompt, a username prompt on
// legacy transports, a ready shell prompt, and how commands are dispatched
// (elevation keyword, characters to escape, line terminator). The scanner in
// pkg/session and the state machines in pkg/auth and pkg/executor consume
// entries without knowing which platform they describe, so new platforms can
// be registered from a YAML file:
//
//	platforms:
//	  - name: junos
//	    ready: '[>#%][ \t]*\z'
//	    escape: ["*"]
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/projectdiscovery/fleetx/pkg/types"
)

// ErrUnknownPlatform is returned when a platform has no catalog entry
var ErrUnknownPlatform = errors.New("unknown platform")

const (
	// credentialPattern matches "Password:", "user@host's password: ", "[sudo] password for x:"
	credentialPattern = `(?i)(?:password|passcode)[^\n]*:[ \t]*\z`
	usernamePattern   = `(?i)(?:username|user name|login)[ \t]*:[ \t]*\z`
	// routerReadyPattern matches the tail of "r1#", "r1>", "r1(config-if)# ", "Console> (enable) ".
	// Only the mode annotations and the terminator are matched, the host name
	// stays in the captured text as the final line. A prompt never ends a line,
	// so "########\n" is output.
	routerReadyPattern = `(?:\([\w.\-@/: ]*\))*[ \t]?[>#][ \t]*(?:\(enable\)[ \t]*)?\z`
	unixReadyPattern   = `[$#] \z`
)

// Entry describes one platform family
type Entry struct {
	Platform types.Platform
	// CredentialPrompt marks a password request (login or elevation)
	CredentialPrompt *regexp.Regexp
	// UsernamePrompt marks the username request on legacy transports
	UsernamePrompt *regexp.Regexp
	// ReadyPrompt marks an idle shell ready for input
	ReadyPrompt *regexp.Regexp
	// ElevationCommand is sent to enter privileged mode, empty when the
	// platform has no elevation
	ElevationCommand string
	// ElevationPrefix routes any command starting with it to the elevation path
	ElevationPrefix string
	// Escape lists characters prefixed with a backslash before sending
	Escape []string
	// LineEnding terminates every line sent
	LineEnding string

	escaper *strings.Replacer
	once    sync.Once
}

// Elevates reports whether the command is routed to the elevation path.
// The match is on the prefix only, so "end" is routed as well as "enable".
func (e *Entry) Elevates(command string) bool {
	if e.ElevationCommand == "" || e.ElevationPrefix == "" {
		return false
	}
	return strings.HasPrefix(command, e.ElevationPrefix)
}

// EscapeCommand escapes the shell significant characters of command
func (e *Entry) EscapeCommand(command string) string {
	e.once.Do(func() {
		var pairs []string
		for _, char := range e.Escape {
			if char == "" {
				continue
			}
			pairs = append(pairs, char, `\`+char)
		}
		e.escaper = strings.NewReplacer(pairs...)
	})
	return e.escaper.Replace(command)
}

// Catalog maps platforms to entries
type Catalog struct {
	mu      sync.RWMutex
	entries map[types.Platform]*Entry
}

// New returns an empty catalog
func New() *Catalog {
	return &Catalog{entries: make(map[types.Platform]*Entry)}
}

// Default returns a catalog with the router and unix shell entries
func Default() *Catalog {
	c := New()
	c.Register(RouterEntry())
	c.Register(UnixEntry())
	return c
}

// RouterEntry is the router/switch CLI entry
func RouterEntry() *Entry {
	return &Entry{
		Platform:         types.PlatformRouter,
		CredentialPrompt: regexp.MustCompile(credentialPattern),
		UsernamePrompt:   regexp.MustCompile(usernamePattern),
		ReadyPrompt:      regexp.MustCompile(routerReadyPattern),
		ElevationCommand: "enable",
		ElevationPrefix:  "en",
		Escape:           []string{"*"},
		LineEnding:       "\n",
	}
}

// UnixEntry is the generic unix-like shell entry
func UnixEntry() *Entry {
	return &Entry{
		Platform:         types.PlatformUnix,
		CredentialPrompt: regexp.MustCompile(credentialPattern),
		UsernamePrompt:   regexp.MustCompile(usernamePattern),
		ReadyPrompt:      regexp.MustCompile(unixReadyPattern),
		Escape:           []string{"*"},
		LineEnding:       "\n",
	}
}

// Register adds or replaces an entry
func (c *Catalog) Register(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Platform] = entry
}

// Lookup returns the entry of platform
func (c *Catalog) Lookup(platform types.Platform) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownPlatform, platform, strings.Join(c.platforms(), ", "))
	}
	return entry, nil
}

// Platforms lists the registered platforms in lexical order
func (c *Catalog) Platforms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.platforms()
}

func (c *Catalog) platforms() []string {
	names := make([]string, 0, len(c.entries))
	for platform := range c.entries {
		names = append(names, platform.String())
	}
	sort.Strings(names)
	return names
}
