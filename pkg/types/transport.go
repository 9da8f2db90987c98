package types

import "strings"

// TransportKind is the remote shell transport selected for a host by probing
type TransportKind int

const (
	// TransportNone means neither the secure nor the legacy port answered
	TransportNone TransportKind = iota
	// TransportSecure is ssh
	TransportSecure
	// TransportLegacy is telnet
	TransportLegacy
)

func (t TransportKind) String() string {
	switch t {
	case TransportSecure:
		return "SECURE"
	case TransportLegacy:
		return "LEGACY"
	default:
		return "NONE"
	}
}

// MarshalText renders the transport for JSON reports
func (t TransportKind) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Platform selects the prompt catalog entry and the command dispatch policy.
// It is chosen once per run.
type Platform string

const (
	// PlatformRouter is a router/switch style CLI (enable, config modes)
	PlatformRouter Platform = "router"
	// PlatformUnix is a generic unix-like shell
	PlatformUnix Platform = "unix"
)

// DefaultPlatform is used when no platform is configured
const DefaultPlatform = PlatformRouter

// ParsePlatform normalizes user input such as "ROUTER_CLI" or "unix"
func ParsePlatform(value string) Platform {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "router", "router_cli", "router-cli", "cisco":
		return PlatformRouter
	case "unix", "unix_shell", "unix-shell", "linux", "shell":
		return PlatformUnix
	default:
		return Platform(strings.ToLower(strings.TrimSpace(value)))
	}
}

func (p Platform) String() string {
	return string(p)
}
