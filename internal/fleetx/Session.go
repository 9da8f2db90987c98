package fleetx

import (
	"time"

	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/probe"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
)

// Session is the work of one run
type Session struct {
	// Hosts in input order, duplicates included
	Hosts []string

	// Commands run in order on every host
	Commands []string
}

const (
	DefaultLoginTimeout   = 10 * time.Second
	DefaultCommandTimeout = 10 * time.Second
)

// Config is the run configuration, built once and never changed during a run
type Config struct {
	Platform types.Platform
	// Catalog resolves Platform; catalog.Default() when nil
	Catalog *catalog.Catalog

	Username string
	Password string

	Client         spawn.Mode
	HostKeyPolicy  spawn.HostKeyPolicy
	KnownHostsFile string

	SecurePort     int
	LegacyPort     int
	ProbeTimeout   time.Duration
	LoginTimeout   time.Duration
	CommandTimeout time.Duration

	// SkipReachability disables the echo check after failed logins
	SkipReachability bool
}

// DefaultConfig returns the configuration used when no option is given
func DefaultConfig() Config {
	return Config{
		Platform:       types.DefaultPlatform,
		Client:         spawn.ModeNative,
		HostKeyPolicy:  spawn.HostKeyWarn,
		SecurePort:     probe.DefaultSecurePort,
		LegacyPort:     probe.DefaultLegacyPort,
		ProbeTimeout:   probe.DefaultTimeout,
		LoginTimeout:   DefaultLoginTimeout,
		CommandTimeout: DefaultCommandTimeout,
	}
}
