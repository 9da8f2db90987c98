package fleetx

import (
	"context"
	"errors"
	"fmt"

	"github.com/kr/pretty"
	"github.com/projectdiscovery/fleetx/pkg/auth"
	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/executor"
	"github.com/projectdiscovery/fleetx/pkg/probe"
	"github.com/projectdiscovery/fleetx/pkg/reachability"
	"github.com/projectdiscovery/fleetx/pkg/session"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
)

// Prober picks the transport of a host
type Prober interface {
	Probe(ctx context.Context, host string) types.TransportKind
}

// Spawner opens a session over a transport
type Spawner interface {
	Spawn(ctx context.Context, host string, transport types.TransportKind) (*session.Session, error)
}

// Authenticator logs a session in
type Authenticator interface {
	Login(ctx context.Context, s *session.Session, password string) error
}

// Executor runs one command on a ready session
type Executor interface {
	Execute(ctx context.Context, s *session.Session, command string) types.CommandResult
}

// Pinger diagnoses hosts that could not be logged into
type Pinger interface {
	Check(ctx context.Context, host string) types.Diagnosis
}

// Components are the collaborators of a Runner. Pinger may be nil.
type Components struct {
	Prober        Prober
	Spawner       Spawner
	Authenticator Authenticator
	Executor      Executor
	Pinger        Pinger
}

// Runner processes hosts one at a time
type Runner struct {
	components Components
	password   string

	// OnOutcome is called with each host outcome as soon as the host is done
	OnOutcome func(outcome types.HostOutcome)
}

// New creates a Runner with the real transport, login and command components
func New(config Config) (*Runner, error) {
	c := config.Catalog
	if c == nil {
		c = catalog.Default()
	}
	entry, err := c.Lookup(config.Platform)
	if err != nil {
		return nil, err
	}

	prober := &probe.Prober{
		SecurePort: config.SecurePort,
		LegacyPort: config.LegacyPort,
		Timeout:    config.ProbeTimeout,
	}
	spawner, err := spawn.New(spawn.Options{
		Username:       config.Username,
		Password:       config.Password,
		Mode:           config.Client,
		HostKeyPolicy:  config.HostKeyPolicy,
		KnownHostsFile: config.KnownHostsFile,
		SecurePort:     config.SecurePort,
		LegacyPort:     config.LegacyPort,
		DialTimeout:    config.ProbeTimeout,
		PromptTimeout:  config.LoginTimeout,
		Entry:          entry,
	})
	if err != nil {
		return nil, err
	}
	authenticator := auth.New(entry, config.LoginTimeout)

	components := Components{
		Prober:        prober,
		Spawner:       spawner,
		Authenticator: authenticator,
		Executor:      executor.New(entry, authenticator, config.CommandTimeout, config.Password),
	}
	if !config.SkipReachability {
		components.Pinger = reachability.New()
	}
	return NewWith(components, config.Password), nil
}

// NewWith creates a Runner from explicit components
func NewWith(components Components, password string) *Runner {
	return &Runner{components: components, password: password}
}

// Run processes the hosts of the session in order and returns one outcome
// per host. It stops early only when ctx is done.
func (r *Runner) Run(ctx context.Context, work Session) []types.HostOutcome {
	outcomes := make([]types.HostOutcome, 0, len(work.Hosts))
	for _, host := range work.Hosts {
		if ctx.Err() != nil {
			gologger.Warning().Msgf("run interrupted, %d hosts not processed", len(work.Hosts)-len(outcomes))
			break
		}

		outcome := r.RunHost(ctx, host, work.Commands)
		gologger.Verbose().MsgFunc(func() string {
			return "outcome: " + pretty.Sprint(outcome)
		})
		if r.OnOutcome != nil {
			r.OnOutcome(outcome)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// RunHost probes, spawns, logs into a host and runs commands. Every failure
// is recorded in the outcome.
func (r *Runner) RunHost(ctx context.Context, host string, commands []string) types.HostOutcome {
	outcome := types.HostOutcome{Host: host}

	transport := r.components.Prober.Probe(ctx, host)
	outcome.Transport = transport
	if transport == types.TransportNone {
		outcome.Failure = types.FailureTransportUnavailable
		outcome.Error = "no remote shell port open"
		return outcome
	}
	outcome.Reached = true

	s, err := r.components.Spawner.Spawn(ctx, host, transport)
	if err != nil {
		outcome.Failure = types.FailureSpawn
		if errors.Is(err, spawn.ErrAuthentication) {
			outcome.Failure = types.FailureAuthentication
		}
		outcome.Error = err.Error()
		outcome.Diagnosis = r.diagnose(ctx, host)
		return outcome
	}
	defer func() {
		if err := s.Close(); err != nil {
			gologger.Debug().Msgf("could not close session to %s: %v", host, err)
		}
	}()

	if err := r.components.Authenticator.Login(ctx, s, r.password); err != nil {
		outcome.Failure = types.FailureAuthentication
		outcome.Error = err.Error()
		outcome.Diagnosis = r.diagnose(ctx, host)
		return outcome
	}
	outcome.Authenticated = true
	gologger.Verbose().Msgf("logged into %s over %s", host, transport)

	for i, command := range commands {
		if ctx.Err() != nil {
			outcome.Error = fmt.Sprintf("interrupted, %d commands not run", len(commands)-i)
			break
		}
		outcome.Append(r.components.Executor.Execute(ctx, s, command))
	}
	return outcome
}

func (r *Runner) diagnose(ctx context.Context, host string) types.Diagnosis {
	if r.components.Pinger == nil {
		return types.DiagnosisNone
	}
	return r.components.Pinger.Check(ctx, host)
}
