package runner

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/projectdiscovery/fleetx/internal/fleetx"
	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
)

// ErrDeclined is returned when the operator does not confirm the run
var ErrDeclined = errors.New("run declined")

// Runner contains the internal logic of the program
type Runner struct {
	options *Options
	catalog *catalog.Catalog

	hosts    []string
	commands []string
	username string
	password string

	in    *bufio.Reader
	out   io.Writer
	stdin *os.File
}

// NewRunner loads the inputs and credentials of a run. Any error here ends
// the program before a host is contacted.
func NewRunner(options *Options) (*Runner, error) {
	r := &Runner{
		options:  options,
		catalog:  catalog.Default(),
		username: options.Username,
		password: PasswordEnv,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stderr,
		stdin:    os.Stdin,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) load() error {
	if r.options.CatalogFile != "" {
		if err := r.catalog.LoadFile(r.options.CatalogFile); err != nil {
			return errorutil.NewWithErr(err).Msgf("could not load catalog %s", r.options.CatalogFile)
		}
	}
	if _, err := r.catalog.Lookup(types.ParsePlatform(r.options.Platform)); err != nil {
		return err
	}

	hosts, err := r.loadHosts()
	if err != nil {
		return err
	}
	r.hosts = hosts
	gologger.Verbose().Msgf("loaded %d host(s)", len(hosts))

	commands, err := r.loadCommands()
	if err != nil {
		return err
	}
	r.commands = commands

	return r.resolveCredentials()
}

func (r *Runner) config() fleetx.Config {
	config := fleetx.DefaultConfig()
	config.Platform = types.ParsePlatform(r.options.Platform)
	config.Catalog = r.catalog
	config.Username = r.username
	config.Password = r.password
	config.Client = spawn.Mode(r.options.Client)
	config.HostKeyPolicy = spawn.HostKeyPolicy(r.options.HostKeyPolicy)
	config.KnownHostsFile = r.options.KnownHostsFile
	config.SecurePort = r.options.SecurePort
	config.LegacyPort = r.options.LegacyPort
	config.ProbeTimeout = r.options.ProbeTimeout
	config.LoginTimeout = r.options.LoginTimeout
	config.CommandTimeout = r.options.CommandTimeout
	config.SkipReachability = r.options.NoPing
	return config
}

// Run asks for confirmation, then processes every host and reports each one
// as soon as it is done
func (r *Runner) Run(ctx context.Context) error {
	if !r.options.Yes {
		ok, err := r.confirm()
		if err != nil {
			return errorutil.NewWithErr(err).Msgf("could not read confirmation")
		}
		if !ok {
			return ErrDeclined
		}
	}

	orchestrator, err := fleetx.New(r.config())
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not create session runner")
	}

	rep, err := newReporter(au, os.Stdout, r.options.Output)
	if err != nil {
		return err
	}
	orchestrator.OnOutcome = rep.Report

	orchestrator.Run(ctx, fleetx.Session{Hosts: r.hosts, Commands: r.commands})
	return rep.Close()
}

// Close drops the runner's reference to the password. Go strings cannot be
// overwritten, and the session components keep their own copies until the
// process exits.
func (r *Runner) Close() {
	r.password = ""
}
