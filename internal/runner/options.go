package runner

import (
	"errors"
	"os"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/fleetx/pkg/probe"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/fleetx/pkg/version"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	envutil "github.com/projectdiscovery/utils/env"
	fileutil "github.com/projectdiscovery/utils/file"
)

var au *aurora.Aurora

var (
	UsernameEnv = envutil.GetEnvOrDefault("FLEETX_USERNAME", "")
	// PasswordEnv is never exposed as a flag so it stays out of shell history
	PasswordEnv = envutil.GetEnvOrDefault("FLEETX_PASSWORD", "")
)

// Options contains the configuration options of a run
type Options struct {
	HostsFile  string
	Hosts      goflags.StringSlice
	Inventory  string
	ExpandCIDR bool

	Command     string
	CommandFile string

	Username string

	Platform    string
	CatalogFile string

	Client         string
	HostKeyPolicy  string
	KnownHostsFile string
	SecurePort     int
	LegacyPort     int
	NoPing         bool

	ProbeTimeout   time.Duration
	LoginTimeout   time.Duration
	CommandTimeout time.Duration

	Output  string
	NoColor bool
	Silent  bool
	Verbose bool
	Debug   bool
	Version bool
	Yes     bool
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`fleetx runs commands on routers, switches and unix hosts through their interactive ssh or telnet cli`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringVarP(&options.HostsFile, "list", "l", "", "file containing hosts, one per line"),
		flagSet.StringSliceVarP(&options.Hosts, "target", "t", nil, "hosts to run commands on (comma separated)", goflags.CommaSeparatedStringSliceOptions),
		flagSet.StringVarP(&options.Inventory, "inventory", "i", "", "ansible ini inventory to read hosts from"),
		flagSet.BoolVarP(&options.ExpandCIDR, "expand-cidr", "ec", false, "expand cidr ranges found in the host list"),
	)

	flagSet.CreateGroup("commands", "Commands",
		flagSet.StringVarP(&options.Command, "command", "c", "", "single command to run"),
		flagSet.StringVarP(&options.CommandFile, "command-file", "cf", "", "file containing commands, one per line"),
	)

	flagSet.CreateGroup("credentials", "Credentials",
		flagSet.StringVarP(&options.Username, "username", "u", UsernameEnv, "login username (FLEETX_USERNAME); the password is read from FLEETX_PASSWORD or prompted"),
	)

	flagSet.CreateGroup("platform", "Platform",
		flagSet.StringVarP(&options.Platform, "platform", "p", string(types.DefaultPlatform), "cli platform (router, unix or a catalog platform)"),
		flagSet.StringVar(&options.CatalogFile, "catalog", "", "yaml file with additional platform prompt definitions"),
	)

	flagSet.CreateGroup("transport", "Transport",
		flagSet.StringVar(&options.Client, "client", string(spawn.ModeNative), "session client (native, exec)"),
		flagSet.StringVarP(&options.HostKeyPolicy, "host-key-policy", "hkp", string(spawn.HostKeyWarn), "ssh host key policy (warn, strict, insecure)"),
		flagSet.StringVarP(&options.KnownHostsFile, "known-hosts", "kh", "", "known_hosts file (default ~/.ssh/known_hosts)"),
		flagSet.IntVar(&options.SecurePort, "ssh-port", probe.DefaultSecurePort, "ssh port"),
		flagSet.IntVar(&options.LegacyPort, "telnet-port", probe.DefaultLegacyPort, "telnet port"),
		flagSet.BoolVarP(&options.NoPing, "no-ping", "np", false, "skip the reachability check after a failed login"),
	)

	flagSet.CreateGroup("timeouts", "Timeouts",
		flagSet.DurationVarP(&options.ProbeTimeout, "probe-timeout", "pt", probe.DefaultTimeout, "port probe and connection timeout"),
		flagSet.DurationVarP(&options.LoginTimeout, "login-timeout", "lt", 10*time.Second, "wait for each login prompt"),
		flagSet.DurationVarP(&options.CommandTimeout, "timeout", "to", 10*time.Second, "wait for the prompt after each command"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.Output, "output", "o", "", "file to write host outcomes to (json lines)"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only command output"),
		flagSet.BoolVarP(&options.Yes, "yes", "y", false, "do not ask for confirmation"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Debug, "debug", false, "show the session transcript (passwords are masked)"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	// configure aurora for logging
	au = aurora.New(aurora.WithColors(true))

	options.configureOutput()

	showBanner()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if err := options.validateOptions(); err != nil {
		gologger.Fatal().Msgf("Program exiting: %s\n", err)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	// If the user desires verbose output, show verbose output
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.Debug {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
		au = aurora.New(aurora.WithColors(false))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

func (options *Options) validateOptions() error {
	if options.HostsFile == "" && len(options.Hosts) == 0 && options.Inventory == "" {
		return errors.New("no hosts provided, use -list, -target or -inventory")
	}
	if options.HostsFile != "" && !fileutil.FileExists(options.HostsFile) {
		return errors.New("host list file does not exist")
	}
	if options.Inventory != "" && !fileutil.FileExists(options.Inventory) {
		return errors.New("inventory file does not exist")
	}
	if options.Command != "" && options.CommandFile != "" {
		return errors.New("-command and -command-file are mutually exclusive")
	}
	if options.CommandFile != "" && !fileutil.FileExists(options.CommandFile) {
		return errors.New("command file does not exist")
	}
	if options.CatalogFile != "" && !fileutil.FileExists(options.CatalogFile) {
		return errors.New("catalog file does not exist")
	}
	switch spawn.Mode(options.Client) {
	case spawn.ModeNative, spawn.ModeExec:
	default:
		return errors.New("client must be native or exec")
	}
	switch spawn.HostKeyPolicy(options.HostKeyPolicy) {
	case spawn.HostKeyWarn, spawn.HostKeyStrict, spawn.HostKeyInsecure:
	default:
		return errors.New("host key policy must be warn, strict or insecure")
	}
	if options.SecurePort <= 0 || options.LegacyPort <= 0 {
		return errors.New("ports must be positive")
	}
	if options.ProbeTimeout <= 0 || options.LoginTimeout <= 0 || options.CommandTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}
