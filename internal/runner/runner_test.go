package runner

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testRunner(options *Options, input string) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Runner{
		options: options,
		in:      bufio.NewReader(strings.NewReader(input)),
		out:     out,
	}, out
}

func TestNormalizeHosts(t *testing.T) {
	hosts, err := normalizeHosts([]string{"r1  ", "", "   ", "r2\r", "r1", "10.0.0.0/30"}, false)
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2", "r1", "10.0.0.0/30"}, hosts)

	hosts, err = normalizeHosts([]string{"r1", "10.0.0.0/30", "core/1"}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "10.0.0.1", "10.0.0.2", "core/1"}, hosts)

	hosts, err = normalizeHosts([]string{"192.168.1.10/32", "10.1.1.0/31"}, true)
	require.NoError(t, err)
	require.Equal(t, []string{"192.168.1.10", "10.1.1.0", "10.1.1.1"}, hosts)
}

func TestLoadHosts(t *testing.T) {
	list := writeFile(t, "hosts.txt", "r1\n\nr2 \n")
	inventory := writeFile(t, "inventory.ini", "[core]\nsw[01:02] ansible_user=admin\n")

	r, _ := testRunner(&Options{Hosts: []string{"r0"}, HostsFile: list, Inventory: inventory}, "")
	hosts, err := r.loadHosts()
	require.NoError(t, err)
	require.Equal(t, []string{"r0", "r1", "r2", "sw01", "sw02"}, hosts)

	empty := writeFile(t, "empty.txt", "\n  \n")
	r, _ = testRunner(&Options{HostsFile: empty}, "")
	_, err = r.loadHosts()
	require.ErrorContains(t, err, "host list is empty")
}

func TestLoadCommands(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		r, _ := testRunner(&Options{Command: "show version"}, "")
		commands, err := r.loadCommands()
		require.NoError(t, err)
		require.Equal(t, []string{"show version"}, commands)
	})
	t.Run("file", func(t *testing.T) {
		path := writeFile(t, "commands.txt", "terminal length 0\n\nshow version  \nshow ip int brief\n")
		r, _ := testRunner(&Options{CommandFile: path}, "")
		commands, err := r.loadCommands()
		require.NoError(t, err)
		require.Equal(t, []string{"terminal length 0", "show version", "show ip int brief"}, commands)
	})
	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "commands.txt", "\n\n")
		r, _ := testRunner(&Options{CommandFile: path}, "")
		_, err := r.loadCommands()
		require.Error(t, err)
	})
	t.Run("interactive", func(t *testing.T) {
		r, out := testRunner(&Options{}, "show clock\n")
		commands, err := r.loadCommands()
		require.NoError(t, err)
		require.Equal(t, []string{"show clock"}, commands)
		require.Equal(t, "Command: ", out.String())
	})
	t.Run("interactive without newline", func(t *testing.T) {
		r, _ := testRunner(&Options{}, "uptime")
		commands, err := r.loadCommands()
		require.NoError(t, err)
		require.Equal(t, []string{"uptime"}, commands)
	})
	t.Run("interactive blank", func(t *testing.T) {
		r, _ := testRunner(&Options{}, "\n")
		_, err := r.loadCommands()
		require.ErrorContains(t, err, "no command given")
	})
}

func TestResolveCredentials(t *testing.T) {
	r, out := testRunner(&Options{}, "admin\n")
	r.password = "secret"
	require.NoError(t, r.resolveCredentials())
	require.Equal(t, "admin", r.username)
	require.Equal(t, "Username: ", out.String())

	r, _ = testRunner(&Options{}, "admin\n")
	err := r.resolveCredentials()
	require.ErrorContains(t, err, "no password given")

	r, _ = testRunner(&Options{}, "\n")
	err = r.resolveCredentials()
	require.ErrorContains(t, err, "no username given")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"\n", false},
		{"no\n", false},
	}
	for _, tt := range tests {
		r, out := testRunner(&Options{Platform: "router"}, tt.input)
		r.username = "admin"
		r.hosts = []string{"r1", "r2"}
		r.commands = []string{"show version"}
		ok, err := r.confirm()
		require.NoError(t, err)
		require.Equal(t, tt.want, ok, tt.input)
		require.Contains(t, out.String(), "About to run 1 command(s) on 2 host(s) as admin (router platform)")
		require.Contains(t, out.String(), "  show version\n")
	}

	r, _ := testRunner(&Options{}, "")
	_, err := r.confirm()
	require.Error(t, err)
}

func TestRunnerConfig(t *testing.T) {
	r, _ := testRunner(&Options{
		Platform:       "linux",
		Client:         "exec",
		HostKeyPolicy:  "strict",
		SecurePort:     2222,
		LegacyPort:     2323,
		NoPing:         true,
		ProbeTimeout:   time.Second,
		LoginTimeout:   3 * time.Second,
		CommandTimeout: 4 * time.Second,
	}, "")
	r.username = "admin"
	r.password = "secret"

	config := r.config()
	require.Equal(t, types.PlatformUnix, config.Platform)
	require.Equal(t, spawn.ModeExec, config.Client)
	require.Equal(t, spawn.HostKeyStrict, config.HostKeyPolicy)
	require.Equal(t, 2222, config.SecurePort)
	require.Equal(t, 2323, config.LegacyPort)
	require.True(t, config.SkipReachability)
	require.Equal(t, 4*time.Second, config.CommandTimeout)
	require.Equal(t, "secret", config.Password)

	r.Close()
	require.Empty(t, r.password)
}

func TestValidateOptions(t *testing.T) {
	list := writeFile(t, "hosts.txt", "r1\n")
	valid := func() *Options {
		return &Options{
			HostsFile:      list,
			Client:         string(spawn.ModeNative),
			HostKeyPolicy:  string(spawn.HostKeyWarn),
			SecurePort:     22,
			LegacyPort:     23,
			ProbeTimeout:   time.Second,
			LoginTimeout:   time.Second,
			CommandTimeout: time.Second,
		}
	}
	require.NoError(t, valid().validateOptions())

	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no hosts", func(o *Options) { o.HostsFile = "" }},
		{"missing list", func(o *Options) { o.HostsFile = filepath.Join(t.TempDir(), "missing") }},
		{"command and file", func(o *Options) { o.Command = "a"; o.CommandFile = list }},
		{"bad client", func(o *Options) { o.Client = "putty" }},
		{"bad policy", func(o *Options) { o.HostKeyPolicy = "trust" }},
		{"zero port", func(o *Options) { o.LegacyPort = 0 }},
		{"zero timeout", func(o *Options) { o.CommandTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			options := valid()
			tt.modify(options)
			require.Error(t, options.validateOptions())
		})
	}
}

func TestReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out := &bytes.Buffer{}
	rep, err := newReporter(aurora.New(aurora.WithColors(false)), out, path)
	require.NoError(t, err)

	ok := types.HostOutcome{Host: "r1", Transport: types.TransportSecure, Reached: true, Authenticated: true}
	ok.Append(types.NewCommandResult("r1", "show version", "IOS 15.2\nuptime 3 weeks", time.Second))
	ok.Append(types.NewCommandResult("r1", "clear counters", "", time.Second))
	timedOut := types.NewCommandResult("r1", "show tech", "", time.Second)
	timedOut.Status = types.StatusTimedOut
	ok.Append(timedOut)
	elevation := types.NewCommandResult("r1", "enable", "", 0)
	elevation.Elevation = true
	ok.Append(elevation)
	rep.Report(ok)

	rep.Report(types.HostOutcome{Host: "r2", Error: "no ssh or telnet port open"})
	rep.Report(types.HostOutcome{
		Host:      "r3",
		Transport: types.TransportLegacy,
		Reached:   true,
		Failure:   types.FailureAuthentication,
		Diagnosis: types.DiagnosisAlive,
		Error:     "credentials rejected",
	})
	require.NoError(t, rep.Close())

	console := out.String()
	require.Contains(t, console, "[r1] SECURE authenticated\n")
	require.Contains(t, console, "  > show version\n    IOS 15.2\n    uptime 3 weeks\n")
	require.Contains(t, console, "  > clear counters (no output)\n")
	require.Contains(t, console, "  > show tech (timed out)\n")
	require.Contains(t, console, "  > enable (elevation requested)\n")
	require.Contains(t, console, "[r2] unreachable: no ssh or telnet port open\n")
	require.Contains(t, console, "[r3] LEGACY authentication failed: credentials rejected (host alive but access denied or firewalled)\n")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	require.Equal(t, "r1", gjson.Get(lines[0], "host").String())
	require.Equal(t, "SECURE", gjson.Get(lines[0], "transport").String())
	require.Equal(t, "IOS 15.2\nuptime 3 weeks", gjson.Get(lines[0], "results.0.output").String())
	require.Equal(t, "ok", gjson.Get(lines[0], "results.0.status").String())
	require.False(t, gjson.Get(lines[0], "results.1.output").Exists())
	require.Equal(t, "empty", gjson.Get(lines[0], "results.1.status").String())
	require.Equal(t, "timed-out", gjson.Get(lines[0], "results.2.status").String())
	require.True(t, gjson.Get(lines[0], "results.3.elevation").Bool())

	require.False(t, gjson.Get(lines[1], "reached").Bool())
	require.Equal(t, "NONE", gjson.Get(lines[1], "transport").String())

	require.Equal(t, "authentication-failure", gjson.Get(lines[2], "failure").String())
	require.Equal(t, "alive", gjson.Get(lines[2], "diagnosis").String())
	require.False(t, gjson.Get(lines[2], "authenticated").Bool())
}

func TestIndent(t *testing.T) {
	require.Equal(t, "  a\n  b", indent("a\nb", "  "))
}
