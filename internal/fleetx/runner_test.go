package fleetx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/projectdiscovery/fleetx/pkg/auth"
	"github.com/projectdiscovery/fleetx/pkg/catalog"
	"github.com/projectdiscovery/fleetx/pkg/executor"
	"github.com/projectdiscovery/fleetx/pkg/session"
	"github.com/projectdiscovery/fleetx/pkg/session/scripted"
	"github.com/projectdiscovery/fleetx/pkg/spawn"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/projectdiscovery/gologger/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, host string) types.TransportKind {
	args := m.Called(host)
	return args.Get(0).(types.TransportKind)
}

type mockPinger struct {
	mock.Mock
}

func (m *mockPinger) Check(ctx context.Context, host string) types.Diagnosis {
	args := m.Called(host)
	return args.Get(0).(types.Diagnosis)
}

// fakeSpawner opens scripted sessions built per host
type fakeSpawner struct {
	devices map[string]func() *scripted.Conn
	errors  map[string]error
	spawned []string
	conns   []*scripted.Conn
}

func (f *fakeSpawner) Spawn(ctx context.Context, host string, transport types.TransportKind) (*session.Session, error) {
	f.spawned = append(f.spawned, host)
	if err, ok := f.errors[host]; ok {
		return nil, err
	}
	device, ok := f.devices[host]
	if !ok {
		return nil, fmt.Errorf("%w: no device %s", spawn.ErrSpawn, host)
	}
	conn := device()
	f.conns = append(f.conns, conn)
	return session.New(host, transport, conn), nil
}

// router answers show version with a three line banner
func router(password string) func() *scripted.Conn {
	return func() *scripted.Conn {
		return scripted.New("Password: ", scripted.Step{Expect: password, Reply: "\r\nr1#"}).
			Rule("show version", "show version\r\nCisco IOS XE Software, Version 17.3.4\r\nCopyright (c) 1986-2021 by Cisco Systems\r\nr1 uptime is 4 weeks\r\nr1#").
			Rule("show clock", "show clock\r\n*12:00:00.000 UTC Mon Jan 1 2024\r\nr1#").
			Rule("show tech-support", "show tech-support\r\n --More-- ")
	}
}

func newTestRunner(prober Prober, spawner Spawner, pinger Pinger, commandTimeout time.Duration) *Runner {
	entry := catalog.RouterEntry()
	authenticator := auth.New(entry, 500*time.Millisecond)
	components := Components{
		Prober:        prober,
		Spawner:       spawner,
		Authenticator: authenticator,
		Executor:      executor.New(entry, authenticator, commandTimeout, "secret"),
	}
	if pinger != nil {
		components.Pinger = pinger
	}
	return NewWith(components, "secret")
}

func TestRunShowVersion(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", "r1").Return(types.TransportSecure)
	prober.On("Probe", "r2").Return(types.TransportNone)
	spawner := &fakeSpawner{devices: map[string]func() *scripted.Conn{"r1": router("secret")}}

	r := newTestRunner(prober, spawner, nil, time.Second)
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r1", "r2"}, Commands: []string{"show version"}})
	require.Len(t, outcomes, 2)

	r1 := outcomes[0]
	assert.Equal(t, "r1", r1.Host)
	assert.True(t, r1.Reached)
	assert.True(t, r1.Authenticated)
	require.Len(t, r1.Results, 1)
	assert.Equal(t, types.StatusOk, r1.Results[0].Status)
	assert.Equal(t, "Cisco IOS XE Software, Version 17.3.4\nCopyright (c) 1986-2021 by Cisco Systems\nr1 uptime is 4 weeks", r1.Results[0].Text())
	assert.NotContains(t, r1.Results[0].Text(), "show version")

	r2 := outcomes[1]
	assert.Equal(t, "r2", r2.Host)
	assert.False(t, r2.Reached)
	assert.False(t, r2.Authenticated)
	assert.Equal(t, types.FailureTransportUnavailable, r2.Failure)
	assert.Empty(t, r2.Results)

	assert.Equal(t, []string{"r1"}, spawner.spawned)
	prober.AssertExpectations(t)
}

func TestRunUnreachableHostFirst(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", "r1").Return(types.TransportSecure)
	prober.On("Probe", "r2").Return(types.TransportNone)
	spawner := &fakeSpawner{devices: map[string]func() *scripted.Conn{"r1": router("secret")}}

	r := newTestRunner(prober, spawner, nil, time.Second)
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r2", "r1"}, Commands: []string{"show clock"}})
	require.Len(t, outcomes, 2)

	assert.False(t, outcomes[0].Reached)
	assert.True(t, outcomes[1].Authenticated)
	require.Len(t, outcomes[1].Results, 1)
	assert.Equal(t, "*12:00:00.000 UTC Mon Jan 1 2024", outcomes[1].Results[0].Text())
}

func TestRunSpawnFailureIsIsolated(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything).Return(types.TransportSecure)
	pinger := &mockPinger{}
	pinger.On("Check", "r1").Return(types.DiagnosisUnreachable)
	pinger.On("Check", "r2").Return(types.DiagnosisAlive)
	spawner := &fakeSpawner{
		devices: map[string]func() *scripted.Conn{"r3": router("secret")},
		errors: map[string]error{
			"r1": fmt.Errorf("%w: could not start ssh", spawn.ErrSpawn),
			"r2": fmt.Errorf("%w: unable to authenticate", spawn.ErrAuthentication),
		},
	}

	r := newTestRunner(prober, spawner, pinger, time.Second)
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r1", "r2", "r3"}, Commands: []string{"show clock"}})
	require.Len(t, outcomes, 3)

	assert.Equal(t, types.FailureSpawn, outcomes[0].Failure)
	assert.Equal(t, types.DiagnosisUnreachable, outcomes[0].Diagnosis)
	assert.True(t, outcomes[0].Reached)

	assert.Equal(t, types.FailureAuthentication, outcomes[1].Failure)
	assert.Equal(t, types.DiagnosisAlive, outcomes[1].Diagnosis)

	assert.True(t, outcomes[2].Authenticated)
	require.Len(t, outcomes[2].Results, 1)
	assert.Equal(t, types.StatusOk, outcomes[2].Results[0].Status)
	pinger.AssertExpectations(t)
}

func TestRunLoginFailure(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything).Return(types.TransportSecure)
	pinger := &mockPinger{}
	pinger.On("Check", "r1").Return(types.DiagnosisAlive)
	spawner := &fakeSpawner{devices: map[string]func() *scripted.Conn{
		"r1": func() *scripted.Conn {
			return scripted.New("Password: ", scripted.Step{Expect: "*", Reply: "\r\n% Access denied\r\n", Hangup: true})
		},
		"r2": router("secret"),
	}}

	r := newTestRunner(prober, spawner, pinger, time.Second)
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r1", "r2"}, Commands: []string{"show clock"}})
	require.Len(t, outcomes, 2)

	assert.True(t, outcomes[0].Reached)
	assert.False(t, outcomes[0].Authenticated)
	assert.Equal(t, types.FailureAuthentication, outcomes[0].Failure)
	assert.Equal(t, types.DiagnosisAlive, outcomes[0].Diagnosis)
	assert.Contains(t, outcomes[0].Error, auth.ErrCredentialsRejected.Error())
	assert.Empty(t, outcomes[0].Results)

	assert.True(t, outcomes[1].Authenticated)
	for _, conn := range spawner.conns {
		assert.True(t, conn.Closed())
	}
}

func TestRunCommandTimeoutContinues(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", "r1").Return(types.TransportSecure)
	spawner := &fakeSpawner{devices: map[string]func() *scripted.Conn{"r1": router("secret")}}

	r := newTestRunner(prober, spawner, nil, 200*time.Millisecond)
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r1"}, Commands: []string{"show tech-support", "show clock", "end"}})
	require.Len(t, outcomes, 1)

	results := outcomes[0].Results
	require.Len(t, results, 3)
	assert.Equal(t, types.StatusTimedOut, results[0].Status)
	assert.Equal(t, types.StatusOk, results[1].Status)
	assert.Equal(t, "*12:00:00.000 UTC Mon Jan 1 2024", results[1].Text())
	// "end" shares the elevation prefix
	assert.True(t, results[2].Elevation)
	assert.Equal(t, types.StatusEmpty, results[2].Status)
}

func TestRunDuplicateHosts(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", "r1").Return(types.TransportSecure).Twice()
	spawner := &fakeSpawner{devices: map[string]func() *scripted.Conn{"r1": router("secret")}}

	var streamed []string
	r := newTestRunner(prober, spawner, nil, time.Second)
	r.OnOutcome = func(outcome types.HostOutcome) {
		streamed = append(streamed, outcome.Host)
	}
	outcomes := r.Run(context.Background(), Session{Hosts: []string{"r1", "r1"}, Commands: []string{"show clock"}})

	require.Len(t, outcomes, 2)
	assert.Equal(t, outcomes[0].Results[0].Text(), outcomes[1].Results[0].Text())
	assert.Equal(t, []string{"r1", "r1"}, streamed)
	assert.Equal(t, []string{"r1", "r1"}, spawner.spawned)
	prober.AssertExpectations(t)
}

func TestRunCancelled(t *testing.T) {
	prober := &mockProber{}
	spawner := &fakeSpawner{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(prober, spawner, nil, time.Second)
	outcomes := r.Run(ctx, Session{Hosts: []string{"r1", "r2"}, Commands: []string{"show clock"}})
	assert.Empty(t, outcomes)
	prober.AssertNotCalled(t, "Probe", mock.Anything)
}

func TestNewUnknownPlatform(t *testing.T) {
	config := DefaultConfig()
	config.Platform = types.Platform("vms")

	_, err := New(config)
	require.ErrorIs(t, err, catalog.ErrUnknownPlatform)

	config.Platform = types.PlatformUnix
	r, err := New(config)
	require.NoError(t, err)
	assert.NotNil(t, r.components.Pinger)
}

// captureWriter collects formatted log lines
type captureWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *captureWriter) Write(data []byte, level levels.Level) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lines = append(w.lines, string(data))
}

func (w *captureWriter) count(substr string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for _, line := range w.lines {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestRunOutcomeDumpFollowsLogLevel(t *testing.T) {
	w := &captureWriter{}
	gologger.DefaultLogger.SetWriter(w)
	t.Cleanup(func() {
		gologger.DefaultLogger.SetWriter(writer.NewCLI())
		gologger.DefaultLogger.SetMaxLevel(levels.LevelInfo)
	})

	prober := &mockProber{}
	prober.On("Probe", "r2").Return(types.TransportNone)
	r := newTestRunner(prober, &fakeSpawner{}, nil, time.Second)
	work := Session{Hosts: []string{"r2"}, Commands: []string{"show version"}}

	gologger.DefaultLogger.SetMaxLevel(levels.LevelInfo)
	r.Run(context.Background(), work)
	assert.Zero(t, w.count("outcome: "))

	gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	r.Run(context.Background(), work)
	assert.Equal(t, 1, w.count("outcome: "))
	assert.Equal(t, 1, w.count("transport-unavailable"))
}
