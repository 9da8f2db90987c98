package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/creack/pty"
	"github.com/projectdiscovery/gologger"
	"github.com/shirou/gopsutil/v3/process"
)

// ptyConn is the master side of the pseudo-terminal of a client process
type ptyConn struct {
	tty  *os.File
	cmd  *exec.Cmd
	once sync.Once
}

func (c *ptyConn) Read(p []byte) (int, error)  { return c.tty.Read(p) }
func (c *ptyConn) Write(p []byte) (int, error) { return c.tty.Write(p) }

// Close terminates the client and everything it started
func (c *ptyConn) Close() error {
	var err error
	c.once.Do(func() {
		terminate(c.cmd.Process.Pid)
		err = c.tty.Close()
		_ = c.cmd.Wait()
	})
	return err
}

func terminate(pid int) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	children, _ := proc.Children()
	for _, child := range children {
		if err := child.Kill(); err != nil {
			gologger.Debug().Msgf("could not kill process %d: %v", child.Pid, err)
		}
	}
	if err := proc.Kill(); err != nil {
		gologger.Debug().Msgf("could not kill process %d: %v", pid, err)
	}
}

// sshArgs builds the command line of the system ssh client. The client asks
// for the password itself.
func (sp *Spawner) sshArgs(host string) []string {
	args := []string{
		"-l", sp.options.Username,
		"-p", strconv.Itoa(sp.options.SecurePort),
		"-o", "StrictHostKeyChecking=" + strictHostKeyChecking(sp.options.HostKeyPolicy),
		"-o", "PreferredAuthentications=keyboard-interactive,password",
		"-o", "NumberOfPasswordPrompts=1",
	}
	switch {
	case sp.options.HostKeyPolicy == HostKeyInsecure:
		args = append(args, "-o", "UserKnownHostsFile="+os.DevNull)
	case sp.options.KnownHostsFile != "":
		args = append(args, "-o", "UserKnownHostsFile="+sp.options.KnownHostsFile)
	}
	if sp.options.DialTimeout > 0 {
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(int(sp.options.DialTimeout.Seconds()+0.5)))
	}
	return append(args, host)
}

func strictHostKeyChecking(policy HostKeyPolicy) string {
	switch policy {
	case HostKeyStrict:
		return "yes"
	case HostKeyInsecure:
		return "no"
	default:
		return "accept-new"
	}
}

func (sp *Spawner) execSecure(host string) (*ptyConn, error) {
	return sp.start(exec.Command(sp.options.SSHBinary, sp.sshArgs(host)...))
}

func (sp *Spawner) execLegacy(host string) (*ptyConn, error) {
	return sp.start(exec.Command(sp.options.TelnetBinary, host, strconv.Itoa(sp.options.LegacyPort)))
}

func (sp *Spawner) start(cmd *exec.Cmd) (*ptyConn, error) {
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: terminalRows, Cols: terminalColumn})
	if err != nil {
		return nil, fmt.Errorf("%w: could not start %s: %w", ErrSpawn, cmd.Path, err)
	}
	return &ptyConn{tty: tty, cmd: cmd}, nil
}
