package spawn

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ziutek/telnet"
	"golang.org/x/crypto/ssh"
)

const (
	terminalType   = "xterm"
	terminalRows   = 40
	terminalColumn = 512
)

// legacyAlgorithms extends the defaults with what old network devices still offer
var legacyAlgorithms = ssh.Config{
	Ciphers: []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-cbc",
		"3des-cbc",
	},
	KeyExchanges: []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
	},
}

// sshConn is an interactive shell channel with a pseudo-terminal
type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (c *sshConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshConn) Close() error {
	_ = c.session.Close()
	return c.client.Close()
}

func (sp *Spawner) clientConfig() (*ssh.ClientConfig, error) {
	callback, err := sp.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	password := sp.options.Password
	return &ssh.ClientConfig{
		User: sp.options.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: callback,
		Timeout:         sp.options.DialTimeout,
		Config:          legacyAlgorithms,
	}, nil
}

func (sp *Spawner) dialSecure(ctx context.Context, host string) (*sshConn, error) {
	config, err := sp.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	addr := address(host, sp.options.SecurePort)
	netConn, err := sp.dialer(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	if sp.options.DialTimeout > 0 {
		_ = netConn.SetDeadline(time.Now().Add(sp.options.DialTimeout))
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, classify(err)
	}
	_ = netConn.SetDeadline(time.Time{})
	client := ssh.NewClient(clientConn, chans, reqs)

	conn, err := openShell(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	return conn, nil
}

func openShell(client *ssh.Client) (*sshConn, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("could not open session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(terminalType, terminalRows, terminalColumn, modes); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("request for pseudo terminal failed: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()
		return nil, err
	}
	if err := sess.Shell(); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("could not start shell: %w", err)
	}
	return &sshConn{client: client, session: sess, stdin: stdin, stdout: stdout}, nil
}

// classify separates rejected credentials from other handshake failures
func classify(err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", ErrSpawn, err)
}

func (sp *Spawner) dialLegacy(ctx context.Context, host string) (*telnet.Conn, error) {
	netConn, err := sp.dialer(ctx, "tcp", address(host, sp.options.LegacyPort))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	conn, err := telnet.NewConn(netConn)
	if err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	conn.SetUnixWriteMode(true)
	return conn, nil
}
