package spawn

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/projectdiscovery/gologger"
	fileutil "github.com/projectdiscovery/utils/file"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultKnownHostsFile returns ~/.ssh/known_hosts
func DefaultKnownHostsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

func (sp *Spawner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if sp.options.HostKeyPolicy == HostKeyInsecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	file := sp.options.KnownHostsFile
	if file == "" {
		file = DefaultKnownHostsFile()
	}
	if file == "" || !fileutil.FileExists(file) {
		if sp.options.HostKeyPolicy == HostKeyStrict {
			return nil, fmt.Errorf("known hosts file %q not found", file)
		}
		return acceptUnknown(nil, sp.options.HostKeyPolicy), nil
	}

	known, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("could not load known hosts: %w", err)
	}
	return acceptUnknown(known, sp.options.HostKeyPolicy), nil
}

// acceptUnknown wraps a known_hosts callback: changed keys are always
// rejected, unknown hosts are accepted with a warning unless policy is strict
func acceptUnknown(known ssh.HostKeyCallback, policy HostKeyPolicy) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if known != nil {
			err := known(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
				return err
			}
			if policy == HostKeyStrict {
				return err
			}
		}
		gologger.Warning().Msgf("accepting unknown host key for %s: %s %s", hostname, key.Type(), ssh.FingerprintSHA256(key))
		return nil
	}
}
