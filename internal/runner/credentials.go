package runner

import (
	"fmt"
	"strings"

	errorutil "github.com/projectdiscovery/utils/errors"
	"golang.org/x/term"
)

// resolveCredentials completes the username and password from the
// environment or the terminal. The password only lives in memory.
func (r *Runner) resolveCredentials() error {
	if r.username == "" {
		username, err := prompt(r.in, r.out, "Username: ")
		if err != nil {
			return errorutil.NewWithErr(err).Msgf("could not read username")
		}
		r.username = username
	}
	if r.username == "" {
		return fmt.Errorf("no username given")
	}

	if r.password != "" {
		return nil
	}
	if r.stdin == nil || !term.IsTerminal(int(r.stdin.Fd())) {
		return fmt.Errorf("no password given, set FLEETX_PASSWORD or run from a terminal")
	}
	_, _ = fmt.Fprint(r.out, "Password: ")
	password, err := term.ReadPassword(int(r.stdin.Fd()))
	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not read password")
	}
	r.password = string(password)
	return nil
}

// confirm shows what is about to run and asks for approval
func (r *Runner) confirm() (bool, error) {
	_, _ = fmt.Fprintf(r.out, "About to run %d command(s) on %d host(s) as %s (%s platform):\n", len(r.commands), len(r.hosts), r.username, r.options.Platform)
	for _, command := range r.commands {
		_, _ = fmt.Fprintf(r.out, "  %s\n", command)
	}
	answer, err := prompt(r.in, r.out, "Continue? [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
