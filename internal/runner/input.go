package runner

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/projectdiscovery/fleetx/internal/fleetx"
	"github.com/projectdiscovery/mapcidr"
	errorutil "github.com/projectdiscovery/utils/errors"
	fileutil "github.com/projectdiscovery/utils/file"
)

// loadHosts gathers hosts from -target, -list and -inventory, in that order
func (r *Runner) loadHosts() ([]string, error) {
	lines := append([]string(nil), r.options.Hosts...)

	if r.options.HostsFile != "" {
		file, err := readLines(r.options.HostsFile)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not read host list %s", r.options.HostsFile)
		}
		lines = append(lines, file...)
	}

	if r.options.Inventory != "" {
		f, err := os.Open(r.options.Inventory)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not open inventory %s", r.options.Inventory)
		}
		inventory, err := fleetx.ParseAnsibleInventory(f)
		_ = f.Close()
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not parse inventory %s", r.options.Inventory)
		}
		lines = append(lines, inventory...)
	}

	hosts, err := normalizeHosts(lines, r.options.ExpandCIDR)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("host list is empty")
	}
	return hosts, nil
}

// normalizeHosts trims trailing whitespace and skips blank lines; duplicates
// and order are kept
func normalizeHosts(lines []string, expandCIDR bool) ([]string, error) {
	var hosts []string
	for _, line := range lines {
		host := strings.TrimRightFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\r' || r == '\n'
		})
		if strings.TrimSpace(host) == "" {
			continue
		}
		if expandCIDR && strings.Contains(host, "/") {
			if _, network, err := net.ParseCIDR(host); err == nil {
				ips, err := usableAddresses(host, network)
				if err != nil {
					return nil, errorutil.NewWithErr(err).Msgf("could not expand %s", host)
				}
				hosts = append(hosts, ips...)
				continue
			}
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// usableAddresses expands an ipv4 range without its network and broadcast
// addresses; /31, /32 and ipv6 ranges are kept whole
func usableAddresses(cidr string, network *net.IPNet) ([]string, error) {
	ips, err := mapcidr.IPAddresses(cidr)
	if err != nil {
		return nil, err
	}
	ones, bits := network.Mask.Size()
	if network.IP.To4() == nil || bits-ones < 2 {
		return ips, nil
	}

	broadcast := make(net.IP, len(network.IP))
	copy(broadcast, network.IP)
	for i := range broadcast {
		broadcast[i] |= ^network.Mask[i]
	}

	usable := make([]string, 0, len(ips))
	for _, value := range ips {
		ip := net.ParseIP(value)
		if ip == nil || ip.Equal(network.IP) || ip.Equal(broadcast) {
			continue
		}
		usable = append(usable, value)
	}
	return usable, nil
}

// loadCommands returns the single -command, the lines of -command-file, or
// one command entered interactively
func (r *Runner) loadCommands() ([]string, error) {
	if r.options.Command != "" {
		return []string{r.options.Command}, nil
	}

	if r.options.CommandFile != "" {
		lines, err := readLines(r.options.CommandFile)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not read command file %s", r.options.CommandFile)
		}
		var commands []string
		for _, line := range lines {
			command := strings.TrimRight(line, " \t\r")
			if strings.TrimSpace(command) == "" {
				continue
			}
			commands = append(commands, command)
		}
		if len(commands) == 0 {
			return nil, fmt.Errorf("command file %s is empty", r.options.CommandFile)
		}
		return commands, nil
	}

	command, err := prompt(r.in, r.out, "Command: ")
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not read command")
	}
	if command == "" {
		return nil, fmt.Errorf("no command given")
	}
	return []string{command}, nil
}

func readLines(path string) ([]string, error) {
	ch, err := fileutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for line := range ch {
		lines = append(lines, line)
	}
	return lines, nil
}

// prompt writes label and reads one line
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	_, _ = fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
