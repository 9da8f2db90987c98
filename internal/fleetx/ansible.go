package fleetx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseAnsibleInventory reads the hosts of an INI style Ansible inventory.
// Group headers, comments and variables other than ansible_host are ignored;
// ranges such as r[1:3] and sw[a:c] are expanded. Hosts keep file order.
func ParseAnsibleInventory(r io.Reader) ([]string, error) {
	var hosts []string
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines, comments, and group headers
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "[") {
			continue
		}

		parsed, err := parseHostLine(line)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, parsed...)
	}

	return hosts, scanner.Err()
}

// parseHostLine parses a single line from an Ansible inventory file
func parseHostLine(line string) ([]string, error) {
	fields := strings.Fields(line)
	pattern := fields[0]

	for _, v := range fields[1:] {
		kv := strings.SplitN(v, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid host variable %q in line %q", v, line)
		}
		if strings.TrimSpace(kv[0]) == "ansible_host" {
			// an explicit address wins over the inventory name
			return []string{strings.Trim(strings.TrimSpace(kv[1]), `'"`)}, nil
		}
	}

	start := strings.Index(pattern, "[")
	end := strings.Index(pattern, "]")
	if start < 0 && end < 0 {
		return []string{pattern}, nil
	}
	if start <= 0 || end < start {
		return nil, fmt.Errorf("invalid range pattern %q", pattern)
	}
	return expandRange(pattern[:start], pattern[start+1:end], pattern[end+1:])
}

// expandRange expands the [start:end] or [start:end:step] part of a host pattern
func expandRange(prefix, bounds, suffix string) ([]string, error) {
	parts := strings.Split(bounds, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid range [%s]", bounds)
	}

	// Default increment is 1 if not specified
	increment := 1
	if len(parts) == 3 {
		var err error
		increment, err = strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid increment: %v", err)
		}
		if increment <= 0 {
			return nil, fmt.Errorf("increment must be positive")
		}
	}

	var hosts []string
	startNum, startErr := strconv.Atoi(parts[0])
	endNum, endErr := strconv.Atoi(parts[1])
	switch {
	case startErr == nil && endErr == nil:
		// zero padded bounds keep their width, web[01:03] gives web01
		width := 0
		if strings.HasPrefix(parts[0], "0") && len(parts[0]) > 1 {
			width = len(parts[0])
		}
		for i := startNum; i <= endNum; i += increment {
			hosts = append(hosts, fmt.Sprintf("%s%0*d%s", prefix, width, i, suffix))
		}
	case len(parts[0]) == 1 && len(parts[1]) == 1:
		for c := int(parts[0][0]); c <= int(parts[1][0]); c += increment {
			hosts = append(hosts, fmt.Sprintf("%s%c%s", prefix, rune(c), suffix))
		}
	default:
		return nil, fmt.Errorf("invalid range format: must be numeric or single letters")
	}
	return hosts, nil
}
