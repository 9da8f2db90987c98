package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora/v4"
	"github.com/projectdiscovery/fleetx/pkg/types"
	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
)

// reporter renders host outcomes on the console and optionally as json lines
type reporter struct {
	au  *aurora.Aurora
	out io.Writer

	path    string
	file    *os.File
	encoder *json.Encoder

	hosts         int
	authenticated int
	commands      int
}

func newReporter(au *aurora.Aurora, out io.Writer, path string) (*reporter, error) {
	rep := &reporter{au: au, out: out, path: path}
	if path == "" {
		return rep, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("could not create output file %s", path)
	}
	rep.file = file
	rep.encoder = json.NewEncoder(file)
	return rep, nil
}

// Report renders one finished host
func (rep *reporter) Report(outcome types.HostOutcome) {
	rep.hosts++
	if outcome.Authenticated {
		rep.authenticated++
	}
	rep.commands += len(outcome.Results)

	_, _ = fmt.Fprintln(rep.out, rep.header(outcome))
	for _, result := range outcome.Results {
		_, _ = fmt.Fprintf(rep.out, "  %s %s%s\n", rep.au.Cyan(">"), rep.au.Bold(result.Command), rep.marker(result))
		if result.Output != nil {
			_, _ = fmt.Fprintln(rep.out, indent(*result.Output, "    "))
		}
	}

	if rep.encoder != nil {
		if err := rep.encoder.Encode(outcome); err != nil {
			gologger.Warning().Msgf("could not write outcome of %s: %v", outcome.Host, err)
		}
	}
}

func (rep *reporter) header(outcome types.HostOutcome) string {
	host := rep.au.Bold(fmt.Sprintf("[%s]", outcome.Host))
	switch {
	case !outcome.Reached:
		return fmt.Sprintf("%s %s: %s", host, rep.au.Red("unreachable"), outcome.Error)
	case !outcome.Authenticated:
		line := fmt.Sprintf("%s %s %s: %s", host, outcome.Transport, rep.au.Red(failureLabel(outcome.Failure)), outcome.Error)
		if description := outcome.Diagnosis.Describe(); description != "" {
			line += fmt.Sprintf(" (%s)", rep.au.Yellow(description))
		}
		return line
	default:
		return fmt.Sprintf("%s %s %s", host, outcome.Transport, rep.au.Green("authenticated"))
	}
}

func (rep *reporter) marker(result types.CommandResult) string {
	switch {
	case result.Elevation:
		return " " + rep.au.Yellow("(elevation requested)").String()
	case result.Status == types.StatusTimedOut:
		return " " + rep.au.Red("(timed out)").String()
	case result.Status == types.StatusEmpty:
		return " " + rep.au.Yellow("(no output)").String()
	default:
		return ""
	}
}

func failureLabel(failure types.Failure) string {
	switch failure {
	case types.FailureSpawn:
		return "session failed"
	case types.FailureAuthentication:
		return "authentication failed"
	default:
		return string(failure)
	}
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}

// Close flushes the output file and logs the run summary
func (rep *reporter) Close() error {
	gologger.Info().Msgf("%d host(s) processed, %d authenticated, %d command result(s)", rep.hosts, rep.authenticated, rep.commands)
	if rep.file == nil {
		return nil
	}
	if err := rep.file.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(rep.path); err == nil {
		gologger.Info().Msgf("wrote %s to %s", humanize.Bytes(uint64(info.Size())), rep.path)
	}
	return nil
}
