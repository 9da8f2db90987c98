package runner

import (
	"github.com/projectdiscovery/fleetx/pkg/version"
	"github.com/projectdiscovery/gologger"
)

const banner = `
   ______          __
  / __/ /__ ___ __/ /__ __
 / _// / -_) -_) __/\ \ /
/_/ /_/\__/\__/\__//_\_\
`

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s  %s\n\n", banner, version.GetVersion())
	gologger.Print().Msgf("\t\tuse with caution: commands run on every listed host\n\n")
}
