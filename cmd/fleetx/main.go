package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projectdiscovery/fleetx/internal/runner"
	"github.com/projectdiscovery/gologger"
)

func main() {
	options := runner.ParseOptions()
	fleetxRunner, err := runner.NewRunner(options)
	if err != nil {
		gologger.Fatal().Msgf("Could not create runner: %s\n", err)
	}
	defer fleetxRunner.Close()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup close handler
	go func() {
		<-c
		fmt.Println("\r- Ctrl+C pressed in Terminal, stopping after the current step...")
		cancel()
	}()

	err = fleetxRunner.Run(ctx)
	if errors.Is(err, runner.ErrDeclined) {
		gologger.Info().Msgf("Nothing was run")
		return
	}
	if err != nil {
		gologger.Fatal().Msgf("Could not run fleetx: %s\n", err)
	}
}
