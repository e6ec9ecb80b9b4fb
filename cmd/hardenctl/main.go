package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hardenctl/hardenctl/cmd/hardenctl/commands"
	"github.com/hardenctl/hardenctl/pkg/engine"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 3
)

func main() {
	setupLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels the run; the sequencer stops cleanly between
	// units. A second signal exits immediately.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("interrupt received, stopping after the current unit")
		cancel()
		<-sigChan
		log.Error().Msg("second interrupt, exiting immediately")
		os.Exit(exitInterrupted)
	}()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	log.Error().Err(err).Msg("command failed")

	if engine.IsInterrupted(err) {
		return exitInterrupted
	}
	if commands.IsUsageError(err) {
		return exitUsage
	}
	// Everything else, classified or not, is a runtime failure: an
	// unopenable ledger is not an argument error.
	return exitFatal
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
