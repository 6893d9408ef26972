package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/unihub/unihub/cmd"
)

func main() {
	configureLogLevelFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, cancel,
		func(msg string) { log.Warn().Msg(msg) },
		os.Exit,
	)

	// Program entry point
	cmd.Execute(ctx)
}

// configureLogLevelFromEnv enables debug logging when DEBUG_UNIHUB is set to
// anything but "", "0" or "false"; otherwise logging is disabled.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_UNIHUB") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 2)
	signal.Notify(stopChan, os.Interrupt)
	return stopChan
}

// handleInterrupt cancels the running command on the first interrupt so it can
// close the device store, and exits on the second.
func handleInterrupt(stopChan chan os.Signal, cancel context.CancelFunc, logMsg func(string), exit func(int)) {
	<-stopChan
	logMsg("Interrupt signal received. Stopping...")
	cancel()
	<-stopChan
	logMsg("Second interrupt received. Exiting...")
	exit(1)
}
