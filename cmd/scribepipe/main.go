package main

import (
	"os"

	"github.com/scribepipe/scribepipe/cmd/scribepipe/cmd"
	"github.com/scribepipe/scribepipe/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Get().Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
