package main

import (
	"log/slog"

	"github.com/urbancanopy/treedetect-go/cmd"
	"github.com/urbancanopy/treedetect-go/internal/logging"
)

func main() {
	// Default logger until the configured level is known.
	logging.Init(slog.LevelInfo)

	rootCmd := cmd.RootCommand()
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
