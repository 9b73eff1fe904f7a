// Package cmd assembles the command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/urbancanopy/treedetect-go/cmd/predict"
	"github.com/urbancanopy/treedetect-go/cmd/serve"
	"github.com/urbancanopy/treedetect-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "treedetect",
		Short: "Tree detection ML backend for Label Studio",
		Long: "Serves tree-detection model predictions to a Label Studio instance,\n" +
			"either as a long-running ML backend or as a one-shot batch run over\n" +
			"a project's tasks.",
	}

	// Settings are read lazily so subcommand flags bound to viper are in
	// place before the environment is evaluated.
	load := func() (*conf.Settings, error) {
		return conf.Load(envFile)
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Path to an environment file loaded before reading configuration")

	rootCmd.AddCommand(
		serve.Command(load),
		predict.Command(load),
	)

	return rootCmd
}
