// Package serve implements the ML backend server subcommand.
package serve

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/urbancanopy/treedetect-go/internal/backend"
	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/errors"
	"github.com/urbancanopy/treedetect-go/internal/logging"
	"github.com/urbancanopy/treedetect-go/internal/observability"
	"github.com/urbancanopy/treedetect-go/internal/spaces"
	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

// Command creates the serve subcommand.
func Command(load func() (*conf.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ML backend HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd, settings)
		},
	}

	cmd.Flags().String("host", "", "Interface to listen on")
	cmd.Flags().Int("port", 0, "Port to listen on")
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runServe(cmd *cobra.Command, settings *conf.Settings) error {
	if err := settings.ValidateServe(); err != nil {
		return err
	}

	logging.Init(logging.ParseLevel(settings.EffectiveLogLevel()))
	if err := errors.EnableTelemetry(settings.SentryDSN, settings.Model.Version); err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer errors.FlushTelemetry(2 * time.Second)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	fetcher, err := spaces.New(ctx, settings)
	if err != nil {
		return err
	}

	detector, err := yolo.New(settings)
	if err != nil {
		return err
	}
	metrics.Detection.ModelLoadedGauge.Set(1)
	slog.Info("detection classes", "labels", detector.Labels())

	server := backend.New(settings, detector, fetcher, metrics)
	return server.Start(ctx)
}
