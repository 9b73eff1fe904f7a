// Package predict implements the one-shot batch prediction subcommand.
package predict

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/urbancanopy/treedetect-go/internal/batch"
	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/datastore"
	"github.com/urbancanopy/treedetect-go/internal/errors"
	"github.com/urbancanopy/treedetect-go/internal/labelstudio"
	"github.com/urbancanopy/treedetect-go/internal/logging"
	"github.com/urbancanopy/treedetect-go/internal/spaces"
	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

// batchLogFile receives the detailed per-task log of a run, keeping the
// terminal free for the progress bar.
const batchLogFile = "predict.log"

// Command creates the predict subcommand.
func Command(load func() (*conf.Settings, error)) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Create predictions for every unpredicted task in a project",
		Long: "Pages through the project's tasks via the Label Studio API and posts\n" +
			"a model prediction for each task that has none yet. Tasks with\n" +
			"existing predictions are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			return runPredict(cmd, settings, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Run inference but do not create predictions in Label Studio")
	cmd.Flags().Int("page-size", 0, "Tasks fetched per API page")
	_ = viper.BindPFlag("labelstudio.pagesize", cmd.Flags().Lookup("page-size"))

	return cmd
}

func runPredict(cmd *cobra.Command, settings *conf.Settings, dryRun bool) error {
	if err := settings.ValidateBatch(); err != nil {
		return err
	}

	level := logging.ParseLevel(settings.EffectiveLogLevel())
	logging.Init(level)
	if err := errors.EnableTelemetry(settings.SentryDSN, settings.Model.Version); err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer errors.FlushTelemetry(2 * time.Second)

	// Per-task details go to the run log file, not the terminal. Component
	// loggers follow the default, so this captures the whole run.
	fileLogger, closeLog, err := logging.NewFileLogger(batchLogFile, "", level)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	slog.SetDefault(fileLogger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *datastore.Store
	if settings.RunLogPath != "" {
		store, err = datastore.Open(settings.RunLogPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
	}

	fetcher, err := spaces.New(ctx, settings)
	if err != nil {
		return err
	}

	pterm.Info.Println("Loading detection model")
	detector, err := yolo.New(settings)
	if err != nil {
		return err
	}

	ls := labelstudio.NewClient(settings.LabelStudio.URL, settings.LabelStudio.AccessToken)

	runner := batch.NewRunner(settings, ls, detector, fetcher, store)
	runner.DryRun = dryRun
	runner.ShowProgress = true

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		pterm.Info.Printfln("Dry run: %d predictions would be created, %d skipped, %d failed",
			summary.Predicted, summary.Skipped, summary.Failed)
	} else {
		pterm.Success.Printfln("Created %d predictions, skipped %d, failed %d",
			summary.Predicted, summary.Skipped, summary.Failed)
	}
	return nil
}
