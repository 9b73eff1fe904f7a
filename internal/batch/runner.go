// Package batch walks a project's task list through the labeling tool API
// and posts model predictions for tasks that don't have any yet. The run is
// strictly sequential, mirroring how annotation projects are backfilled.
package batch

import (
	"context"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/urbancanopy/treedetect-go/internal/conf"
	"github.com/urbancanopy/treedetect-go/internal/datastore"
	"github.com/urbancanopy/treedetect-go/internal/labelstudio"
	"github.com/urbancanopy/treedetect-go/internal/logging"
	"github.com/urbancanopy/treedetect-go/internal/yolo"
)

// Detector runs the model on encoded image bytes.
type Detector interface {
	DetectBytes(ctx context.Context, data []byte) (yolo.Result, error)
	ModelVersion() string
}

// Fetcher resolves task image references to bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Summary is the outcome of one batch run.
type Summary struct {
	Total     int // task count reported by the API before the run
	Predicted int // predictions created (or simulated in dry-run mode)
	Skipped   int // tasks that already had predictions
	Failed    int // tasks whose fetch, inference or POST failed
}

// Runner executes one batch prediction pass over a project.
type Runner struct {
	ls       *labelstudio.Client
	detector Detector
	fetcher  Fetcher
	store    *datastore.Store
	settings *conf.Settings

	// DryRun skips posting predictions back; everything else still runs.
	DryRun bool
	// ShowProgress renders a terminal progress bar. Off in tests.
	ShowProgress bool

	log *slog.Logger
}

// NewRunner assembles a batch runner. store may be nil to disable the run log.
func NewRunner(settings *conf.Settings, ls *labelstudio.Client, detector Detector, fetcher Fetcher, store *datastore.Store) *Runner {
	return &Runner{
		ls:       ls,
		detector: detector,
		fetcher:  fetcher,
		store:    store,
		settings: settings,
		log:      logging.ForService("batch"),
	}
}

// Run pages through the project's tasks until an empty page, predicting each
// task that has no predictions yet. Per-task failures are logged and counted
// but never abort the run; only API pagination failures do.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	ls := r.settings.LabelStudio
	var summary Summary

	total, err := r.ls.CountTasks(ctx, ls.ProjectID, ls.ViewID)
	if err != nil {
		return summary, err
	}
	summary.Total = total
	r.log.Info("starting batch run",
		"project", ls.ProjectID, "view", ls.ViewID, "tasks", total, "dry_run", r.DryRun)

	run, err := r.store.BeginRun(ls.ProjectID, ls.ViewID, r.detector.ModelVersion(), r.DryRun)
	if err != nil {
		return summary, err
	}

	var bar *pterm.ProgressbarPrinter
	if r.ShowProgress && total > 0 {
		// The task count can change underneath the run; the bar is a best
		// effort estimate, not an exact accounting.
		bar, _ = pterm.DefaultProgressbar.WithTotal(total).WithTitle("Predicting").Start()
		defer func() { _, _ = bar.Stop() }()
	}

	for page := 1; ; page++ {
		tasks, err := r.ls.Tasks(ctx, ls.ProjectID, ls.ViewID, page, ls.PageSize)
		if err != nil {
			r.finish(run, &summary)
			return summary, err
		}
		if len(tasks) == 0 {
			break
		}

		for i := range tasks {
			if err := ctx.Err(); err != nil {
				r.finish(run, &summary)
				return summary, err
			}
			r.processTask(ctx, run, &tasks[i], &summary)
			if bar != nil {
				bar.Increment()
			}
		}
	}

	r.finish(run, &summary)
	r.log.Info("batch run done",
		"predicted", summary.Predicted, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (r *Runner) processTask(ctx context.Context, run *datastore.BatchRun, task *labelstudio.Task, summary *Summary) {
	if task.TotalPredictions > 0 {
		r.log.Debug("skipping task, existing predictions", "task", task.ID)
		summary.Skipped++
		r.recordOutcome(run, task.ID, datastore.OutcomeSkipped, 0, nil)
		return
	}

	pred, detections, err := r.predictTask(ctx, task)
	if err != nil {
		r.log.Error("error running model for task", "task", task.ID, "error", err)
		summary.Failed++
		r.recordOutcome(run, task.ID, datastore.OutcomeFailed, 0, err)
		return
	}

	if r.DryRun {
		r.log.Info("dry run, prediction not created",
			"task", task.ID, "detections", detections, "score", pred.Score)
		summary.Predicted++
		r.recordOutcome(run, task.ID, datastore.OutcomeDryRun, detections, nil)
		return
	}

	if err := r.ls.CreatePrediction(ctx, task.ID, r.settings.LabelStudio.ProjectID, pred); err != nil {
		r.log.Error("error creating prediction for task", "task", task.ID, "error", err)
		summary.Failed++
		r.recordOutcome(run, task.ID, datastore.OutcomeFailed, detections, err)
		return
	}

	r.log.Debug("prediction created", "task", task.ID, "detections", detections)
	summary.Predicted++
	r.recordOutcome(run, task.ID, datastore.OutcomePredicted, detections, nil)
}

func (r *Runner) predictTask(ctx context.Context, task *labelstudio.Task) (labelstudio.Prediction, int, error) {
	data, err := r.fetcher.Fetch(ctx, task.Data.Image)
	if err != nil {
		return labelstudio.Prediction{}, 0, err
	}

	result, err := r.detector.DetectBytes(ctx, data)
	if err != nil {
		return labelstudio.Prediction{}, 0, err
	}

	return labelstudio.FromDetections(result, r.detector.ModelVersion()), len(result.Detections), nil
}

func (r *Runner) recordOutcome(run *datastore.BatchRun, taskID int64, status string, detections int, err error) {
	if dbErr := r.store.RecordOutcome(run, taskID, status, detections, err); dbErr != nil {
		r.log.Warn("failed to record task outcome", "task", taskID, "error", dbErr)
	}
}

func (r *Runner) finish(run *datastore.BatchRun, summary *Summary) {
	if err := r.store.FinishRun(run, summary.Predicted, summary.Skipped, summary.Failed); err != nil {
		r.log.Warn("failed to finalize run log", "error", err)
	}
}
