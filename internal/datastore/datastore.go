// Package datastore persists batch prediction runs to a local sqlite
// database so past runs can be audited without trawling logs.
package datastore

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/urbancanopy/treedetect-go/internal/errors"
)

// Task outcome statuses recorded per task in a batch run.
const (
	OutcomePredicted = "predicted"
	OutcomeSkipped   = "skipped-existing"
	OutcomeFailed    = "failed"
	OutcomeDryRun    = "dry-run"
)

// BatchRun is one invocation of the batch predictor.
type BatchRun struct {
	ID           uint `gorm:"primaryKey"`
	StartedAt    time.Time
	FinishedAt   *time.Time
	Project      string `gorm:"index"`
	View         string
	ModelVersion string
	DryRun       bool
	Predicted    int
	Skipped      int
	Failed       int
}

// TaskOutcome is the per-task result within a run.
type TaskOutcome struct {
	ID         uint  `gorm:"primaryKey"`
	RunID      uint  `gorm:"index"`
	TaskID     int64 `gorm:"index"`
	Status     string
	Detections int
	Error      string
	CreatedAt  time.Time
}

// Store wraps the gorm handle. A nil *Store is valid and makes every method
// a no-op, so callers don't have to branch on whether logging is enabled.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the sqlite run log at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&BatchRun{}, &TaskOutcome{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// BeginRun records the start of a batch run and returns it for later updates.
func (s *Store) BeginRun(project, view, modelVersion string, dryRun bool) (*BatchRun, error) {
	if s == nil {
		return nil, nil
	}
	run := &BatchRun{
		StartedAt:    time.Now(),
		Project:      project,
		View:         view,
		ModelVersion: modelVersion,
		DryRun:       dryRun,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return run, nil
}

// FinishRun stamps the end time and final counters on a run.
func (s *Store) FinishRun(run *BatchRun, predicted, skipped, failed int) error {
	if s == nil || run == nil {
		return nil
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Predicted = predicted
	run.Skipped = skipped
	run.Failed = failed
	if err := s.db.Save(run).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// RecordOutcome appends a per-task outcome row for a run.
func (s *Store) RecordOutcome(run *BatchRun, taskID int64, status string, detections int, taskErr error) error {
	if s == nil || run == nil {
		return nil
	}
	outcome := &TaskOutcome{
		RunID:      run.ID,
		TaskID:     taskID,
		Status:     status,
		Detections: detections,
	}
	if taskErr != nil {
		outcome.Error = taskErr.Error()
	}
	if err := s.db.Create(outcome).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// Outcomes returns all task outcomes of a run in insertion order.
func (s *Store) Outcomes(runID uint) ([]TaskOutcome, error) {
	if s == nil {
		return nil, nil
	}
	var outcomes []TaskOutcome
	if err := s.db.Where("run_id = ?", runID).Order("id").Find(&outcomes).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return outcomes, nil
}
