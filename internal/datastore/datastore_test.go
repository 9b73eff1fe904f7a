package datastore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run, err := store.BeginRun("7", "42", "tree-yolov5s-test", false)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.NotZero(t, run.ID)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, store.RecordOutcome(run, 11, OutcomePredicted, 3, nil))
	require.NoError(t, store.RecordOutcome(run, 12, OutcomeSkipped, 0, nil))
	require.NoError(t, store.RecordOutcome(run, 13, OutcomeFailed, 0, fmt.Errorf("decode error")))

	require.NoError(t, store.FinishRun(run, 1, 1, 1))

	outcomes, err := store.Outcomes(run.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, int64(11), outcomes[0].TaskID)
	assert.Equal(t, OutcomePredicted, outcomes[0].Status)
	assert.Equal(t, 3, outcomes[0].Detections)
	assert.Equal(t, "decode error", outcomes[2].Error)

	var persisted BatchRun
	require.NoError(t, store.db.First(&persisted, run.ID).Error)
	assert.Equal(t, 1, persisted.Predicted)
	assert.Equal(t, 1, persisted.Skipped)
	assert.Equal(t, 1, persisted.Failed)
	assert.NotNil(t, persisted.FinishedAt)
}

func TestNilStoreIsNoOp(t *testing.T) {
	var store *Store

	run, err := store.BeginRun("7", "", "v1", true)
	require.NoError(t, err)
	assert.Nil(t, run)

	assert.NoError(t, store.RecordOutcome(run, 1, OutcomeDryRun, 0, nil))
	assert.NoError(t, store.FinishRun(run, 0, 0, 0))
	assert.NoError(t, store.Close())

	outcomes, err := store.Outcomes(1)
	require.NoError(t, err)
	assert.Nil(t, outcomes)
}
