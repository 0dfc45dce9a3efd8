package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnqueueManualTaskReceipt verifies 1-based positions and the
// average-duration wait estimate.
func TestEnqueueManualTaskReceipt(t *testing.T) {
	st := NewState()
	now := time.Now()

	_, r1 := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	assert.Equal(t, 1, r1.QueuePosition)
	assert.Equal(t, time.Duration(0), r1.EstimatedWaitTime)

	_, r2 := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	assert.Equal(t, 2, r2.QueuePosition)
	assert.Equal(t, AverageManualTaskDuration, r2.EstimatedWaitTime)

	_, r3 := st.EnqueueManualTask(ManualSendSupport, "s1", SupportPayload{FromVillageID: "a", TargetVillageID: "b"}, now)
	assert.Equal(t, 3, r3.QueuePosition)
	assert.Equal(t, 2*AverageManualTaskDuration, r3.EstimatedWaitTime)
}

// TestEnqueuePositionCountsOnlyPending verifies terminal tasks do not
// inflate queue positions.
func TestEnqueuePositionCountsOnlyPending(t *testing.T) {
	st := NewState()
	now := time.Now()

	done, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	done.Status = ManualStatusCompleted

	_, receipt := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	assert.Equal(t, 1, receipt.QueuePosition)
}

// TestNextReadyManualTaskFIFO verifies the earliest QueuedAt pending task
// is picked regardless of slice order.
func TestNextReadyManualTaskFIFO(t *testing.T) {
	st := NewState()
	now := time.Now()

	later, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	earlier, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now.Add(-time.Minute))

	picked := st.NextReadyManualTask(now)
	require.NotNil(t, picked)
	assert.Equal(t, earlier.ID, picked.ID)
	assert.NotEqual(t, later.ID, picked.ID)
}

// TestNextReadyManualTaskSkipsUnready verifies future-scheduled and
// non-pending tasks are ignored.
func TestNextReadyManualTaskSkipsUnready(t *testing.T) {
	st := NewState()
	now := time.Now()

	future, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	future.ScheduledFor = now.Add(time.Hour)

	executing, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	executing.Status = ManualStatusExecuting

	assert.Nil(t, st.NextReadyManualTask(now))
}

func TestManualTaskByID(t *testing.T) {
	st := NewState()
	task, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, time.Now())

	assert.Equal(t, task, st.ManualTaskByID(task.ID))
	assert.Nil(t, st.ManualTaskByID("missing"))
}

// TestCleanupManualTasks verifies only terminal tasks past retention are
// dropped; pending and executing survive any age.
func TestCleanupManualTasks(t *testing.T) {
	st := NewState()
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)

	expired, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, old)
	expired.Status = ManualStatusCompleted
	expired.CompletedAt = &old

	failedOld, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, old)
	failedOld.Status = ManualStatusFailed
	failedOld.CompletedAt = &old

	kept, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, recent)
	kept.Status = ManualStatusCompleted
	kept.CompletedAt = &recent

	stale, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, old)
	stale.Status = ManualStatusPending

	removed := st.CleanupManualTasks(ManualTaskRetention, now)
	assert.Equal(t, 2, removed)
	assert.Len(t, st.Queue, 2)
	assert.NotNil(t, st.ManualTaskByID(kept.ID))
	assert.NotNil(t, st.ManualTaskByID(stale.ID))
	assert.Nil(t, st.ManualTaskByID(expired.ID))
	assert.Nil(t, st.ManualTaskByID(failedOld.ID))
}
