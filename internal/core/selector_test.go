package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planWithTask(st *State, serverID string, kind TaskKind, enabled bool, due time.Time) {
	plan, ok := st.Plans[serverID]
	if !ok {
		plan = &ServerPlan{ServerID: serverID, Tasks: make(map[TaskKind]*TaskState)}
		st.Plans[serverID] = plan
	}
	plan.Tasks[kind] = &TaskState{Enabled: enabled, NextExecutionAt: due}
}

// TestSelectNextManualPriority verifies a ready manual task beats even a
// long-overdue recurring task.
func TestSelectNextManualPriority(t *testing.T) {
	st := NewState()
	now := time.Now()
	planWithTask(st, "s1", KindConstruction, true, now.Add(-time.Hour))
	manual, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)

	sel := SelectNext(st, now)
	require.NotNil(t, sel)
	require.True(t, sel.IsManual())
	assert.Equal(t, manual.ID, sel.Manual.ID)
}

// TestSelectNextFallsToRecurringWhenManualUnready verifies a deferred
// manual task does not block recurring work.
func TestSelectNextFallsToRecurringWhenManualUnready(t *testing.T) {
	st := NewState()
	now := time.Now()
	planWithTask(st, "s1", KindConstruction, true, now.Add(time.Minute))
	deferred, _ := st.EnqueueManualTask(ManualFetchVillageUnits, "s1", VillageUnitsPayload{}, now)
	deferred.ScheduledFor = now.Add(time.Hour)

	sel := SelectNext(st, now)
	require.NotNil(t, sel)
	assert.False(t, sel.IsManual())
	assert.Equal(t, KindConstruction, sel.Kind)
}

// TestSelectNextEarliestAcrossServers verifies the globally earliest due
// task wins across servers and kinds.
func TestSelectNextEarliestAcrossServers(t *testing.T) {
	st := NewState()
	now := time.Now()
	planWithTask(st, "s1", KindConstruction, true, now.Add(3*time.Minute))
	planWithTask(st, "s1", KindScavenging, true, now.Add(2*time.Minute))
	planWithTask(st, "s2", KindWorldData, true, now.Add(time.Minute))

	sel := SelectNext(st, now)
	require.NotNil(t, sel)
	assert.Equal(t, "s2", sel.ServerID)
	assert.Equal(t, KindWorldData, sel.Kind)
	assert.Equal(t, now.Add(time.Minute), sel.DueAt)
}

// TestSelectNextSkipsDisabled verifies disabled tasks are invisible even
// when overdue.
func TestSelectNextSkipsDisabled(t *testing.T) {
	st := NewState()
	now := time.Now()
	planWithTask(st, "s1", KindConstruction, false, now.Add(-time.Hour))
	planWithTask(st, "s1", KindScavenging, true, now.Add(time.Minute))

	sel := SelectNext(st, now)
	require.NotNil(t, sel)
	assert.Equal(t, KindScavenging, sel.Kind)
}

// TestSelectNextEmpty verifies nil comes back when there is nothing to
// schedule at all.
func TestSelectNextEmpty(t *testing.T) {
	st := NewState()
	assert.Nil(t, SelectNext(st, time.Now()))

	planWithTask(st, "s1", KindConstruction, false, time.Now())
	assert.Nil(t, SelectNext(st, time.Now()))
}

// TestSelectNextReturnsFutureWork verifies the selector returns the next
// due task even when nothing is due yet, so the loop can arm its timer.
func TestSelectNextReturnsFutureWork(t *testing.T) {
	st := NewState()
	now := time.Now()
	planWithTask(st, "s1", KindArmyTraining, true, now.Add(10*time.Minute))

	sel := SelectNext(st, now)
	require.NotNil(t, sel)
	assert.Equal(t, now.Add(10*time.Minute), sel.DueAt)
}
