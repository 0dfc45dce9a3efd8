package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitializePlan verifies every kind starts disabled with its
// cold-start delay.
func TestInitializePlan(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1", Code: "pl216", Name: "World 216", Active: true}, now)

	assert.Equal(t, "s1", plan.ServerID)
	assert.Equal(t, "pl216", plan.ServerCode)
	require.Len(t, plan.Tasks, len(AllKinds()))
	for _, kind := range AllKinds() {
		task := plan.Tasks[kind]
		require.NotNil(t, task, string(kind))
		assert.False(t, task.Enabled, string(kind))
		assert.Equal(t, now.Add(InitialInterval(kind)), task.NextExecutionAt, string(kind))
		assert.Nil(t, task.LastExecutedAt, string(kind))
	}
}

// TestApplyActiveServersAddRemove verifies plan creation for new servers
// and deletion for vanished ones, with surviving plans untouched.
func TestApplyActiveServersAddRemove(t *testing.T) {
	st := NewState()
	now := time.Now()

	added, removed := st.ApplyActiveServers([]ServerInfo{{ID: "s1"}, {ID: "s2"}}, now)
	assert.ElementsMatch(t, []string{"s1", "s2"}, added)
	assert.Empty(t, removed)

	// Mark state on s2 so we can see it survive.
	st.Plans["s2"].Tasks[KindConstruction].Enabled = true

	added, removed = st.ApplyActiveServers([]ServerInfo{{ID: "s2"}, {ID: "s3"}}, now)
	assert.ElementsMatch(t, []string{"s3"}, added)
	assert.ElementsMatch(t, []string{"s1"}, removed)
	require.Contains(t, st.Plans, "s2")
	assert.True(t, st.Plans["s2"].Tasks[KindConstruction].Enabled)
	assert.NotContains(t, st.Plans, "s1")
}

// TestApplyActiveServersRefreshesIdentity verifies code and name track the
// registry on every pass.
func TestApplyActiveServersRefreshesIdentity(t *testing.T) {
	st := NewState()
	now := time.Now()
	st.ApplyActiveServers([]ServerInfo{{ID: "s1", Code: "pl216", Name: "old"}}, now)
	st.ApplyActiveServers([]ServerInfo{{ID: "s1", Code: "pl217", Name: "new", Active: true}}, now)

	plan := st.Plans["s1"]
	assert.Equal(t, "pl217", plan.ServerCode)
	assert.Equal(t, "new", plan.ServerName)
	assert.True(t, plan.Active)
}

// TestApplyActiveServersResetsRotationIndex verifies the index wraps when
// the server list shrinks under it.
func TestApplyActiveServersResetsRotationIndex(t *testing.T) {
	st := NewState()
	now := time.Now()
	st.ApplyActiveServers([]ServerInfo{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}, now)
	st.CurrentServerIndex = 2

	st.ApplyActiveServers([]ServerInfo{{ID: "s1"}}, now)
	assert.Equal(t, 0, st.CurrentServerIndex)
}

// TestUpdateTaskStatesEnableTransition verifies a disabled-to-enabled flip
// assigns a fresh randomized next-execution time from the kind's range.
func TestUpdateTaskStatesEnableTransition(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1"}, now.Add(-time.Hour))
	settings := newFakeSettings()
	settings.set("s1", KindConstruction.EnabledSettingKey(), true)
	policy := NewIntervalPolicy(settings, testLogger())

	UpdateTaskStates(context.Background(), plan, settings, policy, now, testLogger())

	task := plan.Tasks[KindConstruction]
	assert.True(t, task.Enabled)
	assert.True(t, task.NextExecutionAt.After(now.Add(5*time.Minute)) || task.NextExecutionAt.Equal(now.Add(5*time.Minute)))
	assert.False(t, task.NextExecutionAt.After(now.Add(8*time.Minute)))
}

// TestUpdateTaskStatesScavengingEnableUsesFallback verifies scavenging's
// enable transition uses its flat fallback delay, not the generic range.
func TestUpdateTaskStatesScavengingEnableUsesFallback(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1"}, now.Add(-time.Hour))
	settings := newFakeSettings()
	settings.set("s1", KindScavenging.EnabledSettingKey(), true)
	policy := NewIntervalPolicy(settings, testLogger())

	UpdateTaskStates(context.Background(), plan, settings, policy, now, testLogger())

	task := plan.Tasks[KindScavenging]
	assert.True(t, task.Enabled)
	assert.Equal(t, now.Add(ScavengeFallbackDelay), task.NextExecutionAt)
}

// TestUpdateTaskStatesStayingEnabledKeepsTime verifies no rescheduling for
// flags that were already on.
func TestUpdateTaskStatesStayingEnabledKeepsTime(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1"}, now)
	due := now.Add(2 * time.Minute)
	plan.Tasks[KindConstruction].Enabled = true
	plan.Tasks[KindConstruction].NextExecutionAt = due

	settings := newFakeSettings()
	settings.set("s1", KindConstruction.EnabledSettingKey(), true)
	policy := NewIntervalPolicy(settings, testLogger())

	UpdateTaskStates(context.Background(), plan, settings, policy, now, testLogger())
	assert.Equal(t, due, plan.Tasks[KindConstruction].NextExecutionAt)
}

// TestUpdateTaskStatesMissingSettingDisables verifies an absent flag reads
// as disabled without error.
func TestUpdateTaskStatesMissingSettingDisables(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1"}, now)
	plan.Tasks[KindWorldData].Enabled = true

	settings := newFakeSettings()
	policy := NewIntervalPolicy(settings, testLogger())

	UpdateTaskStates(context.Background(), plan, settings, policy, now, testLogger())
	for _, kind := range AllKinds() {
		assert.False(t, plan.Tasks[kind].Enabled, string(kind))
	}
}

// TestUpdateTaskStatesArmyVillage verifies the training village follows
// its setting on every refresh.
func TestUpdateTaskStatesArmyVillage(t *testing.T) {
	now := time.Now()
	plan := InitializePlan(ServerInfo{ID: "s1"}, now)
	settings := newFakeSettings()
	settings.set("s1", KindArmyTraining.EnabledSettingKey(), true)
	settings.set("s1", SettingArmyTrainingVillageID, "12345")
	policy := NewIntervalPolicy(settings, testLogger())

	UpdateTaskStates(context.Background(), plan, settings, policy, now, testLogger())
	assert.Equal(t, "12345", plan.Tasks[KindArmyTraining].VillageID)
}
