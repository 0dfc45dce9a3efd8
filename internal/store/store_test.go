package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := Open(context.Background(), t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.DB.Close() })
	return st
}

// TestOpenIdempotent verifies reopening the same state dir re-runs no
// migrations and keeps data.
func TestOpenIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := Open(context.Background(), dir, logger)
	require.NoError(t, err)
	require.NoError(t, st.SetSetting(context.Background(), "s1", "probe", true))
	st.DB.Close()

	st, err = Open(context.Background(), dir, logger)
	require.NoError(t, err)
	defer st.DB.Close()

	v, ok := st.GetBool(context.Background(), "s1", "probe")
	assert.True(t, ok)
	assert.True(t, v)
}

// TestSettingsRoundTrip covers typed getters and the global scope.
func TestSettingsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetSetting(ctx, "s1", "autoScavengingEnabled", true))
	require.NoError(t, st.SetSetting(ctx, "s1", "miniAttacksIntervalMinMinutes", 12))
	require.NoError(t, st.SetSetting(ctx, "s1", "armyTrainingVillageId", "9981"))
	require.NoError(t, st.SetSetting(ctx, "", "multiServerOrchestratorEnabled", true))

	b, ok := st.GetBool(ctx, "s1", "autoScavengingEnabled")
	assert.True(t, ok)
	assert.True(t, b)

	i, ok := st.GetInt(ctx, "s1", "miniAttacksIntervalMinMinutes")
	assert.True(t, ok)
	assert.Equal(t, 12, i)

	s, ok := st.GetString(ctx, "s1", "armyTrainingVillageId")
	assert.True(t, ok)
	assert.Equal(t, "9981", s)

	g, ok := st.GetGlobalBool(ctx, "multiServerOrchestratorEnabled")
	assert.True(t, ok)
	assert.True(t, g)
}

// TestSettingsMissingKey verifies lookups never error out; missing keys
// come back as ok=false.
func TestSettingsMissingKey(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok := st.GetBool(ctx, "s1", "doesNotExist")
	assert.False(t, ok)
	_, ok = st.GetInt(ctx, "s1", "doesNotExist")
	assert.False(t, ok)
	_, ok = st.GetGlobalBool(ctx, "doesNotExist")
	assert.False(t, ok)
}

// TestSettingsOverwrite verifies upsert semantics.
func TestSettingsOverwrite(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetSetting(ctx, "s1", "autoScavengingEnabled", true))
	require.NoError(t, st.SetSetting(ctx, "s1", "autoScavengingEnabled", false))

	v, ok := st.GetBool(ctx, "s1", "autoScavengingEnabled")
	assert.True(t, ok)
	assert.False(t, v)

	entries, err := st.ListSettings(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestServersRegistry covers upsert, active filtering and the not-found
// path.
func TestServersRegistry(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertServer(ctx, core.ServerInfo{ID: "s1", Code: "pl216", Name: "World 216", Active: true}))
	require.NoError(t, st.UpsertServer(ctx, core.ServerInfo{ID: "s2", Code: "pl217", Name: "World 217", Active: false}))

	active, err := st.GetActiveServers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].ID)

	all, err := st.ListServers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, st.SetServerActive(ctx, "s2", true))
	active, err = st.GetActiveServers(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	assert.ErrorIs(t, st.SetServerActive(ctx, "missing", true), ErrServerNotFound)
	_, err = st.GetServer(ctx, "missing")
	assert.ErrorIs(t, err, ErrServerNotFound)
}

// TestServerUpsertUpdatesRow verifies a second upsert rewrites identity
// fields instead of duplicating.
func TestServerUpsertUpdatesRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertServer(ctx, core.ServerInfo{ID: "s1", Code: "pl216", Name: "old", Active: true}))
	require.NoError(t, st.UpsertServer(ctx, core.ServerInfo{ID: "s1", Code: "pl216", Name: "new", Active: true}))

	server, err := st.GetServer(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new", server.Name)

	all, err := st.ListServers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestExecutionLogLifecycle covers open, close, fetch and filtering.
func TestExecutionLogLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	id, err := st.LogExecution(ctx, core.ExecutionRecord{
		ServerID:  "s1",
		VillageID: "v1",
		Title:     "Scavenging",
		StartedAt: started,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	exec, err := st.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "running", exec.Status)
	assert.Nil(t, exec.EndedAt)
	require.NotNil(t, exec.VillageID)
	assert.Equal(t, "v1", *exec.VillageID)

	ended := started.Add(40 * time.Second)
	require.NoError(t, st.UpdateExecutionLog(ctx, id, ended, core.ExecutionStatusSuccess, "completed"))

	exec, err = st.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(core.ExecutionStatusSuccess), exec.Status)
	require.NotNil(t, exec.EndedAt)
	assert.True(t, exec.EndedAt.Equal(ended))

	assert.ErrorIs(t, st.UpdateExecutionLog(ctx, "missing", ended, core.ExecutionStatusError, "x"), ErrExecutionNotFound)
	_, err = st.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

// TestListExecutionsFilter verifies the optional server filter and limit.
func TestListExecutionsFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, serverID := range []string{"s1", "s1", "s2"} {
		_, err := st.LogExecution(ctx, core.ExecutionRecord{ServerID: serverID, Title: "Construction queue", StartedAt: now})
		require.NoError(t, err)
	}

	all, err := st.ListExecutions(ctx, "", 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	s1Only, err := st.ListExecutions(ctx, "s1", 50, 0)
	require.NoError(t, err)
	assert.Len(t, s1Only, 2)

	limited, err := st.ListExecutions(ctx, "", 1, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestActivityLog covers the write path and the per-server listing.
func TestActivityLog(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	execID, err := st.LogExecution(ctx, core.ExecutionRecord{ServerID: "s1", Title: "Scavenging", StartedAt: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, st.LogActivity(ctx, execID, "s1", core.ActivitySessionExpired, "login page detected"))
	require.NoError(t, st.LogActivity(ctx, "", "s1", core.ActivitySuccess, ""))
	require.NoError(t, st.LogActivity(ctx, "", "s2", core.ActivityError, "boom"))

	activities, err := st.ListActivities(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, activities, 2)

	var withExec *Activity
	for _, a := range activities {
		if a.ExecutionID != nil {
			withExec = a
		}
	}
	require.NotNil(t, withExec)
	assert.Equal(t, execID, *withExec.ExecutionID)
	assert.Equal(t, string(core.ActivitySessionExpired), withExec.Event)
	require.NotNil(t, withExec.Message)
	assert.Equal(t, "login page detected", *withExec.Message)
}
