package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

// TestCollectorScrape verifies recorded observations show up on the
// /metrics surface.
func TestCollectorScrape(t *testing.T) {
	c := NewCollector()
	c.RecordExecution("scavenging", core.ExecutionStatusSuccess, 12*time.Second)
	c.RecordExecution("scavenging", core.ExecutionStatusError, 3*time.Second)
	c.SetPendingManualTasks(4)
	c.SetActiveServers(2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `plemiona_executions_total{status="success",task="scavenging"} 1`)
	assert.Contains(t, body, `plemiona_executions_total{status="error",task="scavenging"} 1`)
	assert.Contains(t, body, `plemiona_manual_tasks_pending 4`)
	assert.Contains(t, body, `plemiona_active_servers 2`)
	assert.Contains(t, body, "plemiona_execution_duration_seconds")
}

// TestCollectorsIndependent verifies two collectors do not collide on
// registration.
func TestCollectorsIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.SetActiveServers(1)
	b.SetActiveServers(5)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "plemiona_active_servers 5")
}
