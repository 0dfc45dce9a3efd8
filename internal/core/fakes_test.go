package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSettings is an in-memory Settings implementation keyed by
// (serverID, key). The empty serverID holds global values.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]map[string]any
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: make(map[string]map[string]any)}
}

func (f *fakeSettings) set(serverID, key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[serverID] == nil {
		f.values[serverID] = make(map[string]any)
	}
	f.values[serverID][key] = value
}

func (f *fakeSettings) get(serverID, key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[serverID][key]
	return v, ok
}

func (f *fakeSettings) GetBool(ctx context.Context, serverID, key string) (bool, bool) {
	v, ok := f.get(serverID, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (f *fakeSettings) GetInt(ctx context.Context, serverID, key string) (int, bool) {
	v, ok := f.get(serverID, key)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

func (f *fakeSettings) GetString(ctx context.Context, serverID, key string) (string, bool) {
	v, ok := f.get(serverID, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (f *fakeSettings) GetGlobalBool(ctx context.Context, key string) (bool, bool) {
	return f.GetBool(ctx, "", key)
}

func (f *fakeSettings) SetSetting(ctx context.Context, serverID, key string, value any) error {
	f.set(serverID, key, value)
	return nil
}

// fakeRegistry returns a canned server list or error.
type fakeRegistry struct {
	mu      sync.Mutex
	servers []ServerInfo
	err     error
}

func (f *fakeRegistry) GetActiveServers(ctx context.Context) ([]ServerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ServerInfo, len(f.servers))
	copy(out, f.servers)
	return out, nil
}

// fakeOps counts calls and returns injected results per operation.
type fakeOps struct {
	mu sync.Mutex

	constructionErr error
	scavengeData    *ScavengingTimeData
	scavengeErr     error
	miniIndex       int
	miniErr         error
	playerIndex     int
	playerErr       error
	trainErr        error
	worldErr        error
	supportErr      error
	unitsErr        error

	calls map[string]int
}

func newFakeOps() *fakeOps {
	return &fakeOps{calls: make(map[string]int)}
}

func (f *fakeOps) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeOps) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeOps) ProcessConstructionQueue(ctx context.Context, serverID string) error {
	f.record("construction")
	return f.constructionErr
}

func (f *fakeOps) DispatchScavenging(ctx context.Context, serverID string) (*ScavengingTimeData, error) {
	f.record("scavenging")
	return f.scavengeData, f.scavengeErr
}

func (f *fakeOps) RunMiniAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error) {
	f.record("miniAttacks")
	if f.miniErr != nil {
		return nextTargetIndex, f.miniErr
	}
	return f.miniIndex, nil
}

func (f *fakeOps) RunPlayerAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error) {
	f.record("playerAttacks")
	if f.playerErr != nil {
		return nextTargetIndex, f.playerErr
	}
	return f.playerIndex, nil
}

func (f *fakeOps) TrainArmy(ctx context.Context, serverID, villageID string) error {
	f.record("armyTraining")
	return f.trainErr
}

func (f *fakeOps) SyncWorldData(ctx context.Context, serverID string) error {
	f.record("worldData")
	return f.worldErr
}

func (f *fakeOps) SendSupport(ctx context.Context, serverID string, payload SupportPayload) error {
	f.record("sendSupport")
	return f.supportErr
}

func (f *fakeOps) FetchVillageUnits(ctx context.Context, serverID string, payload VillageUnitsPayload) (map[string]map[string]int, error) {
	f.record("fetchVillageUnits")
	if f.unitsErr != nil {
		return nil, f.unitsErr
	}
	return map[string]map[string]int{}, nil
}

type loggedExecution struct {
	rec         ExecutionRecord
	endedAt     time.Time
	status      ExecutionStatus
	description string
	closed      bool
}

// fakeExecLog records executions in memory.
type fakeExecLog struct {
	mu    sync.Mutex
	execs []*loggedExecution
	byID  map[string]*loggedExecution
	next  int
	err   error
}

func newFakeExecLog() *fakeExecLog {
	return &fakeExecLog{byID: make(map[string]*loggedExecution)}
}

func (f *fakeExecLog) LogExecution(ctx context.Context, rec ExecutionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.next++
	id := fmt.Sprintf("exec-%d", f.next)
	entry := &loggedExecution{rec: rec}
	f.execs = append(f.execs, entry)
	f.byID[id] = entry
	return id, nil
}

func (f *fakeExecLog) UpdateExecutionLog(ctx context.Context, id string, endedAt time.Time, status ExecutionStatus, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.byID[id]
	if !ok {
		return ErrServerNotFound
	}
	entry.endedAt = endedAt
	entry.status = status
	entry.description = description
	entry.closed = true
	return nil
}

func (f *fakeExecLog) last() *loggedExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.execs) == 0 {
		return nil
	}
	return f.execs[len(f.execs)-1]
}

type loggedActivity struct {
	executionID string
	serverID    string
	event       ActivityEvent
	message     string
}

// fakeActivityLog records activity events in memory.
type fakeActivityLog struct {
	mu     sync.Mutex
	events []loggedActivity
}

func (f *fakeActivityLog) LogActivity(ctx context.Context, executionID, serverID string, event ActivityEvent, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, loggedActivity{executionID, serverID, event, message})
	return nil
}

func (f *fakeActivityLog) last() *loggedActivity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return &f.events[len(f.events)-1]
}

// recordingMetrics captures metric observations.
type recordingMetrics struct {
	mu         sync.Mutex
	executions []string
	pending    int
	servers    int
}

func (m *recordingMetrics) RecordExecution(kind string, status ExecutionStatus, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, kind+":"+string(status))
}

func (m *recordingMetrics) SetPendingManualTasks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = n
}

func (m *recordingMetrics) SetActiveServers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = n
}

// fakeClock reads a settable time and records every timer it hands out.
// Timers only fire when a test fires them, so scheduling stays under the
// test's control.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) timerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) timerAt(i int) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.timers) {
		return nil
	}
	return c.timers[i]
}

type fakeTimer struct {
	d  time.Duration
	ch chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool          { return true }

// fire delivers the tick; the buffered channel keeps this non-blocking
// even when the receiving loop has already moved on.
func (t *fakeTimer) fire(at time.Time) { t.ch <- at }
