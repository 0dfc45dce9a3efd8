package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds orchestrator tunables.
type Config struct {
	// MonitorInterval is the cadence of the monitoring loop that gates the
	// whole subsystem on settings and refreshes the server list.
	MonitorInterval time.Duration
	// ManualRetention is how long terminal manual tasks are kept.
	ManualRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 3 * time.Minute
	}
	if c.ManualRetention <= 0 {
		c.ManualRetention = ManualTaskRetention
	}
	return c
}

// Orchestrator owns the multi-server state and the only two timers in the
// subsystem: the monitoring cron job and the single re-arming scheduling
// timer. All state mutation happens either inside the scheduling loop or
// in public methods that immediately kick the loop, so executions stay
// strictly serialized.
type Orchestrator struct {
	cfg        Config
	settings   Settings
	registry   ServerRegistry
	policy     *IntervalPolicy
	dispatcher *Dispatcher
	clock      Clock
	metrics    Metrics
	logger     *slog.Logger

	mu sync.Mutex // guards st and the loop lifecycle fields
	st *State

	monitor        *cron.Cron
	monitorRunning bool
	baseCtx        context.Context

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	kick       chan struct{}

	execMu sync.Mutex // single-flight: at most one task executes at a time
}

// New constructs an orchestrator. metrics may be nil.
func New(cfg Config, settings Settings, registry ServerRegistry, dispatcher *Dispatcher, policy *IntervalPolicy, clock Clock, metrics Metrics, logger *slog.Logger) *Orchestrator {
	if clock == nil {
		clock = SystemClock
	}
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		settings:   settings,
		registry:   registry,
		policy:     policy,
		dispatcher: dispatcher,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
		st:         NewState(),
		kick:       make(chan struct{}, 1),
	}
}

// StartMonitoring starts the monitoring loop and runs its first pass
// immediately. Safe to call again after the loop tore itself down.
func (o *Orchestrator) StartMonitoring(ctx context.Context) error {
	o.mu.Lock()
	if o.monitorRunning {
		o.mu.Unlock()
		return nil
	}
	o.baseCtx = ctx
	c := cron.New()
	spec := fmt.Sprintf("@every %s", o.cfg.MonitorInterval)
	if _, err := c.AddFunc(spec, func() { o.monitorTick(ctx) }); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("register monitor job: %w", err)
	}
	o.monitor = c
	o.monitorRunning = true
	o.mu.Unlock()

	c.Start()
	o.logger.Info("monitoring started", "interval", o.cfg.MonitorInterval)
	o.monitorTick(ctx)
	return nil
}

// StopMonitoring tears down the monitoring loop and the scheduling loop.
// Cached plans are kept so a later StartMonitoring does not need a full
// re-initialization.
func (o *Orchestrator) StopMonitoring() {
	o.mu.Lock()
	c := o.monitor
	o.monitor = nil
	wasRunning := o.monitorRunning
	o.monitorRunning = false
	o.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	o.stopScheduling()
	if wasRunning {
		o.logger.Info("monitoring stopped")
	}
}

// Close stops all timers. The orchestrator cannot be restarted after Close
// only because its base context is owned by the caller.
func (o *Orchestrator) Close() {
	o.StopMonitoring()
}

// monitorTick is the periodic gate: global flag, server-list refresh,
// per-server enablement, manual-queue cleanup.
func (o *Orchestrator) monitorTick(ctx context.Context) {
	enabled, ok := o.settings.GetGlobalBool(ctx, SettingGlobalOrchestratorEnabled)
	if !ok {
		enabled = false
	}
	if !enabled {
		o.logger.Info("orchestrator disabled globally, tearing down timers")
		o.StopMonitoring()
		return
	}

	servers, err := o.registry.GetActiveServers(ctx)
	if err != nil {
		// Keep the previous snapshot; a registry hiccup should not wipe plans.
		o.logger.Error("refresh active servers", "err", err)
		return
	}

	now := o.clock.Now()
	o.mu.Lock()
	added, removed := o.st.ApplyActiveServers(servers, now)
	cleaned := o.st.CleanupManualTasks(o.cfg.ManualRetention, now)
	pending := o.st.PendingManualCount()
	o.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		o.logger.Info("server plans reconciled", "added", added, "removed", removed)
	}
	if cleaned > 0 {
		o.logger.Debug("manual queue cleaned", "removed", cleaned)
	}
	if o.metrics != nil {
		o.metrics.SetActiveServers(len(servers))
		o.metrics.SetPendingManualTasks(pending)
	}

	if len(servers) == 0 {
		o.stopScheduling()
		return
	}

	anyEnabled := false
	for _, srv := range servers {
		if v, ok := o.settings.GetBool(ctx, srv.ID, SettingOrchestratorEnabled); ok && v {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled {
		o.stopScheduling()
		return
	}

	o.refreshTaskStates(ctx)
	o.startScheduling(ctx)
	o.Kick()
}

// refreshTaskStates is the periodic settings-refresh step — the only code
// allowed to mutate enabled flags.
func (o *Orchestrator) refreshTaskStates(ctx context.Context) {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, plan := range o.st.Plans {
		UpdateTaskStates(ctx, plan, o.settings, o.policy, now, o.logger)
	}
}

// ApplySettings re-evaluates task states right away (used by the API after
// a settings write) and reschedules. It only touches existing plans; a
// registry change needs RefreshServers.
func (o *Orchestrator) ApplySettings(ctx context.Context) {
	o.refreshTaskStates(ctx)
	o.Kick()
}

// RefreshServers re-reads the server registry and reconciles plans right
// away (used by the API after a registry write), so follow-up calls see
// the new server without waiting for the next monitoring pass.
func (o *Orchestrator) RefreshServers(ctx context.Context) error {
	servers, err := o.registry.GetActiveServers(ctx)
	if err != nil {
		return fmt.Errorf("refresh active servers: %w", err)
	}

	now := o.clock.Now()
	o.mu.Lock()
	added, removed := o.st.ApplyActiveServers(servers, now)
	o.mu.Unlock()

	if len(added) > 0 || len(removed) > 0 {
		o.logger.Info("server plans reconciled", "added", added, "removed", removed)
	}
	if o.metrics != nil {
		o.metrics.SetActiveServers(len(servers))
	}

	o.refreshTaskStates(ctx)
	o.Kick()
	return nil
}

// Kick wakes the scheduling loop so a state change is considered without
// waiting out the armed timer.
func (o *Orchestrator) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) startScheduling(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loopCancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.loopCancel = cancel
	o.loopDone = done
	go func() {
		defer close(done)
		o.schedulingLoop(loopCtx)
	}()
	o.logger.Info("scheduling started")
}

func (o *Orchestrator) stopScheduling() {
	o.mu.Lock()
	cancel := o.loopCancel
	done := o.loopDone
	o.loopCancel = nil
	o.loopDone = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.logger.Info("scheduling stopped")
}

// schedulingLoop arms one timer for the next selection, executes the due
// task when it fires, and re-arms. Any state change kicks the loop so the
// stale timer is replaced instead of waited out.
func (o *Orchestrator) schedulingLoop(ctx context.Context) {
	for {
		o.mu.Lock()
		now := o.clock.Now()
		sel := SelectNext(o.st, now)
		o.mu.Unlock()

		delay := IdleBackoff
		if sel != nil {
			delay = sel.DueAt.Sub(now)
			if delay < 0 {
				delay = 0
			}
		}

		timer := o.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-o.kick:
			timer.Stop()
			continue
		case <-timer.C():
		}

		o.runDue(ctx)
	}
}

// runDue re-selects under the lock and executes the picked task if it is
// actually due; the loop re-arms either way.
func (o *Orchestrator) runDue(ctx context.Context) {
	o.mu.Lock()
	now := o.clock.Now()
	sel := SelectNext(o.st, now)
	if sel == nil || sel.DueAt.After(now) {
		o.mu.Unlock()
		return
	}

	if sel.IsManual() {
		sel.Manual.Status = ManualStatusExecuting
		taskCopy := *sel.Manual
		o.mu.Unlock()
		o.runManual(ctx, taskCopy)
		return
	}

	plan, okPlan := o.st.Plans[sel.ServerID]
	if !okPlan {
		o.mu.Unlock()
		return
	}
	task := plan.Tasks[sel.Kind]
	if task == nil || !task.Enabled {
		o.mu.Unlock()
		return
	}
	planCopy := *plan
	taskCopy := *task
	o.mu.Unlock()

	o.execMu.Lock()
	outcome := o.dispatcher.RunRecurring(ctx, planCopy, sel.Kind, taskCopy)
	o.execMu.Unlock()

	o.applyRecurringOutcome(ctx, sel.ServerID, sel.Kind, outcome)
}

func (o *Orchestrator) runManual(ctx context.Context, task ManualTask) {
	o.execMu.Lock()
	outcome := o.dispatcher.RunManual(ctx, task)
	o.execMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	live := o.st.ManualTaskByID(task.ID)
	if live == nil {
		return
	}
	ended := outcome.EndedAt
	live.CompletedAt = &ended
	if outcome.Err != nil {
		msg := outcome.Err.Error()
		live.Status = ManualStatusFailed
		live.Error = &msg
		return
	}
	live.Status = ManualStatusCompleted
	live.Error = nil
	if plan, ok := o.st.Plans[task.ServerID]; ok {
		plan.LastSuccessAt = &ended
	}
}

// applyRecurringOutcome is the single writer for post-execution plan
// mutations: success stamps last-executed and reschedules through the
// kind's own policy; failure applies the flat retry delay and bumps
// nothing else.
func (o *Orchestrator) applyRecurringOutcome(ctx context.Context, serverID string, kind TaskKind, outcome RecurringOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	plan, ok := o.st.Plans[serverID]
	if !ok {
		return
	}
	task := plan.Tasks[kind]
	if task == nil {
		return
	}

	ended := outcome.EndedAt
	if outcome.Err != nil {
		task.NextExecutionAt = ended.Add(FailureRetryDelay)
		return
	}

	task.LastExecutedAt = &ended
	plan.LastSuccessAt = &ended

	var delay time.Duration
	if kind == KindScavenging {
		delay = ScavengingDelay(outcome.ScavengeData)
		task.OptimalDelay = delay
	} else {
		delay = o.policy.NextDelay(ctx, serverID, kind)
	}
	task.NextExecutionAt = ended.Add(delay)

	if outcome.HasTargetIndex {
		task.NextTargetIndex = outcome.NextTargetIndex
	}
	if kind == KindMiniAttacks || kind == KindPlayerAttacks {
		task.LastAttackAt = &ended
	}
}

// ---- Public control surface ----

// QueueManualTask validates and appends a manual task, returning the
// receipt. The loop is kicked so the task is considered immediately.
func (o *Orchestrator) QueueManualTask(kind ManualTaskKind, serverID string, payload ManualPayload) (EnqueueReceipt, error) {
	if payload == nil || payload.ManualKind() != kind {
		return EnqueueReceipt{}, fmt.Errorf("%w: %s", ErrUnknownManualKind, kind)
	}

	o.mu.Lock()
	if _, ok := o.st.Plans[serverID]; !ok {
		o.mu.Unlock()
		return EnqueueReceipt{}, fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	task, receipt := o.st.EnqueueManualTask(kind, serverID, payload, o.clock.Now())
	pending := o.st.PendingManualCount()
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SetPendingManualTasks(pending)
	}
	o.logger.Info("manual task queued",
		"task_id", task.ID, "kind", string(kind), "server_id", serverID,
		"queue_position", receipt.QueuePosition)
	o.Kick()
	return receipt, nil
}

// GetManualTaskStatus returns a copy of the queued task, or nil.
func (o *Orchestrator) GetManualTaskStatus(id string) *ManualTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	task := o.st.ManualTaskByID(id)
	if task == nil {
		return nil
	}
	cp := *task
	return &cp
}

// ListManualTasks returns copies of all queued tasks in queue order.
func (o *Orchestrator) ListManualTasks() []ManualTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ManualTask, 0, len(o.st.Queue))
	for _, task := range o.st.Queue {
		out = append(out, *task)
	}
	return out
}

// PendingManualTasks reports the number of tasks waiting to run.
func (o *Orchestrator) PendingManualTasks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.st.PendingManualCount()
}

// ScavengeTriggerResult reports whether a manual scavenging trigger
// actually ran; it is skipped when auto-scavenging is off for the server.
type ScavengeTriggerResult struct {
	Ran    bool
	Reason string
}

// TriggerConstruction runs the construction-queue task immediately.
func (o *Orchestrator) TriggerConstruction(ctx context.Context, serverID string) error {
	return o.trigger(ctx, serverID, KindConstruction)
}

// TriggerMiniAttacks runs the mini-attacks task immediately.
func (o *Orchestrator) TriggerMiniAttacks(ctx context.Context, serverID string) error {
	return o.trigger(ctx, serverID, KindMiniAttacks)
}

// TriggerPlayerAttacks runs the player-village-attacks task immediately.
func (o *Orchestrator) TriggerPlayerAttacks(ctx context.Context, serverID string) error {
	return o.trigger(ctx, serverID, KindPlayerAttacks)
}

// TriggerArmyTraining runs the army-training task immediately.
func (o *Orchestrator) TriggerArmyTraining(ctx context.Context, serverID string) error {
	return o.trigger(ctx, serverID, KindArmyTraining)
}

// TriggerWorldData runs the world-data sync immediately.
func (o *Orchestrator) TriggerWorldData(ctx context.Context, serverID string) error {
	return o.trigger(ctx, serverID, KindWorldData)
}

// TriggerScavenging re-checks the auto-scavenging flag before running, so
// a manual trigger cannot silently override an explicit disable.
func (o *Orchestrator) TriggerScavenging(ctx context.Context, serverID string) (ScavengeTriggerResult, error) {
	o.mu.Lock()
	_, ok := o.st.Plans[serverID]
	o.mu.Unlock()
	if !ok {
		return ScavengeTriggerResult{}, fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}

	if enabled, ok := o.settings.GetBool(ctx, serverID, KindScavenging.EnabledSettingKey()); !ok || !enabled {
		return ScavengeTriggerResult{Ran: false, Reason: "auto-scavenging disabled for server"}, nil
	}
	if err := o.trigger(ctx, serverID, KindScavenging); err != nil {
		return ScavengeTriggerResult{Ran: true}, err
	}
	return ScavengeTriggerResult{Ran: true}, nil
}

// trigger runs one recurring task outside its schedule. The execution and
// its rescheduling follow the exact dispatcher contract; errors propagate
// to the caller (the HTTP layer) on top of being logged.
func (o *Orchestrator) trigger(ctx context.Context, serverID string, kind TaskKind) error {
	o.mu.Lock()
	plan, ok := o.st.Plans[serverID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServerNotFound, serverID)
	}
	task := plan.Tasks[kind]
	if task == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
	}
	planCopy := *plan
	taskCopy := *task
	o.mu.Unlock()

	o.execMu.Lock()
	outcome := o.dispatcher.RunRecurring(ctx, planCopy, kind, taskCopy)
	o.execMu.Unlock()

	o.applyRecurringOutcome(ctx, serverID, kind, outcome)
	o.Kick()
	return outcome.Err
}

// ---- Status snapshot ----

// TaskSnapshot is the per-kind slice of a status snapshot.
type TaskSnapshot struct {
	Enabled         bool
	NextExecutionAt time.Time
	LastExecutedAt  *time.Time
}

// ServerSnapshot is the per-server slice of a status snapshot.
type ServerSnapshot struct {
	ServerID      string
	ServerCode    string
	ServerName    string
	LastSuccessAt *time.Time
	Tasks         map[TaskKind]TaskSnapshot
}

// QueueSummary aggregates the manual queue for the status surface.
type QueueSummary struct {
	Pending           int
	Executing         int
	Completed         int
	Failed            int
	EstimatedWaitTime time.Duration
}

// StatusSnapshot is the full multi-server status returned to callers.
type StatusSnapshot struct {
	MonitoringActive bool
	SchedulingActive bool
	Servers          []ServerSnapshot
	Queue            QueueSummary
}

// Status assembles a consistent snapshot of all plans and the queue.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := StatusSnapshot{
		MonitoringActive: o.monitorRunning,
		SchedulingActive: o.loopCancel != nil,
	}
	for _, plan := range o.st.Plans {
		server := ServerSnapshot{
			ServerID:      plan.ServerID,
			ServerCode:    plan.ServerCode,
			ServerName:    plan.ServerName,
			LastSuccessAt: plan.LastSuccessAt,
			Tasks:         make(map[TaskKind]TaskSnapshot, len(plan.Tasks)),
		}
		for kind, task := range plan.Tasks {
			server.Tasks[kind] = TaskSnapshot{
				Enabled:         task.Enabled,
				NextExecutionAt: task.NextExecutionAt,
				LastExecutedAt:  task.LastExecutedAt,
			}
		}
		snap.Servers = append(snap.Servers, server)
	}
	sort.Slice(snap.Servers, func(i, j int) bool {
		return snap.Servers[i].ServerID < snap.Servers[j].ServerID
	})

	for _, task := range o.st.Queue {
		switch task.Status {
		case ManualStatusPending:
			snap.Queue.Pending++
		case ManualStatusExecuting:
			snap.Queue.Executing++
		case ManualStatusCompleted:
			snap.Queue.Completed++
		case ManualStatusFailed:
			snap.Queue.Failed++
		}
	}
	snap.Queue.EstimatedWaitTime = time.Duration(snap.Queue.Pending) * AverageManualTaskDuration
	return snap
}
