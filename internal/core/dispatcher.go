package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Dispatcher invokes the external automation operation for a selected
// task and records the run: execution-log start/end records, the
// high-visibility log boundary around every run, activity events, and
// metrics. It never lets an operation's failure escape — outcomes come
// back as values and the orchestrator applies them to the plan state.
type Dispatcher struct {
	ops      Operations
	execLog  ExecutionLog
	activity ActivityLog
	metrics  Metrics
	clock    Clock
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher. activity and metrics may be nil.
func NewDispatcher(ops Operations, execLog ExecutionLog, activity ActivityLog, metrics Metrics, clock Clock, logger *slog.Logger) *Dispatcher {
	if clock == nil {
		clock = SystemClock
	}
	return &Dispatcher{
		ops:      ops,
		execLog:  execLog,
		activity: activity,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// RecurringOutcome reports one recurring execution back to the controller.
type RecurringOutcome struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Err       error

	// Kind-specific results used for rescheduling.
	ScavengeData    *ScavengingTimeData
	NextTargetIndex int
	HasTargetIndex  bool
}

// ManualOutcome reports one manual execution back to the controller.
type ManualOutcome struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// RunRecurring executes one recurring task. taskSnapshot is a copy of the
// task state taken under the controller's lock; the dispatcher itself
// never touches the live plan.
func (d *Dispatcher) RunRecurring(ctx context.Context, plan ServerPlan, kind TaskKind, taskSnapshot TaskState) RecurringOutcome {
	out := RecurringOutcome{RunID: NewID(), StartedAt: d.clock.Now()}

	villageID := ""
	if kind == KindArmyTraining {
		villageID = taskSnapshot.VillageID
	}
	execID := d.begin(ctx, out.RunID, plan.ServerID, villageID, taskTitle(kind),
		fmt.Sprintf("server %s (%s)", plan.ServerCode, plan.ServerName))

	switch kind {
	case KindConstruction:
		out.Err = d.ops.ProcessConstructionQueue(ctx, plan.ServerID)
	case KindScavenging:
		out.ScavengeData, out.Err = d.ops.DispatchScavenging(ctx, plan.ServerID)
	case KindMiniAttacks:
		out.NextTargetIndex, out.Err = d.ops.RunMiniAttacks(ctx, plan.ServerID, taskSnapshot.NextTargetIndex)
		out.HasTargetIndex = out.Err == nil
	case KindPlayerAttacks:
		out.NextTargetIndex, out.Err = d.ops.RunPlayerAttacks(ctx, plan.ServerID, taskSnapshot.NextTargetIndex)
		out.HasTargetIndex = out.Err == nil
	case KindArmyTraining:
		out.Err = d.ops.TrainArmy(ctx, plan.ServerID, taskSnapshot.VillageID)
	case KindWorldData:
		out.Err = d.ops.SyncWorldData(ctx, plan.ServerID)
	default:
		out.Err = fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
	}

	out.EndedAt = d.clock.Now()
	d.finish(ctx, out.RunID, execID, plan.ServerID, string(kind), out.StartedAt, out.EndedAt, out.Err)
	return out
}

// RunManual executes one manual task. The controller has already marked it
// executing; the terminal transition is applied by the controller from the
// returned outcome.
func (d *Dispatcher) RunManual(ctx context.Context, task ManualTask) ManualOutcome {
	out := ManualOutcome{RunID: NewID(), StartedAt: d.clock.Now()}

	execID := d.begin(ctx, out.RunID, task.ServerID, "", manualTitle(task.Kind),
		fmt.Sprintf("manual task %s", task.ID))

	switch payload := task.Payload.(type) {
	case SupportPayload:
		out.Err = d.ops.SendSupport(ctx, task.ServerID, payload)
	case VillageUnitsPayload:
		_, out.Err = d.ops.FetchVillageUnits(ctx, task.ServerID, payload)
	default:
		out.Err = fmt.Errorf("%w: %s", ErrUnknownManualKind, task.Kind)
	}

	out.EndedAt = d.clock.Now()
	d.finish(ctx, out.RunID, execID, task.ServerID, string(task.Kind), out.StartedAt, out.EndedAt, out.Err)
	return out
}

// begin emits the start boundary and opens the execution-log record. Sink
// failures are logged and never block the run.
func (d *Dispatcher) begin(ctx context.Context, runID, serverID, villageID, title, description string) string {
	d.logger.Info("task execution started",
		"run_id", runID, "server_id", serverID, "task", title, "started_at", d.clock.Now())

	if d.execLog == nil {
		return ""
	}
	execID, err := d.execLog.LogExecution(ctx, ExecutionRecord{
		ServerID:    serverID,
		VillageID:   villageID,
		Title:       title,
		Description: description,
		StartedAt:   d.clock.Now(),
	})
	if err != nil {
		d.logger.Warn("write execution log", "run_id", runID, "err", err)
		return ""
	}
	return execID
}

// finish emits the end boundary, closes the execution-log record, raises
// the activity event, and observes metrics.
func (d *Dispatcher) finish(ctx context.Context, runID, execID, serverID, kind string, startedAt, endedAt time.Time, runErr error) {
	duration := endedAt.Sub(startedAt)
	status := ExecutionStatusSuccess
	description := "completed"
	if runErr != nil {
		status = ExecutionStatusError
		description = runErr.Error()
	}

	if runErr != nil {
		d.logger.Error("task execution finished",
			"run_id", runID, "server_id", serverID, "task", kind,
			"duration", duration, "outcome", string(status), "err", runErr)
	} else {
		d.logger.Info("task execution finished",
			"run_id", runID, "server_id", serverID, "task", kind,
			"duration", duration, "outcome", string(status))
	}

	if d.execLog != nil && execID != "" {
		if err := d.execLog.UpdateExecutionLog(ctx, execID, endedAt, status, description); err != nil {
			d.logger.Warn("close execution log", "run_id", runID, "err", err)
		}
	}

	if d.activity != nil {
		event := ActivitySuccess
		if runErr != nil {
			event = ClassifyFailure(runErr)
		}
		if err := d.activity.LogActivity(ctx, execID, serverID, event, description); err != nil {
			d.logger.Warn("write activity log", "run_id", runID, "err", err)
		}
	}

	if d.metrics != nil {
		d.metrics.RecordExecution(kind, status, duration)
	}
}

// ClassifyFailure maps an automation error to its activity event so
// operators can tell "needs re-login" from "needs manual captcha action"
// from a generic failure. The scheduler treats all three the same.
func ClassifyFailure(err error) ActivityEvent {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return ActivitySessionExpired
	case errors.Is(err, ErrCaptchaBlocked):
		return ActivityCaptchaBlocked
	default:
		return ActivityError
	}
}

func taskTitle(kind TaskKind) string {
	switch kind {
	case KindConstruction:
		return "Construction queue"
	case KindScavenging:
		return "Scavenging"
	case KindMiniAttacks:
		return "Mini attacks"
	case KindPlayerAttacks:
		return "Player village attacks"
	case KindArmyTraining:
		return "Army training"
	case KindWorldData:
		return "World data sync"
	}
	return string(kind)
}

func manualTitle(kind ManualTaskKind) string {
	switch kind {
	case ManualSendSupport:
		return "Send support"
	case ManualFetchVillageUnits:
		return "Fetch village units"
	}
	return string(kind)
}
