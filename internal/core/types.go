package core

import (
	"context"
	"time"
)

// TaskKind identifies one of the recurring automation categories.
type TaskKind string

const (
	KindConstruction  TaskKind = "constructionQueue"
	KindScavenging    TaskKind = "scavenging"
	KindMiniAttacks   TaskKind = "miniAttacks"
	KindPlayerAttacks TaskKind = "playerVillageAttacks"
	KindArmyTraining  TaskKind = "armyTraining"
	KindWorldData     TaskKind = "worldData"
)

// AllKinds returns every task kind in a stable order.
func AllKinds() []TaskKind {
	return []TaskKind{
		KindConstruction,
		KindScavenging,
		KindMiniAttacks,
		KindPlayerAttacks,
		KindArmyTraining,
		KindWorldData,
	}
}

// ParseTaskKind validates a kind received over the API.
func ParseTaskKind(value string) (TaskKind, bool) {
	for _, k := range AllKinds() {
		if string(k) == value {
			return k, true
		}
	}
	return "", false
}

// EnabledSettingKey is the per-server settings key gating a task kind.
func (k TaskKind) EnabledSettingKey() string {
	switch k {
	case KindConstruction:
		return "autoConstructionEnabled"
	case KindScavenging:
		return "autoScavengingEnabled"
	case KindMiniAttacks:
		return "autoMiniAttacksEnabled"
	case KindPlayerAttacks:
		return "autoPlayerAttacksEnabled"
	case KindArmyTraining:
		return "autoArmyTrainingEnabled"
	case KindWorldData:
		return "worldDataSyncEnabled"
	}
	return ""
}

// Settings keys outside the per-kind enable flags.
const (
	SettingOrchestratorEnabled       = "orchestratorEnabled"
	SettingGlobalOrchestratorEnabled = "multiServerOrchestratorEnabled"
	SettingArmyTrainingVillageID     = "armyTrainingVillageId"
	SettingMiniAttacksMinMinutes     = "miniAttacksIntervalMinMinutes"
	SettingMiniAttacksMaxMinutes     = "miniAttacksIntervalMaxMinutes"
	SettingPlayerAttacksMinMinutes   = "playerAttacksIntervalMinMinutes"
	SettingPlayerAttacksMaxMinutes   = "playerAttacksIntervalMaxMinutes"
)

// TaskState is the per-kind scheduling record inside a ServerPlan.
// Kind-specific fields are only meaningful for the kinds that use them:
// NextTargetIndex/LastAttackAt for the two attack kinds, VillageID for
// army training, OptimalDelay for scavenging.
type TaskState struct {
	Enabled         bool
	NextExecutionAt time.Time
	LastExecutedAt  *time.Time

	NextTargetIndex int
	LastAttackAt    *time.Time
	VillageID       string
	OptimalDelay    time.Duration
}

// ServerInfo is a row from the server registry.
type ServerInfo struct {
	ID     string
	Code   string
	Name   string
	Active bool
}

// ServerPlan tracks scheduling state for one active game server.
type ServerPlan struct {
	ServerID      string
	ServerCode    string
	ServerName    string
	Active        bool
	Tasks         map[TaskKind]*TaskState
	LastSuccessAt *time.Time
}

// ManualTaskKind is the closed set of user-initiated one-off operations.
type ManualTaskKind string

const (
	ManualSendSupport       ManualTaskKind = "sendSupport"
	ManualFetchVillageUnits ManualTaskKind = "fetchVillageUnits"
)

// ManualTaskStatus is the lifecycle state of a queued manual task.
type ManualTaskStatus string

const (
	ManualStatusPending   ManualTaskStatus = "pending"
	ManualStatusExecuting ManualTaskStatus = "executing"
	ManualStatusCompleted ManualTaskStatus = "completed"
	ManualStatusFailed    ManualTaskStatus = "failed"
)

// ManualPayload is the tagged union of manual task payloads. Each variant
// carries the concrete shape for its kind; the dispatcher resolves it with
// a type switch instead of an unchecked cast.
type ManualPayload interface {
	ManualKind() ManualTaskKind
}

// SupportPayload describes a sendSupport request.
type SupportPayload struct {
	FromVillageID   string         `json:"from_village_id"`
	TargetVillageID string         `json:"target_village_id"`
	Units           map[string]int `json:"units"`
}

func (SupportPayload) ManualKind() ManualTaskKind { return ManualSendSupport }

// VillageUnitsPayload describes a fetchVillageUnits request. An empty
// VillageIDs list means "all villages on the server".
type VillageUnitsPayload struct {
	VillageIDs []string `json:"village_ids"`
}

func (VillageUnitsPayload) ManualKind() ManualTaskKind { return ManualFetchVillageUnits }

// ManualTask is one queued user-initiated operation.
type ManualTask struct {
	ID           string
	Kind         ManualTaskKind
	ServerID     string
	Payload      ManualPayload
	QueuedAt     time.Time
	ScheduledFor time.Time
	Status       ManualTaskStatus
	Error        *string
	CompletedAt  *time.Time
}

// State is the process-wide orchestrator state. It is owned by the
// Orchestrator, which is its only writer; the selection and update helpers
// in this package are plain functions over it so they can be exercised
// without timers.
type State struct {
	Plans         map[string]*ServerPlan
	ActiveServers []ServerInfo
	Queue         []*ManualTask

	// Legacy rotation bookkeeping, kept for the status surface only.
	CurrentServerIndex int
	Rotating           bool
}

// NewState returns an empty state with initialized collections.
func NewState() *State {
	return &State{
		Plans: make(map[string]*ServerPlan),
	}
}

// ExecutionStatus is the closed outcome enum persisted to the execution log.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
)

// ExecutionRecord is the start-of-run payload for the execution log sink.
type ExecutionRecord struct {
	ServerID    string
	VillageID   string
	Title       string
	Description string
	StartedAt   time.Time
}

// ActivityEvent classifies a best-effort activity-log notice.
type ActivityEvent string

const (
	ActivityError          ActivityEvent = "error"
	ActivitySuccess        ActivityEvent = "success"
	ActivitySessionExpired ActivityEvent = "sessionExpired"
	ActivityCaptchaBlocked ActivityEvent = "captchaBlocked"
)

// Settings is the external settings collaborator. Lookups never fail
// loudly: a missing or unreadable value yields ok=false and the caller
// substitutes its default.
type Settings interface {
	GetBool(ctx context.Context, serverID, key string) (value bool, ok bool)
	GetInt(ctx context.Context, serverID, key string) (value int, ok bool)
	GetString(ctx context.Context, serverID, key string) (value string, ok bool)
	GetGlobalBool(ctx context.Context, key string) (value bool, ok bool)
	SetSetting(ctx context.Context, serverID, key string, value any) error
}

// ServerRegistry supplies the current set of active game servers.
type ServerRegistry interface {
	GetActiveServers(ctx context.Context) ([]ServerInfo, error)
}

// Operations are the external automation routines, one per task kind plus
// the manual operations. They are opaque to the orchestrator beyond
// success/failure and the few richer results used for rescheduling.
type Operations interface {
	ProcessConstructionQueue(ctx context.Context, serverID string) error
	DispatchScavenging(ctx context.Context, serverID string) (*ScavengingTimeData, error)
	RunMiniAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error)
	RunPlayerAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error)
	TrainArmy(ctx context.Context, serverID, villageID string) error
	SyncWorldData(ctx context.Context, serverID string) error

	SendSupport(ctx context.Context, serverID string, payload SupportPayload) error
	FetchVillageUnits(ctx context.Context, serverID string, payload VillageUnitsPayload) (map[string]map[string]int, error)
}

// ExecutionLog persists one start/end/outcome record per run.
type ExecutionLog interface {
	LogExecution(ctx context.Context, rec ExecutionRecord) (string, error)
	UpdateExecutionLog(ctx context.Context, id string, endedAt time.Time, status ExecutionStatus, description string) error
}

// ActivityLog records best-effort per-event notices tagged with the
// execution log id. Failures to write are swallowed by callers.
type ActivityLog interface {
	LogActivity(ctx context.Context, executionID, serverID string, event ActivityEvent, message string) error
}

// Metrics receives execution observations. Implemented by the Prometheus
// collector; tests use a no-op.
type Metrics interface {
	RecordExecution(kind string, status ExecutionStatus, duration time.Duration)
	SetPendingManualTasks(n int)
	SetActiveServers(n int)
}
