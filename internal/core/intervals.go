package core

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Scheduling constants shared across the orchestrator.
const (
	// IdleBackoff is the re-arm delay when the selector finds nothing.
	IdleBackoff = time.Minute

	// FailureRetryDelay replaces the normal interval after a failed run so
	// a broken integration is not hammered at its regular cadence.
	FailureRetryDelay = 5 * time.Minute

	// ManualTaskRetention is how long terminal manual tasks are kept before
	// the periodic cleanup pass drops them.
	ManualTaskRetention = time.Hour

	// AverageManualTaskDuration feeds the estimated-wait calculation
	// returned by enqueue receipts.
	AverageManualTaskDuration = time.Minute
)

type intervalRange struct {
	Min time.Duration
	Max time.Duration
}

// Default randomized ranges per kind. Mini and player attacks can be
// overridden per server through settings (in minutes).
var defaultIntervals = map[TaskKind]intervalRange{
	KindConstruction:  {5 * time.Minute, 8 * time.Minute},
	KindScavenging:    {5 * time.Minute, 5 * time.Minute},
	KindMiniAttacks:   {10 * time.Minute, 15 * time.Minute},
	KindPlayerAttacks: {10 * time.Minute, 15 * time.Minute},
	KindArmyTraining:  {10 * time.Minute, 15 * time.Minute},
	KindWorldData:     {28 * time.Minute, 32 * time.Minute},
}

// Cold-start delays used only when a plan is first created, so the first
// poll of each task happens shortly after startup instead of a full
// interval later.
var initialIntervals = map[TaskKind]time.Duration{
	KindConstruction:  10 * time.Second,
	KindScavenging:    30 * time.Second,
	KindMiniAttacks:   20 * time.Second,
	KindPlayerAttacks: 5 * time.Second,
	KindArmyTraining:  30 * time.Second,
	KindWorldData:     time.Minute,
}

// RandomInterval returns a uniformly random duration in [min, max],
// inclusive on both ends at millisecond resolution.
func RandomInterval(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	span := (max - min).Milliseconds() + 1
	return min + time.Duration(rand.Int63n(span))*time.Millisecond
}

// InitialInterval returns the cold-start delay for a kind.
func InitialInterval(kind TaskKind) time.Duration {
	if d, ok := initialIntervals[kind]; ok {
		return d
	}
	return time.Minute
}

// MinInterval returns the lower bound of a kind's default range. Used by
// tests and by the transition-rescheduling check.
func MinInterval(kind TaskKind) time.Duration {
	return defaultIntervals[kind].Min
}

// IntervalPolicy computes randomized next-execution delays, consulting
// per-server settings for the overridable kinds and falling back to the
// hard-coded defaults when lookups return nothing. The fallback path never
// fails; it only logs.
type IntervalPolicy struct {
	settings Settings
	logger   *slog.Logger
}

// NewIntervalPolicy builds a policy over the given settings collaborator.
func NewIntervalPolicy(settings Settings, logger *slog.Logger) *IntervalPolicy {
	return &IntervalPolicy{settings: settings, logger: logger}
}

// NextDelay returns the randomized delay before the next run of kind on
// serverID. Scavenging has its own time model (see scavenging.go); when
// asked for a scavenging delay here the flat fallback range applies.
func (p *IntervalPolicy) NextDelay(ctx context.Context, serverID string, kind TaskKind) time.Duration {
	r := p.rangeFor(ctx, serverID, kind)
	return RandomInterval(r.Min, r.Max)
}

func (p *IntervalPolicy) rangeFor(ctx context.Context, serverID string, kind TaskKind) intervalRange {
	def, ok := defaultIntervals[kind]
	if !ok {
		def = intervalRange{5 * time.Minute, 8 * time.Minute}
	}
	var minKey, maxKey string
	switch kind {
	case KindMiniAttacks:
		minKey, maxKey = SettingMiniAttacksMinMinutes, SettingMiniAttacksMaxMinutes
	case KindPlayerAttacks:
		minKey, maxKey = SettingPlayerAttacksMinMinutes, SettingPlayerAttacksMaxMinutes
	default:
		return def
	}
	if p.settings == nil {
		return def
	}
	minMinutes, okMin := p.settings.GetInt(ctx, serverID, minKey)
	maxMinutes, okMax := p.settings.GetInt(ctx, serverID, maxKey)
	if !okMin || !okMax {
		return def
	}
	if minMinutes <= 0 || maxMinutes < minMinutes {
		if p.logger != nil {
			p.logger.Warn("ignoring invalid interval override",
				"server_id", serverID, "task", string(kind),
				"min_minutes", minMinutes, "max_minutes", maxMinutes)
		}
		return def
	}
	return intervalRange{
		Min: time.Duration(minMinutes) * time.Minute,
		Max: time.Duration(maxMinutes) * time.Minute,
	}
}
