package core

import "time"

// Scavenging re-poll bounds. A computed delay under the floor is treated
// as an unreliable scrape and replaced with the flat fallback; anything
// over the ceiling is clamped down.
const (
	ScavengeMinDelay      = 30 * time.Second
	ScavengeMaxDelay      = 24 * time.Hour
	ScavengeFallbackDelay = 5 * time.Minute

	scavengeBufferMin = 30 * time.Second
	scavengeBufferMax = 90 * time.Second
)

// ScavengingLevelStatus describes one scavenging option slot on a village.
type ScavengingLevelStatus string

const (
	ScavengeLevelFree   ScavengingLevelStatus = "free"
	ScavengeLevelBusy   ScavengingLevelStatus = "busy"
	ScavengeLevelLocked ScavengingLevelStatus = "locked"
)

// ScavengingLevel is one option slot with its observed countdown.
type ScavengingLevel struct {
	Level                 int
	Status                ScavengingLevelStatus
	TimeRemainingSeconds  int
	EstimatedCompletionAt *time.Time
}

// ScavengingVillage is the per-village snapshot of slot countdowns.
type ScavengingVillage struct {
	VillageID     string
	VillageName   string
	LastUpdatedAt time.Time
	Levels        []ScavengingLevel
}

// ScavengingTimeData is the per-cycle snapshot of observed countdowns.
// It is rebuilt fresh at the start of every scavenging run and mutated in
// place as dispatches happen within that run.
type ScavengingTimeData struct {
	LastCollectedAt time.Time
	Villages        []ScavengingVillage
}

// MarkDispatched flips a level to busy with its real observed duration so
// the optimal-time calculation sees the dispatch without a re-scrape.
func (d *ScavengingTimeData) MarkDispatched(villageID string, level, durationSeconds int, now time.Time) {
	for vi := range d.Villages {
		if d.Villages[vi].VillageID != villageID {
			continue
		}
		for li := range d.Villages[vi].Levels {
			if d.Villages[vi].Levels[li].Level != level {
				continue
			}
			done := now.Add(time.Duration(durationSeconds) * time.Second)
			d.Villages[vi].Levels[li].Status = ScavengeLevelBusy
			d.Villages[vi].Levels[li].TimeRemainingSeconds = durationSeconds
			d.Villages[vi].Levels[li].EstimatedCompletionAt = &done
		}
		d.Villages[vi].LastUpdatedAt = now
	}
}

// OptimalScheduleTime returns the wait until the earliest possible next
// scavenging opportunity anywhere: per village the shortest busy-level
// remainder (the soonest that village could free a slot), then the minimum
// across villages. ok is false when no busy levels exist at all, in which
// case the caller should use the flat fallback.
func (d *ScavengingTimeData) OptimalScheduleTime() (wait time.Duration, ok bool) {
	var best time.Duration
	for _, v := range d.Villages {
		villageMin, found := time.Duration(0), false
		for _, l := range v.Levels {
			if l.Status != ScavengeLevelBusy {
				continue
			}
			remaining := time.Duration(l.TimeRemainingSeconds) * time.Second
			if !found || remaining < villageMin {
				villageMin = remaining
				found = true
			}
		}
		if !found {
			continue
		}
		if !ok || villageMin < best {
			best = villageMin
			ok = true
		}
	}
	return best, ok
}

// ScavengingDelay turns a snapshot into the delay before the next
// scavenging poll: the optimal schedule time clamped to
// [ScavengeMinDelay, ScavengeMaxDelay] plus a 30-90s random buffer, or the
// flat fallback when nothing can be computed.
func ScavengingDelay(data *ScavengingTimeData) time.Duration {
	if data == nil {
		return ScavengeFallbackDelay
	}
	optimal, ok := data.OptimalScheduleTime()
	if !ok {
		return ScavengeFallbackDelay
	}
	if optimal < ScavengeMinDelay {
		// Too aggressive to trust; likely a level about to flip mid-scrape.
		return ScavengeFallbackDelay
	}
	if optimal > ScavengeMaxDelay {
		optimal = ScavengeMaxDelay
	}
	return optimal + RandomInterval(scavengeBufferMin, scavengeBufferMax)
}
