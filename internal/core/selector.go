package core

import "time"

// Selection is the single unit of work the selector picked. Exactly one of
// Manual or (ServerID, Kind) is populated. DueAt is when the work becomes
// runnable; for a ready manual task it is its ScheduledFor time, which has
// already passed.
type Selection struct {
	Manual   *ManualTask
	ServerID string
	Kind     TaskKind
	DueAt    time.Time
}

// IsManual reports whether the selection is a manual task.
func (s *Selection) IsManual() bool { return s != nil && s.Manual != nil }

// SelectNext picks the next unit of work, or nil when there is nothing to
// schedule (no servers, everything disabled, empty queue) — the caller
// must then re-poll after IdleBackoff.
//
// Strict two-phase priority: a ready manual task always wins over
// recurring work because manual tasks carry explicit user intent and are
// ready the instant they are queued. Only when no manual task is ready
// does the globally earliest-due enabled recurring task get picked, across
// all servers and kinds. Ties on identical timestamps fall to iteration
// order; simultaneous-millisecond collisions are not meaningfully
// orderable.
func SelectNext(st *State, now time.Time) *Selection {
	if manual := st.NextReadyManualTask(now); manual != nil {
		return &Selection{Manual: manual, ServerID: manual.ServerID, DueAt: manual.ScheduledFor}
	}

	var best *Selection
	for id, plan := range st.Plans {
		for _, kind := range AllKinds() {
			task := plan.Tasks[kind]
			if task == nil || !task.Enabled {
				continue
			}
			if best == nil || task.NextExecutionAt.Before(best.DueAt) {
				best = &Selection{ServerID: id, Kind: kind, DueAt: task.NextExecutionAt}
			}
		}
	}
	return best
}
