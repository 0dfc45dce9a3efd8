package core

import "time"

// EnqueueReceipt is returned to the submitter of a manual task.
type EnqueueReceipt struct {
	TaskID            string
	QueuePosition     int
	EstimatedWaitTime time.Duration
}

// EnqueueManualTask appends a pending manual task scheduled for immediate
// execution. The receipt's position counts pending tasks (1-based) and the
// estimated wait assumes the fixed average task duration.
func (s *State) EnqueueManualTask(kind ManualTaskKind, serverID string, payload ManualPayload, now time.Time) (*ManualTask, EnqueueReceipt) {
	task := &ManualTask{
		ID:           NewID(),
		Kind:         kind,
		ServerID:     serverID,
		Payload:      payload,
		QueuedAt:     now,
		ScheduledFor: now,
		Status:       ManualStatusPending,
	}
	s.Queue = append(s.Queue, task)

	position := s.PendingManualCount()
	return task, EnqueueReceipt{
		TaskID:            task.ID,
		QueuePosition:     position,
		EstimatedWaitTime: time.Duration(position-1) * AverageManualTaskDuration,
	}
}

// NextReadyManualTask returns the pending task with the earliest QueuedAt
// among those whose ScheduledFor has passed, or nil. Queue order breaks
// ties, which keeps selection strictly FIFO.
func (s *State) NextReadyManualTask(now time.Time) *ManualTask {
	var best *ManualTask
	for _, task := range s.Queue {
		if task.Status != ManualStatusPending || task.ScheduledFor.After(now) {
			continue
		}
		if best == nil || task.QueuedAt.Before(best.QueuedAt) {
			best = task
		}
	}
	return best
}

// ManualTaskByID returns the queued task with the given id, or nil.
func (s *State) ManualTaskByID(id string) *ManualTask {
	for _, task := range s.Queue {
		if task.ID == id {
			return task
		}
	}
	return nil
}

// PendingManualCount counts tasks still waiting to execute.
func (s *State) PendingManualCount() int {
	n := 0
	for _, task := range s.Queue {
		if task.Status == ManualStatusPending {
			n++
		}
	}
	return n
}

// CleanupManualTasks drops completed and failed tasks whose CompletedAt is
// older than maxAge. Pending and executing tasks are never dropped,
// whatever their age. Returns the number removed.
func (s *State) CleanupManualTasks(maxAge time.Duration, now time.Time) int {
	kept := s.Queue[:0]
	removed := 0
	for _, task := range s.Queue {
		terminal := task.Status == ManualStatusCompleted || task.Status == ManualStatusFailed
		if terminal && task.CompletedAt != nil && now.Sub(*task.CompletedAt) > maxAge {
			removed++
			continue
		}
		kept = append(kept, task)
	}
	s.Queue = kept
	return removed
}
