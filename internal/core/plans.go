package core

import (
	"context"
	"log/slog"
	"time"
)

// InitializePlan builds a ServerPlan for a newly-active server. Every task
// starts disabled with a near-future default next-execution time; the
// settings refresh pass flips flags on and assigns real intervals.
func InitializePlan(server ServerInfo, now time.Time) *ServerPlan {
	plan := &ServerPlan{
		ServerID:   server.ID,
		ServerCode: server.Code,
		ServerName: server.Name,
		Active:     server.Active,
		Tasks:      make(map[TaskKind]*TaskState, len(AllKinds())),
	}
	for _, kind := range AllKinds() {
		plan.Tasks[kind] = &TaskState{
			Enabled:         false,
			NextExecutionAt: now.Add(InitialInterval(kind)),
		}
	}
	return plan
}

// ApplyActiveServers reconciles the plan map against a fresh registry
// snapshot: plans are created for servers not yet tracked and deleted for
// servers no longer active. The rotation index is reset when it falls off
// the end of the new list. Returns the ids added and removed.
func (s *State) ApplyActiveServers(servers []ServerInfo, now time.Time) (added, removed []string) {
	s.ActiveServers = servers

	current := make(map[string]ServerInfo, len(servers))
	for _, srv := range servers {
		current[srv.ID] = srv
	}

	for id := range s.Plans {
		if _, ok := current[id]; !ok {
			delete(s.Plans, id)
			removed = append(removed, id)
		}
	}
	for id, srv := range current {
		if plan, ok := s.Plans[id]; ok {
			// Identity fields are refreshed from the registry.
			plan.ServerCode = srv.Code
			plan.ServerName = srv.Name
			plan.Active = srv.Active
			continue
		}
		s.Plans[id] = InitializePlan(srv, now)
		added = append(added, id)
	}

	if s.CurrentServerIndex >= len(servers) {
		s.CurrentServerIndex = 0
	}
	return added, removed
}

// UpdateTaskStates re-evaluates every task's enabled flag from settings.
// A disabled-to-enabled transition immediately gets a fresh randomized
// next-execution time so a just-enabled task is not starved by a stale
// timestamp. Timestamps are left alone for flags staying enabled or
// turning off; the selector simply skips disabled tasks.
func UpdateTaskStates(ctx context.Context, plan *ServerPlan, settings Settings, policy *IntervalPolicy, now time.Time, logger *slog.Logger) {
	for _, kind := range AllKinds() {
		task := plan.Tasks[kind]
		if task == nil {
			task = &TaskState{NextExecutionAt: now.Add(InitialInterval(kind))}
			plan.Tasks[kind] = task
		}

		enabled, ok := settings.GetBool(ctx, plan.ServerID, kind.EnabledSettingKey())
		if !ok {
			enabled = false
		}
		if enabled && !task.Enabled {
			var delay time.Duration
			if kind == KindScavenging {
				delay = ScavengingDelay(nil)
			} else {
				delay = policy.NextDelay(ctx, plan.ServerID, kind)
			}
			task.NextExecutionAt = now.Add(delay)
			if logger != nil {
				logger.Info("task enabled",
					"server_id", plan.ServerID, "task", string(kind),
					"next_execution_at", task.NextExecutionAt)
			}
		}
		task.Enabled = enabled

		if kind == KindArmyTraining {
			if villageID, ok := settings.GetString(ctx, plan.ServerID, SettingArmyTrainingVillageID); ok {
				task.VillageID = villageID
			}
		}
	}
}
