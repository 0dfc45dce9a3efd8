package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/store"
)

// MCPServer exposes the orchestrator to MCP clients (assistants driving
// the bot conversationally).
type MCPServer struct {
	store  *store.Store
	orch   *core.Orchestrator
	logger *slog.Logger
	inner  *server.MCPServer
}

// NewMCPServer creates a new MCP server instance with all tools
// registered.
func NewMCPServer(st *store.Store, orch *core.Orchestrator, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:  st,
		orch:   orch,
		logger: logger,
	}
	s.inner = server.NewMCPServer(
		"plemiona-orchestrator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.inner)
}

// Handler returns an HTTP handler for the streamable transport, mounted
// under /mcp by the API server.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.inner)
}

func (s *MCPServer) registerTools() {
	s.inner.AddTool(mcp.NewTool("plemiona_status",
		mcp.WithDescription("Show orchestration status for every active game server: per-task enablement, next and last execution times, and the manual queue summary"),
	), s.handleStatus)

	s.inner.AddTool(mcp.NewTool("plemiona_trigger_task",
		mcp.WithDescription("Run one recurring automation task immediately on a server, outside its schedule"),
		mcp.WithString("server_id",
			mcp.Required(),
			mcp.Description("Game server ID"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Task kind"),
			mcp.Enum("constructionQueue", "scavenging", "miniAttacks", "playerVillageAttacks", "armyTraining", "worldData"),
		),
	), s.handleTriggerTask)

	s.inner.AddTool(mcp.NewTool("plemiona_queue_manual_task",
		mcp.WithDescription("Queue a one-off manual operation. sendSupport needs from_village_id, target_village_id and units; fetchVillageUnits optionally takes village_ids"),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Manual task kind"),
			mcp.Enum("sendSupport", "fetchVillageUnits"),
		),
		mcp.WithString("server_id",
			mcp.Required(),
			mcp.Description("Game server ID"),
		),
		mcp.WithString("from_village_id",
			mcp.Description("Source village for sendSupport"),
		),
		mcp.WithString("target_village_id",
			mcp.Description("Target village for sendSupport"),
		),
		mcp.WithString("units",
			mcp.Description("JSON object of unit counts for sendSupport, e.g. {\"spear\": 100}"),
		),
		mcp.WithString("village_ids",
			mcp.Description("JSON array of village IDs for fetchVillageUnits; empty means all"),
		),
	), s.handleQueueManualTask)

	s.inner.AddTool(mcp.NewTool("plemiona_get_manual_task",
		mcp.WithDescription("Check the status of a queued manual task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Manual task ID"),
		),
	), s.handleGetManualTask)

	s.inner.AddTool(mcp.NewTool("plemiona_list_executions",
		mcp.WithDescription("List recent task executions, newest first"),
		mcp.WithString("server_id",
			mcp.Description("Filter by game server ID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max records to return, default 20"),
			mcp.Min(0),
		),
	), s.handleListExecutions)

	s.inner.AddTool(mcp.NewTool("plemiona_set_setting",
		mcp.WithDescription("Write a per-server or global setting. Value is JSON; booleans gate tasks (e.g. autoScavengingEnabled), integers tune attack intervals"),
		mcp.WithString("server_id",
			mcp.Description("Game server ID; empty targets the global scope"),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Setting key"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("JSON-encoded value, e.g. true, 15 or \"12345\""),
		),
	), s.handleSetSetting)
}

// handleStatus handles the plemiona_status tool call.
func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.orch.Status()

	result := fmt.Sprintf("Monitoring: %s, Scheduling: %s\n\n",
		onOff(snap.MonitoringActive), onOff(snap.SchedulingActive))

	if len(snap.Servers) == 0 {
		result += "No active servers.\n"
	}
	for _, server := range snap.Servers {
		result += fmt.Sprintf("Server %s (%s)\n", server.ServerCode, server.ServerID)
		for _, kind := range core.AllKinds() {
			task, ok := server.Tasks[kind]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %s: ", kind)
			if !task.Enabled {
				line += "disabled"
			} else {
				line += "next " + task.NextExecutionAt.Format("2006-01-02 15:04:05")
				if task.LastExecutedAt != nil {
					line += ", last " + task.LastExecutedAt.Format("2006-01-02 15:04:05")
				}
			}
			result += line + "\n"
		}
		result += "\n"
	}

	result += fmt.Sprintf("Manual queue: %d pending, %d executing, %d completed, %d failed\n",
		snap.Queue.Pending, snap.Queue.Executing, snap.Queue.Completed, snap.Queue.Failed)

	return mcp.NewToolResultText(result), nil
}

// handleTriggerTask handles the plemiona_trigger_task tool call.
func (s *MCPServer) handleTriggerTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serverID := mcp.ParseString(request, "server_id", "")
	kindStr := mcp.ParseString(request, "kind", "")

	kind, ok := core.ParseTaskKind(kindStr)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown task kind: %s", kindStr)), nil
	}

	if kind == core.KindScavenging {
		result, err := s.orch.TriggerScavenging(ctx, serverID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scavenging failed: %v", err)), nil
		}
		if !result.Ran {
			return mcp.NewToolResultText("Skipped: " + result.Reason), nil
		}
		return mcp.NewToolResultText("Scavenging dispatched."), nil
	}

	var err error
	switch kind {
	case core.KindConstruction:
		err = s.orch.TriggerConstruction(ctx, serverID)
	case core.KindMiniAttacks:
		err = s.orch.TriggerMiniAttacks(ctx, serverID)
	case core.KindPlayerAttacks:
		err = s.orch.TriggerPlayerAttacks(ctx, serverID)
	case core.KindArmyTraining:
		err = s.orch.TriggerArmyTraining(ctx, serverID)
	case core.KindWorldData:
		err = s.orch.TriggerWorldData(ctx, serverID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task %s completed on server %s.", kind, serverID)), nil
}

// handleQueueManualTask handles the plemiona_queue_manual_task tool call.
func (s *MCPServer) handleQueueManualTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := core.ManualTaskKind(mcp.ParseString(request, "kind", ""))
	serverID := mcp.ParseString(request, "server_id", "")

	var payload core.ManualPayload
	switch kind {
	case core.ManualSendSupport:
		unitsRaw := mcp.ParseString(request, "units", "{}")
		var units map[string]int
		if err := json.Unmarshal([]byte(unitsRaw), &units); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid units JSON: %v", err)), nil
		}
		p := core.SupportPayload{
			FromVillageID:   mcp.ParseString(request, "from_village_id", ""),
			TargetVillageID: mcp.ParseString(request, "target_village_id", ""),
			Units:           units,
		}
		if p.FromVillageID == "" || p.TargetVillageID == "" {
			return mcp.NewToolResultError("from_village_id and target_village_id are required for sendSupport"), nil
		}
		payload = p
	case core.ManualFetchVillageUnits:
		idsRaw := mcp.ParseString(request, "village_ids", "")
		var p core.VillageUnitsPayload
		if idsRaw != "" {
			if err := json.Unmarshal([]byte(idsRaw), &p.VillageIDs); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid village_ids JSON: %v", err)), nil
			}
		}
		payload = p
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown manual task kind: %s", kind)), nil
	}

	receipt, err := s.orch.QueueManualTask(kind, serverID, payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("queueing failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Manual task queued\nID: %s\nQueue position: %d\nEstimated wait: %s",
		receipt.TaskID, receipt.QueuePosition, receipt.EstimatedWaitTime)), nil
}

// handleGetManualTask handles the plemiona_get_manual_task tool call.
func (s *MCPServer) handleGetManualTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	task := s.orch.GetManualTaskStatus(taskID)
	if task == nil {
		return mcp.NewToolResultError(fmt.Sprintf("manual task not found: %s", taskID)), nil
	}

	result := fmt.Sprintf("Task %s\nKind: %s\nServer: %s\nStatus: %s\nQueued: %s\n",
		task.ID, task.Kind, task.ServerID, task.Status,
		task.QueuedAt.Format("2006-01-02 15:04:05"))
	if task.CompletedAt != nil {
		result += fmt.Sprintf("Completed: %s\n", task.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if task.Error != nil {
		result += fmt.Sprintf("Error: %s\n", *task.Error)
	}
	return mcp.NewToolResultText(result), nil
}

// handleListExecutions handles the plemiona_list_executions tool call.
func (s *MCPServer) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serverID := mcp.ParseString(request, "server_id", "")
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	execs, err := s.store.ListExecutions(ctx, serverID, limit, 0)
	if err != nil {
		s.logger.Error("list executions", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("listing executions failed: %v", err)), nil
	}
	if len(execs) == 0 {
		return mcp.NewToolResultText("No executions recorded."), nil
	}

	result := fmt.Sprintf("Last %d executions:\n\n", len(execs))
	for _, exec := range execs {
		result += fmt.Sprintf("%s %s [%s]\n", statusToIcon(exec.Status), exec.Title, exec.ServerID)
		result += fmt.Sprintf("  started: %s", exec.StartedAt.Format("2006-01-02 15:04:05"))
		if exec.EndedAt != nil {
			result += fmt.Sprintf(", took %s", exec.EndedAt.Sub(exec.StartedAt).Round(time.Second))
		}
		result += "\n"
		if exec.Description != nil && *exec.Description != "" {
			result += fmt.Sprintf("  %s\n", *exec.Description)
		}
		result += "\n"
	}
	return mcp.NewToolResultText(result), nil
}

// handleSetSetting handles the plemiona_set_setting tool call.
func (s *MCPServer) handleSetSetting(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serverID := mcp.ParseString(request, "server_id", "")
	key := mcp.ParseString(request, "key", "")
	valueRaw := mcp.ParseString(request, "value", "")

	if key == "" {
		return mcp.NewToolResultError("key is required"), nil
	}
	var value any
	if err := json.Unmarshal([]byte(valueRaw), &value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("value must be valid JSON: %v", err)), nil
	}

	if err := s.store.SetSetting(ctx, serverID, key, value); err != nil {
		s.logger.Error("set setting", "key", key, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("saving setting failed: %v", err)), nil
	}
	s.orch.ApplySettings(ctx)

	scope := serverID
	if scope == "" {
		scope = "global"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Setting saved\nScope: %s\nKey: %s\nValue: %s", scope, key, valueRaw)), nil
}

// Helper functions

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func statusToIcon(status string) string {
	switch status {
	case string(core.ExecutionStatusSuccess):
		return "✅"
	case string(core.ExecutionStatusError):
		return "❌"
	case "running":
		return "▶️"
	default:
		return "❓"
	}
}
