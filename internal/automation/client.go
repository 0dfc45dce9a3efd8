package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/WojciechxFalkowski/bot-plemiona-sub000/internal/core"
)

// Client implements the orchestrator's automation operations against the
// external browser-automation service (the scraping half of the system
// runs out of process and drives the actual game pages). Each operation is
// a single POST; the orchestrator only cares about success/failure plus
// the few richer results used for rescheduling.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ core.Operations = (*Client)(nil)

// New creates an automation client. timeout bounds every call; the
// orchestrator itself has no watchdog, so this is the only stuck-run
// protection.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("automation url is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type apiResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ProcessConstructionQueue advances the build queue on every village.
func (c *Client) ProcessConstructionQueue(ctx context.Context, serverID string) error {
	_, err := c.post(ctx, serverID, "construction-queue", nil)
	return err
}

type scavengeLevelWire struct {
	Level                int    `json:"level"`
	Status               string `json:"status"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds"`
	EstimatedCompletion  string `json:"estimated_completion,omitempty"`
}

type scavengeVillageWire struct {
	VillageID   string              `json:"village_id"`
	VillageName string              `json:"village_name"`
	Levels      []scavengeLevelWire `json:"levels"`
}

type scavengeResultWire struct {
	Villages []scavengeVillageWire `json:"villages"`
}

// DispatchScavenging sends free squads out and returns the observed
// countdown snapshot used to time the next poll.
func (c *Client) DispatchScavenging(ctx context.Context, serverID string) (*core.ScavengingTimeData, error) {
	data, err := c.post(ctx, serverID, "scavenging", nil)
	if err != nil {
		return nil, err
	}
	var wire scavengeResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode scavenging result: %w", err)
	}

	now := time.Now()
	snapshot := &core.ScavengingTimeData{LastCollectedAt: now}
	for _, v := range wire.Villages {
		village := core.ScavengingVillage{
			VillageID:     v.VillageID,
			VillageName:   v.VillageName,
			LastUpdatedAt: now,
		}
		for _, l := range v.Levels {
			level := core.ScavengingLevel{
				Level:                l.Level,
				Status:               core.ScavengingLevelStatus(l.Status),
				TimeRemainingSeconds: l.TimeRemainingSeconds,
			}
			if l.EstimatedCompletion != "" {
				if t, err := time.Parse(time.RFC3339, l.EstimatedCompletion); err == nil {
					level.EstimatedCompletionAt = &t
				}
			}
			village.Levels = append(village.Levels, level)
		}
		snapshot.Villages = append(snapshot.Villages, village)
	}
	return snapshot, nil
}

type attackRequest struct {
	NextTargetIndex int `json:"next_target_index"`
}

type attackResultWire struct {
	NextTargetIndex int `json:"next_target_index"`
}

// RunMiniAttacks launches the next batch of barbarian-village attacks and
// returns the advanced target cursor.
func (c *Client) RunMiniAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error) {
	return c.runAttacks(ctx, serverID, "mini-attacks", nextTargetIndex)
}

// RunPlayerAttacks launches the next batch of player-village attacks.
func (c *Client) RunPlayerAttacks(ctx context.Context, serverID string, nextTargetIndex int) (int, error) {
	return c.runAttacks(ctx, serverID, "player-attacks", nextTargetIndex)
}

func (c *Client) runAttacks(ctx context.Context, serverID, action string, nextTargetIndex int) (int, error) {
	data, err := c.post(ctx, serverID, action, attackRequest{NextTargetIndex: nextTargetIndex})
	if err != nil {
		return nextTargetIndex, err
	}
	var wire attackResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nextTargetIndex, fmt.Errorf("decode attack result: %w", err)
	}
	return wire.NextTargetIndex, nil
}

// TrainArmy queues unit recruitment in the configured village.
func (c *Client) TrainArmy(ctx context.Context, serverID, villageID string) error {
	_, err := c.post(ctx, serverID, "army-training", map[string]string{"village_id": villageID})
	return err
}

// SyncWorldData refreshes the world database snapshot for the server.
func (c *Client) SyncWorldData(ctx context.Context, serverID string) error {
	_, err := c.post(ctx, serverID, "world-data", nil)
	return err
}

// SendSupport dispatches a support command between villages.
func (c *Client) SendSupport(ctx context.Context, serverID string, payload core.SupportPayload) error {
	_, err := c.post(ctx, serverID, "support", payload)
	return err
}

// FetchVillageUnits scrapes unit counts, per village then per unit type.
func (c *Client) FetchVillageUnits(ctx context.Context, serverID string, payload core.VillageUnitsPayload) (map[string]map[string]int, error) {
	data, err := c.post(ctx, serverID, "village-units", payload)
	if err != nil {
		return nil, err
	}
	var units map[string]map[string]int
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, fmt.Errorf("decode village units: %w", err)
	}
	return units, nil
}

func (c *Client) post(ctx context.Context, serverID, action string, payload any) (json.RawMessage, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", action, err)
		}
	}
	url := fmt.Sprintf("%s/servers/%s/%s", c.baseURL, serverID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call: %w", action, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s response (status %d): %w", action, resp.StatusCode, err)
	}
	if !decoded.OK {
		return nil, classifyError(action, resp.StatusCode, decoded)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned status %d", action, resp.StatusCode)
	}
	return decoded.Data, nil
}

// classifyError maps the automation service's failure codes onto the
// orchestrator's sentinels so the activity log can tell a dead session
// from a captcha wall.
func classifyError(action string, status int, resp apiResponse) error {
	msg := resp.Error
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	switch resp.Code {
	case "session_expired":
		return fmt.Errorf("%s: %s: %w", action, msg, core.ErrSessionExpired)
	case "captcha_blocked":
		return fmt.Errorf("%s: %s: %w", action, msg, core.ErrCaptchaBlocked)
	default:
		return fmt.Errorf("%s failed: %s", action, msg)
	}
}
