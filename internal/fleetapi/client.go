// Package fleetapi is the HTTP client for the game server's admin API: it
// fetches entity metadata, historical and live positions, and submits admin
// commands to the server's command queue.
package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/sudotools/fleetwatch/internal/playback"
)

// EntityInfo is one selectable entity from the fleet backend.
type EntityInfo struct {
	EntityID    string              `json:"entity_id"`
	Kind        playback.EntityKind `json:"kind"`
	DisplayName string              `json:"display_name"`
	LastSeenAt  string              `json:"last_seen_at"`
}

// LivePosition is one entry of the backend's current-state feed.
type LivePosition struct {
	EntityID string                  `json:"entity_id"`
	Sample   playback.PositionSample `json:"sample"`
}

// Command is an admin command submitted to the game server. The vocabulary
// follows the server mod's queue format: heal, teleport, message, broadcast.
type Command struct {
	RequestID   string  `json:"request_id"`
	PlayerID    string  `json:"player_id"`
	CommandType string  `json:"command_type"`
	Value       float64 `json:"value,omitempty"` // heal: health amount 0-100
	PosX        float64 `json:"pos_x,omitempty"`
	PosY        float64 `json:"pos_y,omitempty"`
	PosZ        float64 `json:"pos_z,omitempty"`
	Message     string  `json:"message,omitempty"`
	MessageType string  `json:"message_type,omitempty"` // notification, chat, or both
}

// CommandResult is the backend's acknowledgement of a queued command.
type CommandResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"` // pending, completed, failed
	Result    string `json:"result"`
}

// Client talks to the fleet backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client. The timeout covers each request
// end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchEntityPositions returns the raw position history for an entity over
// [start, end]. The backend returns samples in non-decreasing timestamp
// order; that ordering is a contract of the backend, not re-established
// here.
func (c *Client) FetchEntityPositions(ctx context.Context, entityID string, start, end time.Time) ([]playback.PositionSample, error) {
	q := url.Values{}
	q.Set("entity_id", entityID)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var samples []playback.PositionSample
	if err := c.getJSON(ctx, "/api/positions/history?"+q.Encode(), &samples); err != nil {
		return nil, fmt.Errorf("fetch positions for %s: %w", entityID, err)
	}
	return samples, nil
}

// FetchEntityList returns the selectable entity set with last-seen info.
func (c *Client) FetchEntityList(ctx context.Context) ([]EntityInfo, error) {
	var entities []EntityInfo
	if err := c.getJSON(ctx, "/api/entities", &entities); err != nil {
		return nil, fmt.Errorf("fetch entity list: %w", err)
	}
	return entities, nil
}

// FetchLiveEntityPositions returns the backend's current-state feed, one
// latest position per online entity.
func (c *Client) FetchLiveEntityPositions(ctx context.Context) ([]LivePosition, error) {
	var positions []LivePosition
	if err := c.getJSON(ctx, "/api/positions/live", &positions); err != nil {
		return nil, fmt.Errorf("fetch live positions: %w", err)
	}
	return positions, nil
}

// SendCommand queues an admin command on the backend. A missing request ID
// is filled in with a fresh UUID so results can be correlated later.
func (c *Client) SendCommand(ctx context.Context, cmd Command) (*CommandResult, error) {
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.New().String()
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/commands", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build command request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("send command: backend returned %s", resp.Status)
	}

	var result CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode command result: %w", err)
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
