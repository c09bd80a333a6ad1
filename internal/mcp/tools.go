package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
	"github.com/rpggio/tallyroom/internal/room"
)

type roomInput struct {
	AccessCode string `json:"access_code,omitempty" jsonschema:"room access code; omit for the default room"`
}

type incrementInput struct {
	AccessCode string `json:"access_code,omitempty" jsonschema:"room access code; omit for the default room"`
	Username   string `json:"username,omitempty" jsonschema:"name recorded in the log entry"`
}

type deleteEntryInput struct {
	AccessCode string `json:"access_code,omitempty" jsonschema:"room access code; omit for the default room"`
	EntryID    string `json:"entry_id" jsonschema:"id of the log entry to delete"`
}

type activityInput struct {
	AccessCode string `json:"access_code,omitempty" jsonschema:"room access code; omit for the default room"`
	Type       string `json:"type,omitempty" jsonschema:"only list this activity type"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum entries to return"`
}

// RoomOutput is the room document as exposed to MCP clients. Push
// subscriptions are left out.
type RoomOutput struct {
	AccessCode        string           `json:"accessCode"`
	Count             int              `json:"count"`
	LastIncrementTime int64            `json:"lastIncrementTime"`
	Log               []LogEntryOutput `json:"log"`
}

type LogEntryOutput struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Count     int    `json:"count"`
	Username  string `json:"username,omitempty"`
}

type ActivityOutput struct {
	Entries []ActivityEntryOutput `json:"entries"`
}

type ActivityEntryOutput struct {
	Type      string `json:"type"`
	Actor     string `json:"actor,omitempty"`
	Summary   string `json:"summary"`
	Details   string `json:"details,omitempty"`
	CreatedAt string `json:"created_at"`
}

type toolHandlers struct {
	counter     CounterService
	activity    ActivityService
	defaultRoom string
}

func registerTools(server *sdkmcp.Server, cfg Config) {
	h := &toolHandlers{counter: cfg.Counter, activity: cfg.Activity, defaultRoom: cfg.DefaultRoom}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_counter",
		Description: "Get the room's count and its recent log entries",
	}, h.getCounter)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "button_state",
		Description: "Report whether the room accepts an increment and how long until it does",
	}, h.buttonState)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "increment",
		Description: "Add one to the room count; fails with RATE_LIMITED inside the 20 second cooldown",
	}, h.increment)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_log_entry",
		Description: "Delete a log entry by id and re-derive the count from what remains",
	}, h.deleteEntry)
	if h.activity != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "recent_activity",
			Description: "List the room's activity journal, newest first",
		}, h.recentActivity)
	}
}

func (h *toolHandlers) roomKey(code string) string {
	if key := room.Resolve(strings.TrimSpace(code)); key != "" {
		return key
	}
	return room.Resolve(h.defaultRoom)
}

func (h *toolHandlers) getCounter(ctx context.Context, _ *sdkmcp.CallToolRequest, in roomInput) (*sdkmcp.CallToolResult, RoomOutput, error) {
	state, err := h.counter.Get(ctx, h.roomKey(in.AccessCode))
	if err != nil {
		return nil, RoomOutput{}, MapError(err)
	}
	return nil, toRoomOutput(state), nil
}

func (h *toolHandlers) buttonState(ctx context.Context, _ *sdkmcp.CallToolRequest, in roomInput) (*sdkmcp.CallToolResult, counter.ButtonState, error) {
	bs, err := h.counter.ButtonState(ctx, h.roomKey(in.AccessCode))
	if err != nil {
		return nil, counter.ButtonState{}, MapError(err)
	}
	return nil, bs, nil
}

func (h *toolHandlers) increment(ctx context.Context, _ *sdkmcp.CallToolRequest, in incrementInput) (*sdkmcp.CallToolResult, RoomOutput, error) {
	state, err := h.counter.Increment(ctx, h.roomKey(in.AccessCode), in.Username)
	if err != nil {
		return nil, RoomOutput{}, MapError(err)
	}
	return nil, toRoomOutput(state), nil
}

func (h *toolHandlers) deleteEntry(ctx context.Context, _ *sdkmcp.CallToolRequest, in deleteEntryInput) (*sdkmcp.CallToolResult, RoomOutput, error) {
	if strings.TrimSpace(in.EntryID) == "" {
		return nil, RoomOutput{}, &ToolError{Code: "INVALID_INPUT", Message: "entry_id is required"}
	}
	state, err := h.counter.DeleteEntry(ctx, h.roomKey(in.AccessCode), in.EntryID)
	if err != nil {
		return nil, RoomOutput{}, MapError(fmt.Errorf("entry %q: %w", in.EntryID, err))
	}
	return nil, toRoomOutput(state), nil
}

func (h *toolHandlers) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in activityInput) (*sdkmcp.CallToolResult, ActivityOutput, error) {
	opts := activity.ListActivityOptions{Limit: in.Limit}
	if in.Type != "" {
		typ := activity.ActivityType(in.Type)
		opts.ActivityType = &typ
	}
	entries, err := h.activity.GetRecentActivity(ctx, h.roomKey(in.AccessCode), opts)
	if err != nil {
		return nil, ActivityOutput{}, MapError(err)
	}

	out := ActivityOutput{Entries: make([]ActivityEntryOutput, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, ActivityEntryOutput{
			Type:      string(e.ActivityType),
			Actor:     e.Actor,
			Summary:   e.Summary,
			Details:   e.Details,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func toRoomOutput(state *counter.RoomState) RoomOutput {
	out := RoomOutput{Log: make([]LogEntryOutput, 0)}
	if state == nil {
		return out
	}
	out.AccessCode = state.AccessCode
	out.Count = state.Count
	out.LastIncrementTime = state.LastIncrementTime
	for _, e := range state.Log {
		out.Log = append(out.Log, LogEntryOutput{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Count:     e.Count,
			Username:  e.Username,
		})
	}
	return out
}
