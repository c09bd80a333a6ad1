package counter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DecodeDocument parses a stored or imported room document into a generic
// JSON value suitable for Normalize. Numbers are kept exact.
func DecodeDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode room document: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode room document: trailing data")
	}
	return doc, nil
}

// Normalize coerces a decoded document into a RoomState field by field.
// Fields that are missing or carry the wrong type fall back to their
// defaults; valid fields are preserved. Count is not re-derived from the log.
func Normalize(roomKey string, doc any) *RoomState {
	state := NewRoomState(roomKey)
	obj, ok := doc.(map[string]any)
	if !ok {
		return state
	}

	if code, ok := obj["accessCode"].(string); ok {
		state.AccessCode = code
	}
	if count, ok := asNonNegativeInt(obj["count"]); ok {
		state.Count = int(count)
	}
	if last, ok := asNonNegativeInt(obj["lastIncrementTime"]); ok {
		state.LastIncrementTime = last
	}
	if items, ok := obj["log"].([]any); ok {
		for _, item := range items {
			if entry, ok := normalizeEntry(item); ok {
				state.Log = append(state.Log, entry)
			}
		}
	}
	if items, ok := obj["pushSubscriptions"].([]any); ok {
		for _, item := range items {
			if sub, ok := normalizeSubscription(item); ok {
				state.PushSubscriptions = append(state.PushSubscriptions, sub)
			}
		}
	}
	return state
}

func normalizeEntry(item any) (LogEntry, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return LogEntry{}, false
	}
	var entry LogEntry
	switch id := obj["id"].(type) {
	case string:
		entry.ID = id
	default:
		n, ok := asNonNegativeInt(id)
		if !ok {
			return LogEntry{}, false
		}
		entry.ID = strconv.FormatInt(n, 10)
	}
	if entry.ID == "" {
		return LogEntry{}, false
	}
	if count, ok := asNonNegativeInt(obj["count"]); ok {
		entry.Count = int(count)
	}
	entry.Timestamp, _ = obj["timestamp"].(string)
	entry.Username, _ = obj["username"].(string)
	return entry, true
}

func normalizeSubscription(item any) (PushSubscription, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return PushSubscription{}, false
	}
	endpoint, ok := obj["endpoint"].(string)
	if !ok || endpoint == "" {
		return PushSubscription{}, false
	}
	sub := PushSubscription{Endpoint: endpoint}
	sub.ID, _ = obj["id"].(string)
	if created, ok := asNonNegativeInt(obj["createdAt"]); ok {
		sub.CreatedAt = created
	}
	if keys, ok := obj["keys"].(map[string]any); ok {
		sub.Keys = make(map[string]string, len(keys))
		for k, v := range keys {
			if s, ok := v.(string); ok {
				sub.Keys[k] = s
			}
		}
	}
	return sub, true
}

func asNonNegativeInt(v any) (int64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, i >= 0
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		return int64(n), n >= 0
	case int64:
		return n, n >= 0
	default:
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
