package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

func ParseChangeKind(raw string) (ChangeKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "insert", "create", "created":
		return ChangeInsert, nil
	case "modify", "update", "updated":
		return ChangeModify, nil
	case "remove", "delete", "deleted":
		return ChangeRemove, nil
	default:
		return "", fmt.Errorf("unknown change kind %q", raw)
	}
}

// changeEventWire is the native JSON form accepted over HTTP and Kafka.
type changeEventWire struct {
	EventKind   string          `json:"eventKind"`
	NewSnapshot json.RawMessage `json:"newSnapshot"`
	OldSnapshot json.RawMessage `json:"oldSnapshot,omitempty"`
}

// DecodeChangeEvent parses `{eventKind, newSnapshot, oldSnapshot?}`.
func (c *RecordCodec) DecodeChangeEvent(raw []byte) (ChangeEvent, error) {
	var w changeEventWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	kind, err := ParseChangeKind(w.EventKind)
	if err != nil {
		return ChangeEvent{}, err
	}
	newObj, err := DecodeObject(w.NewSnapshot)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("newSnapshot: %w", err)
	}
	oldObj, err := DecodeObject(w.OldSnapshot)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("oldSnapshot: %w", err)
	}
	return c.ChangeEventFromObjects(kind, newObj, oldObj)
}

// ChangeEventFromObjects builds an event from already-decoded snapshots.
func (c *RecordCodec) ChangeEventFromObjects(kind ChangeKind, newObj, oldObj map[string]any) (ChangeEvent, error) {
	ev := ChangeEvent{Kind: kind}
	if newObj != nil {
		rec, err := c.Decode(newObj)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.New = &rec
	}
	if oldObj != nil {
		rec, err := c.Decode(oldObj)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Old = &rec
	}
	if ev.Kind != ChangeRemove && ev.New == nil {
		return ChangeEvent{}, fmt.Errorf("%s event without newSnapshot", ev.Kind)
	}
	return ev, nil
}

func (c *RecordCodec) EncodeChangeEvent(ev ChangeEvent) ([]byte, error) {
	w := struct {
		EventKind   string         `json:"eventKind"`
		NewSnapshot map[string]any `json:"newSnapshot,omitempty"`
		OldSnapshot map[string]any `json:"oldSnapshot,omitempty"`
	}{EventKind: string(ev.Kind)}
	if ev.New != nil {
		w.NewSnapshot = c.Encode(*ev.New)
	}
	if ev.Old != nil {
		w.OldSnapshot = c.Encode(*ev.Old)
	}
	return json.Marshal(w)
}
