package sse

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Record event kinds.
const (
	KindAdded   = "added"
	KindChanged = "changed"
	KindRemoved = "removed"
)

// EventSnapshot tells clients the snapshot may have been rewritten.
const EventSnapshot = "snapshot.updated"

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// change is the outcome of one file update as reported by the updater.
type change struct {
	removed []string
	added   []string
}

// classify turns a change into record events: paths both removed and re-added
// are "changed", the rest "added" or "removed". Removals come first so a
// client applying events in order never sees a stale path.
func classify(c change) []Event {
	var events []Event
	emit := func(kind, path string) {
		events = append(events, Event{Type: "record." + kind, Data: map[string]string{"path": path}})
	}
	for _, p := range c.removed {
		if !slices.Contains(c.added, p) {
			emit(KindRemoved, p)
		}
	}
	for _, p := range c.added {
		if slices.Contains(c.removed, p) {
			emit(KindChanged, p)
		}
	}
	for _, p := range c.added {
		if !slices.Contains(c.removed, p) {
			emit(KindAdded, p)
		}
	}
	return events
}

// frame encodes event in the text/event-stream wire format.
func frame(id uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, event.Type, payload), nil
}
