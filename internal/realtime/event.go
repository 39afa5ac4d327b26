// Package realtime carries pipeline progress events to live subscribers.
package realtime

import "time"

type EventType string

const (
	EventTaskStarted          EventType = "task.started"
	EventChunkGenerated       EventType = "chunk.generated"
	EventChunkFallback        EventType = "chunk.fallback"
	EventCoverageSupplemented EventType = "coverage.supplemented"
	EventTaskCompleted        EventType = "task.completed"
)

// Event is one progress notification. Channel scopes it to a job so that
// subscribers only see their own document.
type Event struct {
	Channel string         `json:"channel"`
	Type    EventType      `json:"event"`
	Task    string         `json:"task,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}
