package models

import "time"

// Issue records an error or problem surfaced by an event.
type Issue struct {
	SessionID   string
	Description string
	CreatedAt   time.Time
}

// ToolUsage counts invocations of one tool within a session.
type ToolUsage struct {
	SessionID string
	ToolName  string
	Count     int
}

// FileModified tracks one file touched during a session.
type FileModified struct {
	SessionID     string
	FilePath      string
	TouchCount    int
	LastTouchedAt time.Time
}
