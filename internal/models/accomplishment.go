package models

import "time"

// Accomplishment is a categorized unit of completed or attempted work,
// derived from a user prompt or a tool call. Files holds the paths
// linked to this accomplishment, deduplicated.
type Accomplishment struct {
	ID          string
	SessionID   string
	Category    Category
	Description string
	DurationMS  *int64
	Files       []string
	CreatedAt   time.Time
}
