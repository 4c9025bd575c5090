package models

import "time"

// SessionStatus represents the lifecycle state of a diary session.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

// Session is one bounded unit of developer activity, tracked from its
// first event until an explicit session_end or staleness reclaim. At
// most one session is open at a time; the store enforces this.
type Session struct {
	ID              string
	StartedAt       time.Time
	EndedAt         *time.Time
	LastActivityAt  time.Time
	Status          SessionStatus
	TotalDurationMS int64
	CreatedAt       time.Time
}

// Summary is a session assembled with all of its child records, in
// the shape the reporting and query layers consume.
type Summary struct {
	Session         *Session
	Accomplishments []*Accomplishment
	Objectives      []string
	Issues          []*Issue
	Tools           []*ToolUsage
	Files           []*FileModified
}
