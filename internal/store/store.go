package store

import (
	"context"
	"time"

	"github.com/joescharf/diary/internal/models"
)

// DefaultSessionWindow is how long a session may sit idle before the
// next event reclaims it and starts a fresh one.
const DefaultSessionWindow = 3 * time.Hour

// Store defines the persistence interface for the diary. The store is
// the single source of truth for which session is open: that state is
// re-derived from durable storage on every call, never cached, since
// writers are separate short-lived processes.
type Store interface {
	// OpenOrResumeSession returns the current open session if its last
	// activity is within the liveness window of now; otherwise it
	// closes the stale session and opens a new one. The check-and-create
	// is atomic with respect to concurrent callers.
	OpenOrResumeSession(ctx context.Context, now time.Time) (string, error)

	RecordAccomplishment(ctx context.Context, sessionID string, a *models.Accomplishment) error
	RecordObjective(ctx context.Context, sessionID, objective string) error
	RecordIssue(ctx context.Context, sessionID, description string) error
	BumpToolUsage(ctx context.Context, sessionID, toolName string) error
	TouchFile(ctx context.Context, sessionID, filePath string, now time.Time) error
	AddDuration(ctx context.Context, sessionID string, ms int64) error

	// CloseSession sets ended_at and status; no-op if already closed.
	CloseSession(ctx context.Context, sessionID string, now time.Time) error

	// QueryRecent returns up to limit sessions, most recent first.
	QueryRecent(ctx context.Context, limit int) ([]*models.Summary, error)
	// QueryByDate returns sessions whose started_at falls within the
	// calendar day of the given time, in that time's location.
	QueryByDate(ctx context.Context, day time.Time) ([]*models.Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
