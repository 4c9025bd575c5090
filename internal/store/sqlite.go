package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/diary/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// writeRetries bounds the retry loop for contended writes. Each
// attempt already waits up to busy_timeout inside SQLite; the loop
// covers conflicts surfacing as errors instead of waits.
const (
	writeRetries = 3
	retryBackoff = 50 * time.Millisecond
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no
// CGO). Several hook processes may hold the same database file open
// at once; WAL keeps readers unblocked and busy_timeout makes writers
// queue instead of failing.
type SQLiteStore struct {
	db     *sql.DB
	window time.Duration
}

// NewSQLiteStore opens (or creates) the diary database at the given
// path. window is the session liveness window; zero or negative means
// DefaultSessionWindow.
func NewSQLiteStore(dbPath string, window time.Duration) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create diary directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes this process's access through Go's
	// connection pool; cross-process contention is handled by
	// busy_timeout plus the bounded retry loop.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if window <= 0 {
		window = DefaultSessionWindow
	}

	return &SQLiteStore{db: db, window: window}, nil
}

// newULID generates a new ULID string. ULIDs are time-ordered, so
// session IDs sort chronologically.
func newULID() string {
	return ulid.Make().String()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withRetry runs fn, retrying a small fixed number of times on lock
// contention with linear backoff. Anything else propagates untouched.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Session lifecycle ---

// OpenOrResumeSession resolves the target session for an incoming
// event. Exclusivity is enforced by the partial unique index on
// status='open': a racing INSERT loses with a constraint violation and
// the loop re-reads, resuming the winner's session.
func (s *SQLiteStore) OpenOrResumeSession(ctx context.Context, now time.Time) (string, error) {
	now = now.UTC()

	var id string
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		id, err = s.openOrResumeOnce(ctx, now)
		if err == nil {
			return id, nil
		}
		if !isUniqueViolation(err) && !isBusy(err) {
			return "", err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("open or resume session: %w", err)
}

func (s *SQLiteStore) openOrResumeOnce(ctx context.Context, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	var lastActivity time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT id, last_activity_at FROM sessions WHERE status = ? LIMIT 1",
		models.SessionStatusOpen,
	).Scan(&id, &lastActivity)

	switch {
	case err == nil:
		if now.Sub(lastActivity.UTC()) <= s.window {
			// Session is still live; this event belongs to it.
			if _, err := tx.ExecContext(ctx,
				"UPDATE sessions SET last_activity_at = ? WHERE id = ?", now, id); err != nil {
				return "", fmt.Errorf("refresh session activity: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return "", fmt.Errorf("commit tx: %w", err)
			}
			return id, nil
		}

		// Stale: the orchestrator died without a session_end. Close it
		// as of its last activity and start fresh.
		if _, err := tx.ExecContext(ctx,
			"UPDATE sessions SET status = ?, ended_at = last_activity_at WHERE id = ?",
			models.SessionStatusClosed, id); err != nil {
			return "", fmt.Errorf("close stale session: %w", err)
		}

	case err == sql.ErrNoRows:
		// No open session; fall through to create.

	default:
		return "", fmt.Errorf("find open session: %w", err)
	}

	newID := newULID()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, last_activity_at, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		newID, now, now, models.SessionStatusOpen, now); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return newID, nil
}

// CloseSession marks the session closed. Closing an already-closed
// session is a no-op.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string, now time.Time) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET status = ?, ended_at = ?, last_activity_at = ? WHERE id = ? AND status = ?",
			models.SessionStatusClosed, now.UTC(), now.UTC(), sessionID, models.SessionStatusOpen)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		return nil
	})
}

// --- Child records ---

func (s *SQLiteStore) RecordAccomplishment(ctx context.Context, sessionID string, a *models.Accomplishment) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	a.SessionID = sessionID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	return withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accomplishments (id, session_id, category, description, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.SessionID, string(a.Category), a.Description, a.DurationMS, a.CreatedAt); err != nil {
			return fmt.Errorf("create accomplishment: %w", err)
		}

		for _, path := range a.Files {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO accomplishment_files (accomplishment_id, file_path) VALUES (?, ?)",
				a.ID, path); err != nil {
				return fmt.Errorf("link accomplishment file: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) RecordObjective(ctx context.Context, sessionID, objective string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO objectives (session_id, objective, created_at) VALUES (?, ?, ?)",
			sessionID, objective, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("record objective: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) RecordIssue(ctx context.Context, sessionID, description string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO issues (session_id, issue, created_at) VALUES (?, ?, ?)",
			sessionID, description, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("record issue: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) BumpToolUsage(ctx context.Context, sessionID, toolName string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tool_usage (session_id, tool_name, usage_count) VALUES (?, ?, 1)
			ON CONFLICT (session_id, tool_name) DO UPDATE SET usage_count = usage_count + 1`,
			sessionID, toolName)
		if err != nil {
			return fmt.Errorf("bump tool usage: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) TouchFile(ctx context.Context, sessionID, filePath string, now time.Time) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO files_modified (session_id, file_path, touch_count, last_touched_at) VALUES (?, ?, 1, ?)
			ON CONFLICT (session_id, file_path) DO UPDATE SET touch_count = touch_count + 1, last_touched_at = excluded.last_touched_at`,
			sessionID, filePath, now.UTC())
		if err != nil {
			return fmt.Errorf("touch file: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) AddDuration(ctx context.Context, sessionID string, ms int64) error {
	if ms <= 0 {
		return nil
	}
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET total_duration_ms = total_duration_ms + ? WHERE id = ?",
			ms, sessionID)
		if err != nil {
			return fmt.Errorf("add duration: %w", err)
		}
		return nil
	})
}

// --- Queries ---

func (s *SQLiteStore) QueryRecent(ctx context.Context, limit int) ([]*models.Summary, error) {
	query := `SELECT id, started_at, ended_at, last_activity_at, status, total_duration_ms, created_at
		FROM sessions ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.querySummaries(ctx, query, args...)
}

func (s *SQLiteStore) QueryByDate(ctx context.Context, day time.Time) ([]*models.Summary, error) {
	// Calendar-day boundaries in the caller's timezone, compared as
	// the UTC instants the store persists.
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	return s.querySummaries(ctx,
		`SELECT id, started_at, ended_at, last_activity_at, status, total_duration_ms, created_at
		FROM sessions WHERE started_at >= ? AND started_at < ? ORDER BY started_at`,
		start.UTC(), end.UTC())
}

func (s *SQLiteStore) querySummaries(ctx context.Context, query string, args ...any) ([]*models.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		var status string
		var endedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.LastActivityAt,
			&status, &sess.TotalDurationMS, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Status = models.SessionStatus(status)
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]*models.Summary, 0, len(sessions))
	for _, sess := range sessions {
		summary, err := s.loadSummary(ctx, sess)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// loadSummary assembles one session's child records.
func (s *SQLiteStore) loadSummary(ctx context.Context, sess *models.Session) (*models.Summary, error) {
	summary := &models.Summary{Session: sess}

	accs, err := s.loadAccomplishments(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	summary.Accomplishments = accs

	rows, err := s.db.QueryContext(ctx,
		"SELECT objective FROM objectives WHERE session_id = ? ORDER BY id", sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load objectives: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var obj string
		if err := rows.Scan(&obj); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		summary.Objectives = append(summary.Objectives, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	issueRows, err := s.db.QueryContext(ctx,
		"SELECT issue, created_at FROM issues WHERE session_id = ? ORDER BY id", sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	defer func() { _ = issueRows.Close() }()
	for issueRows.Next() {
		iss := &models.Issue{SessionID: sess.ID}
		if err := issueRows.Scan(&iss.Description, &iss.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		summary.Issues = append(summary.Issues, iss)
	}
	if err := issueRows.Err(); err != nil {
		return nil, err
	}

	toolRows, err := s.db.QueryContext(ctx,
		"SELECT tool_name, usage_count FROM tool_usage WHERE session_id = ? ORDER BY tool_name", sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load tool usage: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		tu := &models.ToolUsage{SessionID: sess.ID}
		if err := toolRows.Scan(&tu.ToolName, &tu.Count); err != nil {
			return nil, fmt.Errorf("scan tool usage: %w", err)
		}
		summary.Tools = append(summary.Tools, tu)
	}
	if err := toolRows.Err(); err != nil {
		return nil, err
	}

	fileRows, err := s.db.QueryContext(ctx,
		"SELECT file_path, touch_count, last_touched_at FROM files_modified WHERE session_id = ? ORDER BY file_path", sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load files modified: %w", err)
	}
	defer func() { _ = fileRows.Close() }()
	for fileRows.Next() {
		fm := &models.FileModified{SessionID: sess.ID}
		if err := fileRows.Scan(&fm.FilePath, &fm.TouchCount, &fm.LastTouchedAt); err != nil {
			return nil, fmt.Errorf("scan file modified: %w", err)
		}
		summary.Files = append(summary.Files, fm)
	}
	if err := fileRows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *SQLiteStore) loadAccomplishments(ctx context.Context, sessionID string) ([]*models.Accomplishment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, description, duration_ms, created_at
		FROM accomplishments WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load accomplishments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accs []*models.Accomplishment
	byID := make(map[string]*models.Accomplishment)
	for rows.Next() {
		a := &models.Accomplishment{SessionID: sessionID}
		var category string
		var durationMS sql.NullInt64
		if err := rows.Scan(&a.ID, &category, &a.Description, &durationMS, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan accomplishment: %w", err)
		}
		a.Category = models.Category(category)
		if durationMS.Valid {
			a.DurationMS = &durationMS.Int64
		}
		accs = append(accs, a)
		byID[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fileRows, err := s.db.QueryContext(ctx,
		`SELECT af.accomplishment_id, af.file_path
		FROM accomplishment_files af
		JOIN accomplishments a ON a.id = af.accomplishment_id
		WHERE a.session_id = ? ORDER BY af.file_path`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load accomplishment files: %w", err)
	}
	defer func() { _ = fileRows.Close() }()
	for fileRows.Next() {
		var accID, path string
		if err := fileRows.Scan(&accID, &path); err != nil {
			return nil, fmt.Errorf("scan accomplishment file: %w", err)
		}
		if a, ok := byID[accID]; ok {
			a.Files = append(a.Files, path)
		}
	}
	return accs, fileRows.Err()
}
