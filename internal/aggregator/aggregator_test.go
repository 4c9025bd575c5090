package aggregator

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/diary/internal/classify"
	"github.com/joescharf/diary/internal/models"
	"github.com/joescharf/diary/internal/output"
	"github.com/joescharf/diary/internal/store"
)

func newTestProcessor(t *testing.T, dbPath string) (*Processor, store.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(dbPath, 0)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	ui := &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	return New(s, ui, classify.Default()), s
}

func process(t *testing.T, p *Processor, input string) {
	t.Helper()
	require.NoError(t, p.ProcessStream(context.Background(), strings.NewReader(input)))
}

func recent(t *testing.T, s store.Store) []*models.Summary {
	t.Helper()
	summaries, err := s.QueryRecent(context.Background(), 10)
	require.NoError(t, err)
	return summaries
}

func TestSessionStart_RecordsObjectiveAndAccomplishment(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	process(t, p, `{"event_type":"session_start","user_prompt":"Fix the authentication bug"}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"Fix the authentication bug"}, summaries[0].Objectives)

	require.NotEmpty(t, summaries[0].Accomplishments)
	assert.Equal(t, models.CategoryCodeDevelopment, summaries[0].Accomplishments[0].Category)
}

func TestToolCall_RecordsUsageFileAndAccomplishment(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	process(t, p, `{"event_type":"tool_call","tool_calls":[{"tool_name":"Edit","parameters":{"file_path":"auth.rs"},"duration_ms":1500,"success":true}]}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)

	require.Len(t, summaries[0].Tools, 1)
	assert.Equal(t, "Edit", summaries[0].Tools[0].ToolName)
	assert.Equal(t, 1, summaries[0].Tools[0].Count)

	require.Len(t, summaries[0].Files, 1)
	assert.Equal(t, "auth.rs", summaries[0].Files[0].FilePath)
	assert.Equal(t, 1, summaries[0].Files[0].TouchCount)

	require.Len(t, summaries[0].Accomplishments, 1)
	acc := summaries[0].Accomplishments[0]
	assert.Equal(t, models.CategoryCodeDevelopment, acc.Category)
	assert.Equal(t, "Modified auth.rs", acc.Description)
	require.NotNil(t, acc.DurationMS)
	assert.Equal(t, int64(1500), *acc.DurationMS)
	assert.Equal(t, []string{"auth.rs"}, acc.Files)
}

func TestErrorEvent_RecordsIssue(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	process(t, p, `{"event_type":"error","error":"validation failed"}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	require.Len(t, summaries[0].Issues, 1)
	assert.Contains(t, summaries[0].Issues[0].Description, "validation failed")
}

func TestFullStream_SingleClosedSession(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	input := `{"event_type":"session_start","user_prompt":"hello there"}
{"event_type":"tool_call","tool_calls":[{"tool_name":"Read","parameters":{"file_path":"main.go"}}]}
{"event_type":"session_end"}
`
	process(t, p, input)

	summaries := recent(t, s)
	require.Len(t, summaries, 1, "exactly one session row")

	sess := summaries[0].Session
	assert.Equal(t, models.SessionStatusClosed, sess.Status)
	assert.NotNil(t, sess.EndedAt)

	assert.Equal(t, []string{"hello there"}, summaries[0].Objectives)

	require.Len(t, summaries[0].Accomplishments, 1)
	assert.Equal(t, models.CategoryCodeAnalysis, summaries[0].Accomplishments[0].Category)

	require.Len(t, summaries[0].Tools, 1)
	assert.Equal(t, "Read", summaries[0].Tools[0].ToolName)
	assert.Equal(t, 1, summaries[0].Tools[0].Count)
}

func TestTwoInvocations_ShareOneSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "diary.db")

	// First invocation: its own processor and store, as in a separate
	// process launch.
	p1, s1 := newTestProcessor(t, dbPath)
	process(t, p1, `{"event_type":"session_start","user_prompt":"Refactor the storage layer"}`)
	require.NoError(t, s1.Close())

	// Second invocation within the liveness window, no session_start.
	p2, s2 := newTestProcessor(t, dbPath)
	process(t, p2, `{"event_type":"tool_call","tool_calls":[{"tool_name":"Grep","parameters":{}}]}`)

	summaries := recent(t, s2)
	require.Len(t, summaries, 1, "both invocations land on one session")
	assert.NotEmpty(t, summaries[0].Objectives)
	require.Len(t, summaries[0].Tools, 1)
	assert.Equal(t, "Grep", summaries[0].Tools[0].ToolName)
}

func TestMultiLineSingleObject(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	input := `{
  "event_type": "session_start",
  "user_prompt": "Add integration tests"
}`
	process(t, p, input)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"Add integration tests"}, summaries[0].Objectives)
}

func TestMalformedLine_SkippedWithoutAborting(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	input := "this is not json\n" +
		`{"event_type":"error","error":"oops"}` + "\n"
	process(t, p, input)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	require.Len(t, summaries[0].Issues, 1, "valid line after a malformed one still lands")
	assert.Empty(t, summaries[0].Objectives, "malformed line is skipped, not recorded")
}

func TestNestedPromptExtraction(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	process(t, p, `{"event_type":"session_start","user_prompt":"{\"prompt\": \"Fix the bug\"}"}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	assert.Equal(t, []string{"Fix the bug"}, summaries[0].Objectives)
}

func TestEventDuration_Accumulates(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	process(t, p, `{"event_type":"error","error":"slow","duration_ms":1200}`)
	process(t, p, `{"event_type":"error","error":"slower","duration_ms":800}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2000), summaries[0].Session.TotalDurationMS)
}

func TestLongObjective_Truncated(t *testing.T) {
	p, s := newTestProcessor(t, filepath.Join(t.TempDir(), "diary.db"))

	long := strings.Repeat("implement the thing ", 10) // 200 chars
	process(t, p, `{"event_type":"session_start","user_prompt":"`+long+`"}`)

	summaries := recent(t, s)
	require.Len(t, summaries[0].Objectives, 1)
	assert.Len(t, []rune(summaries[0].Objectives[0]), 100)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"short prompt falls back", "fix", "Implemented code changes"},
		{"medium prompt appended", "fix the login flow", "Implemented code changes: fix the login flow"},
		{"first line only", "fix the parser\nand other stuff", "Implemented code changes: fix the parser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.prompt, "Implemented code changes"))
		})
	}
}

func TestExtractFiles(t *testing.T) {
	files := extractFiles("update auth.go and auth.go plus docs/readme.md")
	assert.Equal(t, []string{"auth.go", "docs/readme.md"}, files)

	assert.Nil(t, extractFiles("no files here"))
}

func TestStaleSessionReclaimedAcrossInvocations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "diary.db")

	s, err := store.NewSQLiteStore(dbPath, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	defer s.Close()

	// Simulate an orchestrator that died hours ago without session_end.
	stale := time.Now().Add(-2 * time.Hour)
	_, err = s.OpenOrResumeSession(context.Background(), stale)
	require.NoError(t, err)

	ui := &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	p := New(s, ui, classify.Default())
	process(t, p, `{"event_type":"error","error":"boom"}`)

	summaries := recent(t, s)
	require.Len(t, summaries, 2)
	assert.Equal(t, models.SessionStatusOpen, summaries[0].Session.Status)
	assert.Equal(t, models.SessionStatusClosed, summaries[1].Session.Status)
	require.Len(t, summaries[0].Issues, 1, "new event lands on the fresh session")
	assert.Empty(t, summaries[1].Issues)
}
