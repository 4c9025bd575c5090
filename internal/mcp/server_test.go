package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/diary/internal/models"
	"github.com/joescharf/diary/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "diary.db"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewServer(s), s
}

// seedSession creates one closed session with a few child records.
func seedSession(t *testing.T, s store.Store, startedAt time.Time) string {
	t.Helper()
	ctx := context.Background()

	id, err := s.OpenOrResumeSession(ctx, startedAt)
	require.NoError(t, err)
	require.NoError(t, s.RecordObjective(ctx, id, "Fix the login flow"))
	require.NoError(t, s.RecordAccomplishment(ctx, id, &models.Accomplishment{
		Category:    models.CategoryCodeDevelopment,
		Description: "Modified auth.go",
		Files:       []string{"auth.go"},
	}))
	require.NoError(t, s.BumpToolUsage(ctx, id, "Edit"))
	require.NoError(t, s.TouchFile(ctx, id, "auth.go", startedAt))
	require.NoError(t, s.CloseSession(ctx, id, startedAt.Add(time.Minute)))
	return id
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
}

func TestHandleRecentSessions_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleRecentSessions(context.Background(), callToolReq("diary_recent_sessions", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleRecentSessions_ReturnsSeededSession(t *testing.T) {
	srv, s := newTestServer(t)
	id := seedSession(t, s, time.Now().Add(-time.Hour))

	result, err := srv.handleRecentSessions(context.Background(), callToolReq("diary_recent_sessions", map[string]any{"limit": 3}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []sessionOut
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, id, out[0].ID)
	assert.Equal(t, "closed", out[0].Status)
	assert.Equal(t, []string{"Fix the login flow"}, out[0].Objectives)
	require.Len(t, out[0].Accomplishments, 1)
	assert.Equal(t, "code_development", out[0].Accomplishments[0].Category)
	assert.Equal(t, 1, out[0].Tools["Edit"])
	assert.Equal(t, 1, out[0].Files["auth.go"])
}

func TestHandleSessionsByDate(t *testing.T) {
	srv, s := newTestServer(t)
	seedSession(t, s, time.Now())

	today := time.Now().Format("2006-01-02")
	result, err := srv.handleSessionsByDate(context.Background(), callToolReq("diary_sessions_by_date", map[string]any{"date": today}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out []sessionOut
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)

	// A different day returns nothing.
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	result, err = srv.handleSessionsByDate(context.Background(), callToolReq("diary_sessions_by_date", map[string]any{"date": yesterday}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleSessionsByDate_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleSessionsByDate(ctx, callToolReq("diary_sessions_by_date", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	assert.True(t, result.IsError)

	result, err = srv.handleSessionsByDate(ctx, callToolReq("diary_sessions_by_date", map[string]any{"date": "06/01/2025"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "YYYY-MM-DD")
}
