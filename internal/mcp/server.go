package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/diary/internal/models"
	"github.com/joescharf/diary/internal/store"
)

// Server wraps the diary store and exposes read-only query tools.
type Server struct {
	store store.Store
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store) *Server {
	return &Server{store: s}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("diary", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.recentSessionsTool())
	srv.AddTool(s.sessionsByDateTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// sessionOut is the wire shape for one session summary.
type sessionOut struct {
	ID              string            `json:"id"`
	StartedAt       string            `json:"started_at"`
	EndedAt         string            `json:"ended_at,omitempty"`
	Status          string            `json:"status"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	Objectives      []string          `json:"objectives,omitempty"`
	Accomplishments []accomplishOut   `json:"accomplishments,omitempty"`
	Issues          []string          `json:"issues,omitempty"`
	Tools           map[string]int    `json:"tools,omitempty"`
	Files           map[string]int    `json:"files,omitempty"`
}

type accomplishOut struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	DurationMS  *int64   `json:"duration_ms,omitempty"`
	Files       []string `json:"files,omitempty"`
}

func toSessionOut(sum *models.Summary) sessionOut {
	out := sessionOut{
		ID:              sum.Session.ID,
		StartedAt:       sum.Session.StartedAt.Format(time.RFC3339),
		Status:          string(sum.Session.Status),
		TotalDurationMS: sum.Session.TotalDurationMS,
		Objectives:      sum.Objectives,
	}
	if sum.Session.EndedAt != nil {
		out.EndedAt = sum.Session.EndedAt.Format(time.RFC3339)
	}
	for _, acc := range sum.Accomplishments {
		out.Accomplishments = append(out.Accomplishments, accomplishOut{
			Category:    string(acc.Category),
			Description: acc.Description,
			DurationMS:  acc.DurationMS,
			Files:       acc.Files,
		})
	}
	for _, issue := range sum.Issues {
		out.Issues = append(out.Issues, issue.Description)
	}
	if len(sum.Tools) > 0 {
		out.Tools = make(map[string]int, len(sum.Tools))
		for _, tu := range sum.Tools {
			out.Tools[tu.ToolName] = tu.Count
		}
	}
	if len(sum.Files) > 0 {
		out.Files = make(map[string]int, len(sum.Files))
		for _, f := range sum.Files {
			out.Files[f.FilePath] = f.TouchCount
		}
	}
	return out
}

func marshalSummaries(summaries []*models.Summary) (*mcp.CallToolResult, error) {
	out := make([]sessionOut, len(summaries))
	for i, sum := range summaries {
		out[i] = toSessionOut(sum)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// diary_recent_sessions
func (s *Server) recentSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("diary_recent_sessions",
		mcp.WithDescription("List the most recent coding sessions with their objectives, accomplishments, issues, tool usage, and files touched. Returns a JSON array, most recent first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of sessions to return (default 5)")),
	)
	return tool, s.handleRecentSessions
}

func (s *Server) handleRecentSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	summaries, err := s.store.QueryRecent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query sessions: %v", err)), nil
	}
	return marshalSummaries(summaries)
}

// diary_sessions_by_date
func (s *Server) sessionsByDateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("diary_sessions_by_date",
		mcp.WithDescription("List the coding sessions that started on a given calendar day (local time). Returns a JSON array."),
		mcp.WithString("date", mcp.Required(), mcp.Description("Day to query, formatted YYYY-MM-DD")),
	)
	return tool, s.handleSessionsByDate
}

func (s *Server) handleSessionsByDate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dateStr, err := request.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: date"), nil
	}

	day, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", dateStr)), nil
	}

	summaries, err := s.store.QueryByDate(ctx, day)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query sessions: %v", err)), nil
	}
	return marshalSummaries(summaries)
}
