package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/diary/internal/models"
)

func sampleSummary() *models.Summary {
	started := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	ended := started.Add(time.Hour)
	dur := int64(1500)
	return &models.Summary{
		Session: &models.Session{
			ID:              "01JSESSION",
			StartedAt:       started,
			EndedAt:         &ended,
			Status:          models.SessionStatusClosed,
			TotalDurationMS: 120000,
		},
		Accomplishments: []*models.Accomplishment{
			{Category: models.CategoryCodeDevelopment, Description: "Modified auth.go", DurationMS: &dur, Files: []string{"auth.go"}},
			{Category: models.CategoryCodeAnalysis, Description: "Inspected code"},
			{Category: models.CategoryCodeDevelopment, Description: "Implemented code changes: fix login"},
		},
		Objectives: []string{"Fix the login flow"},
		Issues:     []*models.Issue{{Description: "Error encountered: timeout"}},
		Tools:      []*models.ToolUsage{{ToolName: "Edit", Count: 3}},
		Files:      []*models.FileModified{{FilePath: "auth.go", TouchCount: 3}},
	}
}

func TestMarkdown_Sections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Markdown(&buf, sampleSummary()))
	out := buf.String()

	assert.Contains(t, out, "### Accomplishments _(~2 minutes)_")
	assert.Contains(t, out, "#### Code Development")
	assert.Contains(t, out, "#### Code Analysis")
	assert.Contains(t, out, "- **Modified auth.go** _(1500ms)_")
	assert.Contains(t, out, "  - Files: auth.go")
	assert.Contains(t, out, "### Session Objectives\n- Fix the login flow")
	assert.Contains(t, out, "### Issues Encountered\n- Error encountered: timeout")
	assert.Contains(t, out, "### Tools Used\n- Edit: 3 times")
	assert.Contains(t, out, "### Files Modified\n- auth.go")
	assert.True(t, strings.HasSuffix(out, "---\n"))
}

func TestMarkdown_CategoryOrderStable(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Markdown(&a, sampleSummary()))
	require.NoError(t, Markdown(&b, sampleSummary()))
	assert.Equal(t, a.String(), b.String())

	// code_analysis sorts before code_development.
	out := a.String()
	assert.Less(t, strings.Index(out, "#### Code Analysis"), strings.Index(out, "#### Code Development"))
}

func TestMarkdown_EmptySectionsOmitted(t *testing.T) {
	var buf bytes.Buffer
	sum := &models.Summary{Session: &models.Session{ID: "x", StartedAt: time.Now(), Status: models.SessionStatusOpen}}
	require.NoError(t, Markdown(&buf, sum))

	out := buf.String()
	assert.NotContains(t, out, "### Accomplishments")
	assert.NotContains(t, out, "### Issues Encountered")
	assert.Contains(t, out, "---\n")
}

func TestDurationDisplay(t *testing.T) {
	assert.Equal(t, "< 1 minute", durationDisplay(59999))
	assert.Equal(t, "~1 minutes", durationDisplay(60000))
	assert.Equal(t, "~5 minutes", durationDisplay(300000))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*models.Summary{sampleSummary()}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ID,Started,Ended,Status")
	assert.Contains(t, lines[1], "01JSESSION")
	assert.Contains(t, lines[1], "closed")
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []*models.Summary{sampleSummary()}))

	var decoded []*models.Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "01JSESSION", decoded[0].Session.ID)
	assert.Len(t, decoded[0].Accomplishments, 3)
}
