package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	system, user := buildPrompt("## Session abc\n- did things\n")

	assert.Contains(t, system, "work diary")
	assert.Contains(t, user, "Summarize these diary entries:")
	assert.Contains(t, user, "## Session abc")
}

func TestStripFencing(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Worked on the parser.", "Worked on the parser."},
		{"fenced block unwrapped", "```\nWorked on the parser.\n```", "Worked on the parser."},
		{"fenced with language tag", "```markdown\nWorked on the parser.\n```", "Worked on the parser."},
		{"surrounding whitespace trimmed", "  hello  ", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFencing(tt.in))
		})
	}
}

func TestNewClient_ModelCarried(t *testing.T) {
	c := NewClient("test-key", "claude-sonnet-4-20250514")
	assert.NotNil(t, c.api)
	assert.True(t, strings.HasPrefix(string(c.model), "claude-"))
}
