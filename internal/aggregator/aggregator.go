// Package aggregator drives one hook invocation: read events from the
// input stream, classify them, and persist each one as it arrives so
// partial progress survives a crash mid-stream.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/diary/internal/classify"
	"github.com/joescharf/diary/internal/event"
	"github.com/joescharf/diary/internal/models"
	"github.com/joescharf/diary/internal/output"
	"github.com/joescharf/diary/internal/store"
)

const (
	maxObjectiveLen   = 100
	maxIssueLen       = 150
	maxDescriptionLen = 80
)

// defaultDescriptions supply the accomplishment text when the prompt
// itself is too short to be useful.
var defaultDescriptions = map[models.Category]string{
	models.CategoryCodeDevelopment:     "Implemented code changes",
	models.CategoryDocumentation:       "Created documentation",
	models.CategoryAnalysis:            "Analyzed codebase",
	models.CategoryDatabaseOperations:  "Worked with database",
	models.CategoryFrontendDevelopment: "Worked on user interface",
	models.CategorySystemOperations:    "Configured system",
	models.CategoryProjectManagement:   "Managed tasks",
	models.CategoryCodeAnalysis:        "Inspected code",
	models.CategoryCodeSearch:          "Searched for information",
	models.CategoryAICollaboration:     "Delegated work to an agent",
	models.CategoryResearch:            "Researched documentation",
	models.CategoryUncategorized:       "Worked on project task",
}

// filePathRe matches file paths with common source extensions
// mentioned in prompt text.
var filePathRe = regexp.MustCompile(`[\w./-]+\.(?:go|rs|js|ts|tsx|py|java|cpp|c|h|json|yaml|yml|toml|md|sql)\b`)

// Processor aggregates one invocation's event stream into the store.
type Processor struct {
	store store.Store
	ui    *output.UI
	rules *classify.Classifier
}

// New creates a Processor.
func New(s store.Store, ui *output.UI, rules *classify.Classifier) *Processor {
	return &Processor{store: s, ui: ui, rules: rules}
}

// ProcessStream reads the input to EOF and applies each event. The
// stream is either newline-delimited JSON events or a single
// (possibly multi-line) JSON object. Per-event failures are logged
// and skipped; only reading the stream itself can fail.
func (p *Processor) ProcessStream(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read input stream: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	// A single JSON object spanning multiple lines is one event.
	if trimmed[0] == '{' && json.Valid(trimmed) {
		p.handleLine(ctx, trimmed)
		return nil
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		p.handleLine(ctx, line)
	}
	return nil
}

func (p *Processor) handleLine(ctx context.Context, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	ev, err := event.Decode(line)
	if err != nil {
		p.ui.VerboseLog("skipping unparseable line: %v", err)
		return
	}

	p.ui.VerboseLog("processing event: %s", ev.RawType)

	if err := p.apply(ctx, ev); err != nil {
		p.ui.Error("process %s event: %v", ev.RawType, err)
	}
}

// apply resolves the target session and issues the store calls for
// one event. A returned error means the session itself could not be
// resolved; child-record failures are logged and dropped individually.
func (p *Processor) apply(ctx context.Context, ev *event.Event) error {
	now := time.Now()

	sessionID, err := p.store.OpenOrResumeSession(ctx, now)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	if ev.DurationMS != nil {
		if err := p.store.AddDuration(ctx, sessionID, *ev.DurationMS); err != nil {
			p.ui.Error("add duration: %v", err)
		}
	}

	switch ev.Kind {
	case event.KindSessionStart:
		p.applyPrompt(ctx, sessionID, ev)
	case event.KindToolCall:
		p.applyToolCalls(ctx, sessionID, ev, now)
	case event.KindError:
		if ev.Message != "" {
			issue := "Error encountered: " + truncate(ev.Message, maxIssueLen)
			if err := p.store.RecordIssue(ctx, sessionID, issue); err != nil {
				p.ui.Error("record issue: %v", err)
			}
		}
	case event.KindSessionEnd:
		if err := p.store.CloseSession(ctx, sessionID, now); err != nil {
			p.ui.Error("close session: %v", err)
		}
	case event.KindUnknown:
		// A substantial assistant response on an unrecognized event
		// still counts as analysis work.
		if len(ev.Response) > 50 {
			a := &models.Accomplishment{
				Category:    models.CategoryAnalysis,
				Description: "Analysis and response provided",
				DurationMS:  ev.DurationMS,
			}
			if err := p.store.RecordAccomplishment(ctx, sessionID, a); err != nil {
				p.ui.Error("record accomplishment: %v", err)
			}
		} else {
			p.ui.VerboseLog("ignoring event type %q", ev.RawType)
		}
	}

	return nil
}

func (p *Processor) applyPrompt(ctx context.Context, sessionID string, ev *event.Event) {
	if ev.Prompt == "" {
		return
	}

	if err := p.store.RecordObjective(ctx, sessionID, truncatePlain(ev.Prompt, maxObjectiveLen)); err != nil {
		p.ui.Error("record objective: %v", err)
	}

	cats := p.rules.Text(ev.Prompt)
	if len(cats) == 1 && cats[0] == models.CategoryUncategorized && len([]rune(ev.Prompt)) <= 20 {
		// Short prompt with no signal; the objective alone records it.
		return
	}

	files := extractFiles(ev.Prompt)
	for _, cat := range cats {
		a := &models.Accomplishment{
			Category:    cat,
			Description: describe(ev.Prompt, defaultDescriptions[cat]),
			DurationMS:  ev.DurationMS,
			Files:       files,
		}
		if err := p.store.RecordAccomplishment(ctx, sessionID, a); err != nil {
			p.ui.Error("record accomplishment: %v", err)
		}
	}
}

func (p *Processor) applyToolCalls(ctx context.Context, sessionID string, ev *event.Event, now time.Time) {
	for i := range ev.Calls {
		call := &ev.Calls[i]
		if call.ToolName == "" {
			continue
		}

		if err := p.store.BumpToolUsage(ctx, sessionID, call.ToolName); err != nil {
			p.ui.Error("bump tool usage: %v", err)
		}

		desc := fmt.Sprintf("Used %s tool", call.ToolName)
		var files []string
		if path := call.FilePath(); path != "" {
			if err := p.store.TouchFile(ctx, sessionID, path, now); err != nil {
				p.ui.Error("touch file: %v", err)
			}
			desc = "Modified " + path
			files = []string{path}
		}

		a := &models.Accomplishment{
			Category:    p.rules.Tool(call.ToolName),
			Description: desc,
			DurationMS:  call.DurationMS,
			Files:       files,
		}
		if err := p.store.RecordAccomplishment(ctx, sessionID, a); err != nil {
			p.ui.Error("record accomplishment: %v", err)
		}
	}
}

// describe builds an accomplishment description from the prompt's
// first line, falling back to the category default for short prompts.
func describe(prompt, fallback string) string {
	line := prompt
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	switch {
	case len([]rune(line)) > maxDescriptionLen:
		return fallback + ": " + strings.TrimSpace(truncatePlain(line, maxDescriptionLen-3))
	case len([]rune(line)) > 10:
		return fallback + ": " + line
	default:
		return fallback
	}
}

// extractFiles pulls file paths mentioned in prompt text, sorted and
// deduplicated.
func extractFiles(prompt string) []string {
	matches := filePathRe.FindAllString(prompt, -1)
	if len(matches) == 0 {
		return nil
	}
	sort.Strings(matches)
	files := matches[:1]
	for _, m := range matches[1:] {
		if m != files[len(files)-1] {
			files = append(files, m)
		}
	}
	return files
}

func truncatePlain(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
