// Package event decodes raw hook input lines into canonical events.
// Decoding is pure: no I/O, no store access.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed indicates a line that is not valid JSON. Callers log
// and skip; a malformed line never aborts the batch.
var ErrMalformed = errors.New("malformed event")

// Kind discriminates the closed set of event variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionStart
	KindToolCall
	KindError
	KindSessionEnd
)

// ToolCall is one tool invocation reported by the orchestrator.
type ToolCall struct {
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Result     string          `json:"result,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
	Success    *bool           `json:"success,omitempty"`
}

// FilePath extracts the file_path parameter if present.
func (tc *ToolCall) FilePath() string {
	if len(tc.Parameters) == 0 {
		return ""
	}
	var params struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(tc.Parameters, &params); err != nil {
		return ""
	}
	return params.FilePath
}

// Event is the canonical form of one decoded input line. Which fields
// are meaningful depends on Kind: Prompt for session starts, Calls for
// tool calls, Message for errors. RawType preserves the wire
// event_type for unknown events.
type Event struct {
	Kind       Kind
	RawType    string
	Prompt     string
	Response   string
	Calls      []ToolCall
	Message    string
	DurationMS *int64
	Timestamp  string
	SessionID  string
}

// wireEvent is the JSON shape produced by the orchestrator's hooks.
type wireEvent struct {
	EventType         string     `json:"event_type"`
	Timestamp         string     `json:"timestamp,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	UserPrompt        string     `json:"user_prompt,omitempty"`
	AssistantResponse string     `json:"assistant_response,omitempty"`
	ToolCalls         []ToolCall `json:"tool_calls,omitempty"`
	DurationMS        *int64     `json:"duration_ms,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// Decode parses one JSON event. Unrecognized event_type values map to
// KindUnknown rather than failing; only unparseable input is an error.
func Decode(line []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	e := &Event{
		RawType:    w.EventType,
		Response:   w.AssistantResponse,
		Calls:      w.ToolCalls,
		Message:    w.Error,
		DurationMS: w.DurationMS,
		Timestamp:  w.Timestamp,
		SessionID:  w.SessionID,
	}

	switch w.EventType {
	case "session_start", "user_prompt", "message":
		e.Kind = KindSessionStart
		e.Prompt = ExtractText(w.UserPrompt)
	case "tool_call", "tool_result":
		e.Kind = KindToolCall
	case "error":
		e.Kind = KindError
	case "session_end":
		e.Kind = KindSessionEnd
	default:
		e.Kind = KindUnknown
		e.Prompt = ExtractText(w.UserPrompt)
	}

	return e, nil
}

// Prompt payloads are sometimes double-encoded: the user_prompt field
// carries a JSON object whose actual text sits under a nested key.
// textLeafKeys are searched in order at each level.
var textLeafKeys = []string{"prompt", "text", "message", "content"}

const maxExtractDepth = 3

// ExtractText returns the human text behind a prompt field. If the
// value is itself a JSON object, known leaf keys are searched up to
// three levels deep; failing that, the compact JSON rendering is
// returned so no payload is silently dropped.
func ExtractText(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return s
	}

	if text, ok := findTextLeaf(obj, maxExtractDepth); ok {
		return text
	}

	// Stable fallback rendering
	compact, err := json.Marshal(obj)
	if err != nil {
		return s
	}
	return string(compact)
}

func findTextLeaf(obj map[string]any, depth int) (string, bool) {
	if depth <= 0 {
		return "", false
	}
	for _, key := range textLeafKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return val, true
		case map[string]any:
			if text, ok := findTextLeaf(val, depth-1); ok {
				return text, true
			}
		}
	}
	// No known key at this level; descend into nested objects.
	for _, v := range obj {
		if nested, ok := v.(map[string]any); ok {
			if text, ok := findTextLeaf(nested, depth-1); ok {
				return text, true
			}
		}
	}
	return "", false
}
