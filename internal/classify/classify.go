// Package classify maps free text and tool names to work categories.
// Classification is a rule table, not control flow: new categories are
// additive data, optionally extended from a user rules file.
package classify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joescharf/diary/internal/models"
)

// Rule pairs a category with the keywords that select it. Matching is
// case-insensitive substring containment.
type Rule struct {
	Category models.Category `yaml:"category"`
	Keywords []string        `yaml:"keywords"`
}

// defaultRules is the built-in ordered rule table. A prompt can match
// several rules; Text returns every category with at least one hit.
var defaultRules = []Rule{
	{models.CategoryCodeDevelopment, []string{
		"write", "create", "implement", "add", "build", "develop", "code", "program",
		"fix", "debug", "resolve", "solve", "repair", "correct",
		"refactor", "optimize", "improve", "enhance",
		"test", "unit test", "integration test",
	}},
	{models.CategoryDocumentation, []string{
		"document", "write docs", "readme", "changelog", "comment", "explain",
	}},
	{models.CategoryAnalysis, []string{
		"analyze", "investigate", "study", "examine", "explore", "understand",
		"review", "verify", "validate",
	}},
	{models.CategoryCodeSearch, []string{
		"find", "search", "look for", "locate", "grep",
	}},
	{models.CategorySystemOperations, []string{
		"configure", "setup", "install", "deploy", "initialize",
		"migrate", "upgrade", "update dependencies",
	}},
	{models.CategoryDatabaseOperations, []string{
		"database", "sql", "query", "schema", "migration",
	}},
	{models.CategoryFrontendDevelopment, []string{
		"ui", "user interface", "frontend", "styling", "css",
		"component", "react", "angular", "vue",
	}},
	{models.CategoryProjectManagement, []string{
		"plan", "organize", "structure", "architect",
		"todo", "task", "milestone", "goal",
	}},
	{models.CategoryCodeAnalysis, []string{
		"read through", "trace", "inspect", "walk through",
	}},
	{models.CategoryAICollaboration, []string{
		"agent", "subagent", "delegate",
	}},
	{models.CategoryResearch, []string{
		"research", "look up", "documentation for",
	}},
}

// toolCategories maps orchestrator tool names to categories. Total:
// unrecognized tools classify as uncategorized, never an error.
var toolCategories = map[string]models.Category{
	"Edit":         models.CategoryCodeDevelopment,
	"Write":        models.CategoryCodeDevelopment,
	"MultiEdit":    models.CategoryCodeDevelopment,
	"NotebookEdit": models.CategoryCodeDevelopment,
	"Read":         models.CategoryCodeAnalysis,
	"Glob":         models.CategoryCodeAnalysis,
	"LS":           models.CategoryCodeAnalysis,
	"Bash":         models.CategorySystemOperations,
	"Grep":         models.CategoryCodeSearch,
	"Task":         models.CategoryAICollaboration,
	"TodoWrite":    models.CategoryProjectManagement,
	"WebFetch":     models.CategoryResearch,
	"WebSearch":    models.CategoryResearch,
}

// Classifier holds the active rule table. The zero value is unusable;
// construct with Default or Load.
type Classifier struct {
	rules []Rule
}

// Default returns a classifier with the built-in rules.
func Default() *Classifier {
	return &Classifier{rules: defaultRules}
}

// Load returns the built-in rules merged with additive user rules from
// a yaml file. A missing file is not an error.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var extra []Rule
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	merged := make([]Rule, 0, len(defaultRules)+len(extra))
	merged = append(merged, defaultRules...)
	merged = append(merged, extra...)
	return &Classifier{rules: merged}, nil
}

// Text returns every category whose keyword set hits the input. The
// result is never empty: no hits yields [uncategorized]. Deterministic
// and stateless; category order follows the rule table.
func (c *Classifier) Text(s string) []models.Category {
	lower := strings.ToLower(s)

	var cats []models.Category
	seen := make(map[models.Category]bool)
	for _, rule := range c.rules {
		if seen[rule.Category] {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				cats = append(cats, rule.Category)
				seen[rule.Category] = true
				break
			}
		}
	}

	if len(cats) == 0 {
		return []models.Category{models.CategoryUncategorized}
	}
	return cats
}

// Tool maps a tool name to its category.
func (c *Classifier) Tool(name string) models.Category {
	if cat, ok := toolCategories[name]; ok {
		return cat
	}
	return models.CategoryUncategorized
}
