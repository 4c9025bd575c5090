package models

// Category is one label from the closed set describing the nature of
// a unit of work. Stored as its string value; Label returns the
// human-readable form used in rendered diaries.
type Category string

const (
	CategoryCodeDevelopment     Category = "code_development"
	CategoryDocumentation       Category = "documentation"
	CategoryAnalysis            Category = "analysis"
	CategoryDatabaseOperations  Category = "database_operations"
	CategoryFrontendDevelopment Category = "frontend_development"
	CategorySystemOperations    Category = "system_operations"
	CategoryProjectManagement   Category = "project_management"
	CategoryCodeAnalysis        Category = "code_analysis"
	CategoryCodeSearch          Category = "code_search"
	CategoryAICollaboration     Category = "ai_collaboration"
	CategoryResearch            Category = "research"
	CategoryUncategorized       Category = "uncategorized"
)

var categoryLabels = map[Category]string{
	CategoryCodeDevelopment:     "Code Development",
	CategoryDocumentation:       "Documentation",
	CategoryAnalysis:            "Analysis",
	CategoryDatabaseOperations:  "Database Operations",
	CategoryFrontendDevelopment: "Frontend Development",
	CategorySystemOperations:    "System Operations",
	CategoryProjectManagement:   "Project Management",
	CategoryCodeAnalysis:        "Code Analysis",
	CategoryCodeSearch:          "Code Search",
	CategoryAICollaboration:     "AI Collaboration",
	CategoryResearch:            "Research",
	CategoryUncategorized:       "Uncategorized",
}

// Label returns the display name for the category. Unknown values
// (e.g. user-defined categories from a rules file) are returned as-is.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}
