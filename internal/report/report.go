// Package report renders session summaries as markdown diary entries,
// CSV, or JSON.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/diary/internal/models"
)

// Markdown writes one session summary as a diary entry.
func Markdown(w io.Writer, sum *models.Summary) error {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("## Session %s — %s\n", sum.Session.ID, sum.Session.StartedAt.Local().Format("2006-01-02 15:04")))

	if len(sum.Accomplishments) > 0 {
		b.WriteString(fmt.Sprintf("\n### Accomplishments _(%s)_\n\n", durationDisplay(sum.Session.TotalDurationMS)))
		for _, group := range groupByCategory(sum.Accomplishments) {
			b.WriteString(fmt.Sprintf("#### %s\n", group.category.Label()))
			for _, acc := range group.items {
				b.WriteString("- **" + acc.Description + "**")
				if acc.DurationMS != nil {
					b.WriteString(fmt.Sprintf(" _(%dms)_", *acc.DurationMS))
				}
				b.WriteString("\n")
				if len(acc.Files) > 0 {
					b.WriteString("  - Files: " + strings.Join(acc.Files, ", ") + "\n")
				}
			}
			b.WriteString("\n")
		}
	}

	if len(sum.Objectives) > 0 {
		b.WriteString("### Session Objectives\n")
		for _, obj := range sum.Objectives {
			b.WriteString("- " + obj + "\n")
		}
		b.WriteString("\n")
	}

	if len(sum.Issues) > 0 {
		b.WriteString("### Issues Encountered\n")
		for _, issue := range sum.Issues {
			b.WriteString("- " + issue.Description + "\n")
		}
		b.WriteString("\n")
	}

	if len(sum.Tools) > 0 {
		b.WriteString("### Tools Used\n")
		for _, tu := range sum.Tools {
			b.WriteString(fmt.Sprintf("- %s: %d times\n", tu.ToolName, tu.Count))
		}
		b.WriteString("\n")
	}

	if len(sum.Files) > 0 {
		b.WriteString("### Files Modified\n")
		for _, f := range sum.Files {
			b.WriteString("- " + f.FilePath + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// MarkdownAll renders every summary in order.
func MarkdownAll(w io.Writer, summaries []*models.Summary) error {
	for _, sum := range summaries {
		if err := Markdown(w, sum); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON encodes summaries as indented JSON.
func WriteJSON(w io.Writer, summaries []*models.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// WriteCSV writes one row per session with aggregate counts.
func WriteCSV(w io.Writer, summaries []*models.Summary) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"ID", "Started", "Ended", "Status", "DurationMS", "Accomplishments", "Objectives", "Issues", "Tools", "Files"})
	for _, sum := range summaries {
		ended := ""
		if sum.Session.EndedAt != nil {
			ended = sum.Session.EndedAt.Format(time.RFC3339)
		}
		cw.Write([]string{
			sum.Session.ID,
			sum.Session.StartedAt.Format(time.RFC3339),
			ended,
			string(sum.Session.Status),
			strconv.FormatInt(sum.Session.TotalDurationMS, 10),
			strconv.Itoa(len(sum.Accomplishments)),
			strconv.Itoa(len(sum.Objectives)),
			strconv.Itoa(len(sum.Issues)),
			strconv.Itoa(len(sum.Tools)),
			strconv.Itoa(len(sum.Files)),
		})
	}
	cw.Flush()
	return cw.Error()
}

type categoryGroup struct {
	category models.Category
	items    []*models.Accomplishment
}

// groupByCategory buckets accomplishments by category, ordered by
// category name so rendering is stable.
func groupByCategory(accs []*models.Accomplishment) []categoryGroup {
	byCat := make(map[models.Category][]*models.Accomplishment)
	for _, acc := range accs {
		byCat[acc.Category] = append(byCat[acc.Category], acc)
	}

	groups := make([]categoryGroup, 0, len(byCat))
	for cat, items := range byCat {
		groups = append(groups, categoryGroup{category: cat, items: items})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].category < groups[j].category
	})
	return groups
}

func durationDisplay(ms int64) string {
	mins := ms / 60000
	if mins > 0 {
		return fmt.Sprintf("~%d minutes", mins)
	}
	return "< 1 minute"
}
