package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/diary/internal/models"
	"github.com/joescharf/diary/internal/report"
	"github.com/joescharf/diary/internal/store"
)

var (
	exportFormat string
	exportDate   string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions as JSON, CSV, or Markdown",
	Long:  "Export session summaries in various formats, filtered by date or recency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportDate, "date", "", "Only sessions started on this day (YYYY-MM-DD)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 20, "Number of recent sessions when no date is given")
	rootCmd.AddCommand(exportCmd)
}

// querySummaries fetches by date when one is given, most-recent
// otherwise.
func querySummaries(ctx context.Context, s store.Store, date string, limit int) ([]*models.Summary, error) {
	if date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
		}
		return s.QueryByDate(ctx, day)
	}
	return s.QueryRecent(ctx, limit)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	summaries, err := querySummaries(context.Background(), s, exportDate, exportLimit)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		return report.WriteJSON(ui.Out, summaries)
	case "csv":
		return report.WriteCSV(ui.Out, summaries)
	case "markdown":
		return report.MarkdownAll(ui.Out, summaries)
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}
