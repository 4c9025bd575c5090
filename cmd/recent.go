package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/diary/internal/output"
	"github.com/joescharf/diary/internal/report"
)

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent coding sessions",
	Long:  "Show a summary table of recent sessions followed by their full diary entries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return recentRun()
	},
}

func init() {
	recentCmd.Flags().IntVar(&recentLimit, "limit", 5, "Number of sessions to show")
	rootCmd.AddCommand(recentCmd)
}

func recentRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	summaries, err := s.QueryRecent(context.Background(), recentLimit)
	if err != nil {
		return err
	}

	if len(summaries) == 0 {
		ui.Info("No sessions recorded yet.")
		return nil
	}

	table := ui.Table([]string{"Session", "Started", "Status", "Duration", "Work Items"})
	for _, sum := range summaries {
		table.Append([]string{
			sum.Session.ID,
			sum.Session.StartedAt.Local().Format("2006-01-02 15:04"),
			output.StatusColor(string(sum.Session.Status)),
			fmt.Sprintf("%dms", sum.Session.TotalDurationMS),
			fmt.Sprintf("%d", len(sum.Accomplishments)),
		})
	}
	table.Render()

	fmt.Fprintln(ui.Out)
	return report.MarkdownAll(ui.Out, summaries)
}
