package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/diary/internal/llm"
	"github.com/joescharf/diary/internal/report"
)

var (
	summarizeDate  string
	summarizeLimit int
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate a narrative summary of recent sessions",
	Long: `Render recent sessions and ask the Anthropic API for a short
narrative summary. Requires anthropic.api_key in the config file or
the DIARY_ANTHROPIC_API_KEY environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return summarizeRun()
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeDate, "date", "", "Only sessions started on this day (YYYY-MM-DD)")
	summarizeCmd.Flags().IntVar(&summarizeLimit, "limit", 5, "Number of recent sessions when no date is given")
	rootCmd.AddCommand(summarizeCmd)
}

func summarizeRun() error {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return fmt.Errorf("anthropic.api_key not configured")
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	summaries, err := querySummaries(ctx, s, summarizeDate, summarizeLimit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		ui.Info("No sessions to summarize.")
		return nil
	}

	var entries strings.Builder
	if err := report.MarkdownAll(&entries, summaries); err != nil {
		return err
	}

	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
	summary, err := client.Summarize(ctx, entries.String())
	if err != nil {
		return fmt.Errorf("summarize sessions: %w", err)
	}

	fmt.Fprintln(ui.Out, summary)
	return nil
}
