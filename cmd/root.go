package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/diary/internal/aggregator"
	"github.com/joescharf/diary/internal/classify"
	"github.com/joescharf/diary/internal/output"
	"github.com/joescharf/diary/internal/relocate"
	"github.com/joescharf/diary/internal/report"
	"github.com/joescharf/diary/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose  bool
	testMode bool
)

var rootCmd = &cobra.Command{
	Use:   "diary",
	Short: "Coding session diary - record what your AI assistant worked on",
	Long: `diary is invoked as a coding-assistant lifecycle hook. It reads
JSON events from stdin, classifies them into work categories, and
aggregates them into per-session records in a local SQLite database.

Run with no subcommand to process a hook event stream from stdin.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("diary-dir", "", "Diary directory (default ~/.claude)")
	rootCmd.Flags().BoolVar(&testMode, "test", false, "Process stdin and print the diary entry without touching the database")

	_ = viper.BindPFlag("diary_dir", rootCmd.PersistentFlags().Lookup("diary-dir"))
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}

	defaultDiaryDir := filepath.Join(home, ".claude")
	viper.AddConfigPath(defaultDiaryDir)
	viper.SetConfigName("diary")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("DIARY")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	viper.SetDefault("diary_dir", defaultDiaryDir)
	viper.SetDefault("db_path", "")
	viper.SetDefault("session_window", store.DefaultSessionWindow)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

func diaryDir() string {
	return viper.GetString("diary_dir")
}

// dbPath resolves the database location: explicit db_path config wins,
// otherwise <diary_dir>/diary.db.
func dbPath() string {
	if p := viper.GetString("db_path"); p != "" {
		return p
	}
	return relocate.CurrentPath(diaryDir())
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(dbPath(), viper.GetDuration("session_window"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// loadRules merges optional user categories from the diary dir into
// the built-in rule table. A broken rules file is a warning, not a
// failure.
func loadRules() *classify.Classifier {
	rules, err := classify.Load(filepath.Join(diaryDir(), "categories.yaml"))
	if err != nil {
		ui.Warning("load category rules: %v", err)
		return classify.Default()
	}
	return rules
}

// rootRun handles hook mode: aggregate the event stream from stdin.
// Exit status is zero even when individual lines fail; only storage
// initialization is fatal.
func rootRun(cmd *cobra.Command) error {
	ctx := context.Background()

	if testMode {
		return testRun(ctx, cmd.InOrStdin())
	}

	if err := relocate.Run(diaryDir()); err != nil {
		ui.Warning("database relocation: %v", err)
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	p := aggregator.New(s, ui, loadRules())
	if err := p.ProcessStream(ctx, cmd.InOrStdin()); err != nil {
		ui.Error("process event stream: %v", err)
	}
	return nil
}

// testRun processes the stream against a throwaway database and prints
// the resulting diary entries, leaving the real database untouched.
func testRun(ctx context.Context, in io.Reader) error {
	tmpDir, err := os.MkdirTemp("", "diary-test-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := store.NewSQLiteStore(filepath.Join(tmpDir, "diary.db"), viper.GetDuration("session_window"))
	if err != nil {
		return fmt.Errorf("open scratch database: %w", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate scratch database: %w", err)
	}

	p := aggregator.New(s, ui, loadRules())
	if err := p.ProcessStream(ctx, in); err != nil {
		return err
	}

	summaries, err := s.QueryRecent(ctx, 10)
	if err != nil {
		return err
	}
	return report.MarkdownAll(ui.Out, summaries)
}
