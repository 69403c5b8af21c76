// Package cli implements the command-line interface for mdvc.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kilupskalvis/mdvc/internal/config"
	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/source"
	"github.com/kilupskalvis/mdvc/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  store.Backend
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext loads the configuration and opens the configured backend
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := cfg.OpenStore()
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// readDocument parses the working file, assigning it an ID on first use
func readDocument(path string) *models.Snapshot {
	snap, err := source.ReadFileWithID(path)
	if err != nil {
		exitError("failed to read %s: %v", path, err)
	}
	return snap
}

// writeDocument replaces the working file with snap
func writeDocument(path string, snap *models.Snapshot) {
	if err := source.WriteFile(path, snap); err != nil {
		exitError("failed to write %s: %v", path, err)
	}
}

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "mdvc",
	Short: "Markdown Document Version Control",
	Long: `mdvc keeps a full version history of markdown documents with YAML
frontmatter. Versions carry semantic labels, branches fork from any version,
and branches merge back with a three-way merge of both the metadata and the
content, producing an editable conflict file when both sides disagree.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(logLevel, logFormat)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("MDVC_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOrDefault("MDVC_LOG_FORMAT", "text"), "Log format (json, text)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(completionCmd)
}

// setupLogger installs the default slog logger. Records go to stderr so that
// command output stays pipeable.
func setupLogger(levelName, format string) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// exitError prints an error and exits
func exitError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
