// Package cli implements the command-line interface for douit.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/douit-app/douit/internal/config"
	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/docstore"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  docstore.Store
	Engine *core.Engine
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext loads the workspace config and opens its store
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}

	st, err := docstore.Open(cfg.Store, cfg.DataPath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	// CLI commands log to stderr so stdout stays clean for --json output.
	logger := newLogger(cfg.LogLevel, "text", os.Stderr)
	return &cmdContext{
		Config: cfg,
		Store:  st,
		Engine: core.NewEngine(st, core.WithLogger(logger)),
	}
}

var (
	userFlag   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "douit",
	Short: "Versioned legal text fragments",
	Long: `douit manages reusable text fragments with [PLACEHOLDER] parameters,
composes them into ordered term sets, keeps the full version history of
both, and tracks which fragment versions each user has understood.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", envOrDefault("DOUIT_USER", os.Getenv("USER")),
		"Acting user id (env: DOUIT_USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(fragmentCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(understoodCmd)
	rootCmd.AddCommand(serverCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// requireUser returns the acting user or exits when none is configured.
func requireUser() string {
	if strings.TrimSpace(userFlag) == "" {
		exitError("no user set: pass --user or set DOUIT_USER")
	}
	return userFlag
}

// shortID returns the last 8 characters of an ID. Ids are time-ordered
// UUIDs, so the head is shared by everything created in the same second.
func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// envOrDefault returns the value of the environment variable key, or defaultVal if unset.
func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseLevel maps a config log level to slog. Unknown levels fall back to info.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds a JSON or text logger at the given level.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
