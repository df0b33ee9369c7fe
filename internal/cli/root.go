// Package cli implements the skillforge command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skillforge-network/skillforge/internal/daemon"
	"github.com/skillforge-network/skillforge/internal/infra/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "Peer-to-peer skill exchange marketplace",
	Long: `SkillForge is a peer-to-peer skill exchange marketplace where members
trade teaching time for time-credits. One credit buys roughly one hour
of taught time; completing an exchange pays the teacher from the
learner's balance.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.skillforge/config.toml)")
}

// timeNow is the CLI clock, a seam for tests.
var timeNow = time.Now

// parseID parses a positive numeric id argument.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves the --config flag against the default path.
func loadConfig() (daemon.Config, error) {
	path := configPath
	if path == "" {
		path = daemon.DefaultConfigPath()
	}
	return daemon.Load(path)
}

// newLogger builds the process logger from config.
func newLogger(cfg daemon.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// openDB opens the configured SQLite store, creating its directory first.
func openDB(cfg daemon.Config) (*sqlite.DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return sqlite.Open(cfg.Database.Path)
}
