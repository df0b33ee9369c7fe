// Package daemon holds the node configuration, loaded from
// ~/.skillforge/config.toml with sensible defaults for every field.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full node configuration.
type Config struct {
	API      APIConfig     `toml:"api"`
	Database DBConfig      `toml:"database"`
	Log      LogConfig     `toml:"log"`
	Sweeper  SweeperConfig `toml:"sweeper"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DBConfig configures the SQLite store.
type DBConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// SweeperConfig configures the autonomous completion sweeper.
type SweeperConfig struct {
	Enabled              bool    `toml:"enabled"`
	CheckIntervalMinutes int     `toml:"check_interval_minutes"`
	GracePeriodHours     float64 `toml:"grace_period_hours"`
	BatchSize            int     `toml:"batch_size"`
}

// CheckInterval returns the sweep cadence as a duration.
func (s SweeperConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMinutes) * time.Minute
}

// GracePeriod returns the post-session slack as a duration.
func (s SweeperConfig) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodHours * float64(time.Hour))
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8470,
		},
		Database: DBConfig{
			Path: filepath.Join(homeDir(), "skillforge.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Sweeper: SweeperConfig{
			Enabled:              true,
			CheckIntervalMinutes: 5,
			GracePeriodHours:     2.0,
			BatchSize:            50,
		},
	}
}

// DefaultConfigPath returns ~/.skillforge/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), "config.toml")
}

// Load reads the config file at path, falling back to defaults for a
// missing file. Fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skillforge"
	}
	return filepath.Join(home, ".skillforge")
}
