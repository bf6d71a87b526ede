// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// At least one platform must be configured; use Validate before starting the orchestrator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/stream-tender/platform"
)

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchOAuthToken   string // user token handed to streamlink, not used for Helix
	TwitchChannels     []string

	// Kick
	KickChannels  []string
	KickPluginDir string

	// Polling / capture
	CheckInterval   time.Duration
	CheckTimeout    time.Duration
	OutputDir       string
	StreamlinkPath  string
	GraceTimeout    time.Duration
	OfflineChecks   int
	ShutdownTimeout time.Duration
	Location        *time.Location

	// Database (optional capture history)
	DBDsn string
}

// Load reads environment variables and applies defaults. Missing platform
// credentials don't fail here: Validate decides whether the configured
// channel set is runnable.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchChannels = splitChannels(os.Getenv("TWITCH_CHANNELS"))

	cfg.KickChannels = splitChannels(os.Getenv("KICK_CHANNELS"))
	cfg.KickPluginDir = os.Getenv("KICK_PLUGIN_DIR")

	cfg.CheckInterval = 30 * time.Second
	if v := os.Getenv("CHECK_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CHECK_INTERVAL (seconds): %q", v)
		}
		cfg.CheckInterval = time.Duration(n) * time.Second
	}

	cfg.CheckTimeout = 15 * time.Second
	if v := os.Getenv("CHECK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid CHECK_TIMEOUT: %q", v)
		}
		cfg.CheckTimeout = d
	}
	// Never let a single check outlive the poll tick it belongs to.
	if cfg.CheckTimeout > cfg.CheckInterval {
		cfg.CheckTimeout = cfg.CheckInterval
	}

	cfg.OutputDir = os.Getenv("OUTPUT_DIR")
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}

	cfg.StreamlinkPath = os.Getenv("STREAMLINK_PATH")
	if cfg.StreamlinkPath == "" {
		cfg.StreamlinkPath = "streamlink"
	}

	cfg.GraceTimeout = 10 * time.Second
	if v := os.Getenv("GRACE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid GRACE_TIMEOUT: %q", v)
		}
		cfg.GraceTimeout = d
	}

	cfg.OfflineChecks = 3
	if v := os.Getenv("OFFLINE_CHECKS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid OFFLINE_CHECKS: %q", v)
		}
		cfg.OfflineChecks = n
	}

	cfg.ShutdownTimeout = 30 * time.Second
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %q", v)
		}
		cfg.ShutdownTimeout = d
	}

	cfg.Location = time.Local
	if v := os.Getenv("CAPTURE_TZ"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CAPTURE_TZ %q: %w", v, err)
		}
		cfg.Location = loc
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// Validate checks that at least one platform has channels and that platforms
// with channels carry the credentials they need.
func (c *Config) Validate() error {
	if len(c.TwitchChannels) == 0 && len(c.KickChannels) == 0 {
		return fmt.Errorf("no channels configured: set TWITCH_CHANNELS and/or KICK_CHANNELS")
	}
	if len(c.TwitchChannels) > 0 && (c.TwitchClientID == "" || c.TwitchClientSecret == "") {
		return fmt.Errorf("TWITCH_CHANNELS set but missing TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET")
	}
	return nil
}

// Channels returns the full configured channel set across platforms.
func (c *Config) Channels() []platform.Channel {
	out := make([]platform.Channel, 0, len(c.TwitchChannels)+len(c.KickChannels))
	for _, name := range c.TwitchChannels {
		out = append(out, platform.Channel{Platform: platform.Twitch, Name: name})
	}
	for _, name := range c.KickChannels {
		out = append(out, platform.Channel{Platform: platform.Kick, Name: name})
	}
	return out
}

// splitChannels parses a comma-separated channel list, trimming whitespace and
// dropping empties and duplicates.
func splitChannels(s string) []string {
	if s == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
