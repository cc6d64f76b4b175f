// Package config handles loading and managing snapvault configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/snapvault/internal/archive"
)

// Config represents the snapvault configuration.
type Config struct {
	Data         DataConfig    `toml:"data"`
	Import       ImportConfig  `toml:"import"`
	Media        MediaConfig   `toml:"media"`
	Query        QueryConfig   `toml:"query"`
	Server       ServerConfig  `toml:"server"`
	KeywordLists []KeywordList `toml:"keyword_lists"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"` // scratch and thumbnail root (default: home dir)
}

// ImportConfig bounds how much of an archive is read into memory.
type ImportConfig struct {
	MaxEntryBytes  int64 `toml:"max_entry_bytes"`  // per extracted entry (default 4 GiB)
	MaxTotalBytes  int64 `toml:"max_total_bytes"`  // all conversations.csv files together (default 2 GiB)
	MaxNestedBytes int64 `toml:"max_nested_bytes"` // per nested ZIP held in memory (default 2 GiB)
}

// MediaConfig holds media resolution and thumbnail settings.
type MediaConfig struct {
	TokenIndex    bool   `toml:"token_index"`    // build the token map (false = substring scan)
	ThumbnailSize int    `toml:"thumbnail_size"` // longest edge in pixels
	VideoTimeout  string `toml:"video_timeout"`  // frame grab limit, e.g. "5s"
	FFmpegPath    string `toml:"ffmpeg_path"`    // empty = look up "ffmpeg" on PATH
}

// QueryConfig holds search defaults.
type QueryConfig struct {
	WholeWord bool `toml:"whole_word"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort        int     `toml:"api_port"`         // HTTP server port (default: 8080)
	BindAddr       string  `toml:"bind_addr"`        // default: 127.0.0.1
	APIKey         string  `toml:"api_key"`          // API authentication key
	RateLimitRPS   float64 `toml:"rate_limit_rps"`   // per client IP (default: 10)
	RateLimitBurst int     `toml:"rate_limit_burst"` // default: 20

	CORSOrigins     []string `toml:"cors_origins"` // empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"`
	CORSMaxAge      int      `toml:"cors_max_age"` // seconds; default 86400 when origins are set
}

// IsLoopback reports whether BindAddr only accepts local connections.
func (s ServerConfig) IsLoopback() bool {
	switch s.BindAddr {
	case "", "localhost":
		return true
	}
	ip := net.ParseIP(s.BindAddr)
	return ip != nil && ip.IsLoopback()
}

// ValidateSecure rejects serving beyond loopback without an API key.
func (s ServerConfig) ValidateSecure() error {
	if !s.IsLoopback() && s.APIKey == "" {
		return fmt.Errorf("server.bind_addr %q is not loopback; set server.api_key", s.BindAddr)
	}
	return nil
}

// KeywordList is a named list of keywords offered as a filter.
type KeywordList struct {
	Name      string   `toml:"name"`
	Keywords  []string `toml:"keywords"`
	WholeWord bool     `toml:"whole_word"`
}

const defaultVideoTimeout = 5 * time.Second

// DefaultHome returns the default snapvault home directory.
// Respects SNAPVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("SNAPVAULT_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snapvault"
	}
	return filepath.Join(home, ".snapvault")
}

// Default returns the configuration used when no file is present.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data:    DataConfig{DataDir: homeDir},
		Import: ImportConfig{
			MaxEntryBytes:  archive.DefaultMaxEntryBytes,
			MaxTotalBytes:  2 << 30,
			MaxNestedBytes: 2 << 30,
		},
		Media: MediaConfig{
			TokenIndex:    true,
			ThumbnailSize: 256,
			VideoTimeout:  defaultVideoTimeout.String(),
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads the configuration from path. An empty homeDir means
// DefaultHome(); an empty path means <homeDir>/config.toml. The file is
// optional.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := Default(homeDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Media.FFmpegPath = expandPath(cfg.Media.FFmpegPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.VideoTimeout(); err != nil {
		return err
	}
	if c.Media.ThumbnailSize < 0 {
		return fmt.Errorf("media.thumbnail_size must not be negative")
	}
	seen := make(map[string]bool)
	for i, l := range c.KeywordLists {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return fmt.Errorf("keyword_lists[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("keyword_lists: duplicate name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// VideoTimeout returns media.video_timeout as a duration.
func (c *Config) VideoTimeout() (time.Duration, error) {
	if c.Media.VideoTimeout == "" {
		return defaultVideoTimeout, nil
	}
	d, err := time.ParseDuration(c.Media.VideoTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("media.video_timeout %q: must be a positive duration", c.Media.VideoTimeout)
	}
	return d, nil
}

// EnsureHomeDir creates the home and data directories.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// ScratchDir returns the root of per-session extraction directories.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.Data.DataDir, "scratch")
}

// ThumbnailDir returns the root of per-session thumbnail caches.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.Data.DataDir, "thumbnails")
}

// MediaDir is where the media command keeps copies of resolved files. Unlike
// the scratch tree it outlives the session.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Data.DataDir, "media")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
