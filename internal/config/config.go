// Package config loads calmux settings from an optional TOML file and the
// process environment. Environment values win over the file.
package config

import (
	"calmux/internal/palette"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultFile = "calmux.toml"

// Config is the resolved application configuration.
type Config struct {
	Database string `toml:"database"`
	User     string `toml:"user"`
	LogLevel string `toml:"log_level"`

	Google  GoogleConfig  `toml:"google"`
	Outlook OutlookConfig `toml:"outlook"`

	Fetch  FetchConfig  `toml:"fetch"`
	Export ExportConfig `toml:"export"`

	Palette []string `toml:"palette"`
}

type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

type OutlookConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Tenant       string `toml:"tenant"`
}

// FetchConfig bounds the work done against the services.
type FetchConfig struct {
	Timeout  Duration `toml:"timeout"`
	Strict   bool     `toml:"strict"`
	PageSize int      `toml:"page_size"`
	MaxPages int      `toml:"max_pages"`
}

// ExportConfig names the WebDAV collection the export command publishes to.
type ExportConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Duration is a time.Duration written as "15s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: "calmux.db",
		User:     "local",
		LogLevel: "info",
		Outlook:  OutlookConfig{Tenant: "common"},
		Fetch: FetchConfig{
			Timeout:  Duration{15 * time.Second},
			PageSize: 250,
			MaxPages: 10,
		},
	}
}

// Load reads path (a missing file is not an error) and applies environment
// overrides. An empty path means DefaultFile.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CALMUX_DB":              &c.Database,
		"CALMUX_USER":            &c.User,
		"LOG_LEVEL":              &c.LogLevel,
		"GOOGLE_CLIENT_ID":       &c.Google.ClientID,
		"GOOGLE_CLIENT_SECRET":   &c.Google.ClientSecret,
		"OUTLOOK_CLIENT_ID":      &c.Outlook.ClientID,
		"OUTLOOK_CLIENT_SECRET":  &c.Outlook.ClientSecret,
		"OUTLOOK_TENANT":         &c.Outlook.Tenant,
		"CALMUX_EXPORT_URL":      &c.Export.URL,
		"CALMUX_EXPORT_USER":     &c.Export.Username,
		"CALMUX_EXPORT_PASSWORD": &c.Export.Password,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CALMUX_FETCH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CALMUX_FETCH_TIMEOUT %q: %w", v, err)
		}
		c.Fetch.Timeout.Duration = d
	}
	if v, ok := lookup("CALMUX_STRICT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CALMUX_STRICT %q: %w", v, err)
		}
		c.Fetch.Strict = b
	}
	return nil
}

func (c *Config) validate() error {
	if c.Fetch.Timeout.Duration <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.PageSize <= 0 || c.Fetch.MaxPages <= 0 {
		return fmt.Errorf("page size and max pages must be positive")
	}
	for _, color := range c.Palette {
		if !strings.HasPrefix(color, "#") || (len(color) != 7 && len(color) != 4) {
			return fmt.Errorf("invalid palette color %q", color)
		}
	}
	return nil
}

// ColorPalette returns the configured palette, or the built-in one.
func (c Config) ColorPalette() palette.Palette {
	if len(c.Palette) == 0 {
		return palette.Default
	}
	return palette.Palette(c.Palette)
}
