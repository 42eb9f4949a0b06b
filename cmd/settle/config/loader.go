// loader.go - Configuration loading with priority cascade.
// Priority: defaults < global config < project config < --config file < env vars < flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/brennhill/pagesettle/internal/cdp"
	"github.com/brennhill/pagesettle/internal/occlusion"
	"github.com/brennhill/pagesettle/internal/settle"
	"github.com/brennhill/pagesettle/internal/state"
)

// EnvPrefix prefixes every environment override, e.g. SETTLE_TIMEOUT_MS or
// SETTLE_BROWSER_REMOTE_URL.
const EnvPrefix = "SETTLE"

// Config holds all resolved configuration values.
type Config struct {
	Format         string  `mapstructure:"format" json:"format"`
	Debug          bool    `mapstructure:"debug" json:"debug"`
	TimeoutMs      int     `mapstructure:"timeout_ms" json:"timeout_ms"`
	PollIntervalMs int     `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
	QuietMs        int     `mapstructure:"quiet_ms" json:"quiet_ms"`
	DOMQuietMaxMs  int     `mapstructure:"dom_quiet_max_ms" json:"dom_quiet_max_ms"`
	SpinnerCSS     string  `mapstructure:"spinner_css" json:"spinner_css"`
	MinPaintAreaPx float64 `mapstructure:"min_paint_area_px" json:"min_paint_area_px"`
	Browser        Browser `mapstructure:"browser" json:"browser"`
}

// Browser selects the Chrome instance to drive.
type Browser struct {
	RemoteURL      string `mapstructure:"remote_url" json:"remote_url"`
	Bin            string `mapstructure:"bin" json:"bin"`
	Headless       bool   `mapstructure:"headless" json:"headless"`
	ViewportWidth  int    `mapstructure:"viewport_width" json:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height" json:"viewport_height"`
}

// Defaults returns the base configuration.
func Defaults() Config {
	return Config{
		Format:         "human",
		TimeoutMs:      15000,
		PollIntervalMs: 100,
		QuietMs:        400,
		DOMQuietMaxMs:  1500,
		MinPaintAreaPx: occlusion.DefaultMinPaintAreaPx,
		Browser: Browser{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"format":         "format",
	"debug":          "debug",
	"timeout":        "timeout_ms",
	"poll-interval":  "poll_interval_ms",
	"quiet-ms":       "quiet_ms",
	"spinner-css":    "spinner_css",
	"min-paint-area": "min_paint_area_px",
	"remote-url":     "browser.remote_url",
	"chrome-bin":     "browser.bin",
	"headless":       "browser.headless",
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("format", d.Format)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("timeout_ms", d.TimeoutMs)
	v.SetDefault("poll_interval_ms", d.PollIntervalMs)
	v.SetDefault("quiet_ms", d.QuietMs)
	v.SetDefault("dom_quiet_max_ms", d.DOMQuietMaxMs)
	v.SetDefault("spinner_css", d.SpinnerCSS)
	v.SetDefault("min_paint_area_px", d.MinPaintAreaPx)
	v.SetDefault("browser.remote_url", d.Browser.RemoteURL)
	v.SetDefault("browser.bin", d.Browser.Bin)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.viewport_width", d.Browser.ViewportWidth)
	v.SetDefault("browser.viewport_height", d.Browser.ViewportHeight)
}

// Load resolves the configuration for a run started in projectDir.
// explicitFile is the --config value (may be empty). flags may be nil; only
// flags the user changed override lower layers.
func Load(projectDir, explicitFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	// Global config is optional; an unresolvable config dir is not an error.
	if global, err := state.GlobalConfigFile(); err == nil {
		if err := mergeFile(v, global, false); err != nil {
			return Defaults(), fmt.Errorf("global config: %w", err)
		}
	}

	project, err := state.ProjectConfigFile(projectDir)
	if err != nil {
		return Defaults(), fmt.Errorf("project config: %w", err)
	}
	if err := mergeFile(v, project, false); err != nil {
		return Defaults(), fmt.Errorf("project config: %w", err)
	}

	if explicitFile != "" {
		if err := mergeFile(v, explicitFile, true); err != nil {
			return Defaults(), fmt.Errorf("config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Defaults(), fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Defaults(), fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// mergeFile merges a YAML file into v. A missing file is skipped unless
// required is set.
func mergeFile(v *viper.Viper, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return err
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	validFormats := map[string]bool{"human": true, "json": true, "csv": true}
	if !validFormats[c.Format] {
		return fmt.Errorf("format must be human, json, or csv, got %q", c.Format)
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMs)
	}
	if c.PollIntervalMs <= 0 || c.PollIntervalMs >= c.TimeoutMs {
		return fmt.Errorf("poll_interval_ms must be between 1 and timeout_ms-1, got %d", c.PollIntervalMs)
	}
	if c.QuietMs <= 0 {
		return fmt.Errorf("quiet_ms must be positive, got %d", c.QuietMs)
	}
	if c.DOMQuietMaxMs <= 0 {
		return fmt.Errorf("dom_quiet_max_ms must be positive, got %d", c.DOMQuietMaxMs)
	}
	if c.MinPaintAreaPx < 0 {
		return fmt.Errorf("min_paint_area_px must not be negative, got %v", c.MinPaintAreaPx)
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d",
			c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	return nil
}

// Wait returns the polling settings.
func (c Config) Wait() settle.Config {
	return settle.Config{
		Timeout:          time.Duration(c.TimeoutMs) * time.Millisecond,
		PollInterval:     time.Duration(c.PollIntervalMs) * time.Millisecond,
		Quiet:            time.Duration(c.QuietMs) * time.Millisecond,
		DOMQuietMax:      time.Duration(c.DOMQuietMaxMs) * time.Millisecond,
		SpinnerSelectors: settle.ParseSpinnerSelectors(c.SpinnerCSS),
	}
}

// Probe returns the occlusion settings.
func (c Config) Probe() occlusion.Config {
	p := occlusion.DefaultConfig()
	p.Debug = c.Debug
	p.MinPaintAreaPx = c.MinPaintAreaPx
	return p
}

// BrowserConfig returns the session settings.
func (c Config) BrowserConfig() cdp.BrowserConfig {
	return cdp.BrowserConfig{
		RemoteURL:      c.Browser.RemoteURL,
		Bin:            c.Browser.Bin,
		Headless:       c.Browser.Headless,
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
		Debug:          c.Debug,
		Probe:          c.Probe(),
	}
}
