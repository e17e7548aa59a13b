package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the following cleaner
type Config struct {
	// X/Twitter session settings
	Session SessionConfig `yaml:"session" json:"session"`

	// Scan engine tuning
	Scan ScanConfig `yaml:"scan" json:"scan"`

	// Unfollow engine tuning
	Unfollow UnfollowConfig `yaml:"unfollow" json:"unfollow"`

	// Endpoint resolver tuning
	Resolver ResolverConfig `yaml:"resolver" json:"resolver"`

	// Browser (DOM fallback) settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SessionConfig holds the authenticated X session settings
type SessionConfig struct {
	// Cookie is a raw Cookie header value carrying at least ct0 and auth_token.
	Cookie    string `yaml:"cookie" json:"cookie"`
	Username  string `yaml:"username" json:"username"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// ScanConfig holds scan engine tuning values. The cooldown and delay values
// are product tuning, not correctness constraints, so they are all
// configurable.
type ScanConfig struct {
	InactiveDays           int           `yaml:"inactive_days" json:"inactive_days"`
	CheckDelay             time.Duration `yaml:"check_delay" json:"check_delay"`
	RateLimitCooldown      time.Duration `yaml:"rate_limit_cooldown" json:"rate_limit_cooldown"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	SaveEvery              int           `yaml:"save_every" json:"save_every"`
	SaveInterval           time.Duration `yaml:"save_interval" json:"save_interval"`
	TimelinePageSize       int           `yaml:"timeline_page_size" json:"timeline_page_size"`
	MaxFriendPages         int           `yaml:"max_friend_pages" json:"max_friend_pages"`
}

// UnfollowConfig holds unfollow engine tuning values
type UnfollowConfig struct {
	Delay             time.Duration `yaml:"delay" json:"delay"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown" json:"rate_limit_cooldown"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
}

// ResolverConfig holds endpoint resolver tuning values
type ResolverConfig struct {
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval" json:"min_refresh_interval"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// BrowserConfig holds settings for the DOM fallback driver
type BrowserConfig struct {
	// DebugURL is the remote debugging endpoint of an already-authenticated
	// browser ("" disables the DOM fallback entirely).
	DebugURL      string        `yaml:"debug_url" json:"debug_url"`
	ScrollDelay   time.Duration `yaml:"scroll_delay" json:"scroll_delay"`
	MaxScrolls    int           `yaml:"max_scrolls" json:"max_scrolls"`
	StableScrolls int           `yaml:"stable_scrolls" json:"stable_scrolls"`
	LoadTimeout   time.Duration `yaml:"load_timeout" json:"load_timeout"`
}

// StorageConfig holds durable state storage configuration
type StorageConfig struct {
	// DataDirectory overrides the platform default state directory.
	DataDirectory string `yaml:"data_directory" json:"data_directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults. The scan and
// unfollow timing defaults mirror the values the engine shipped with.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		Scan: ScanConfig{
			InactiveDays:           30,
			CheckDelay:             time.Second,
			RateLimitCooldown:      30 * time.Second,
			MaxConsecutiveFailures: 5,
			SaveEvery:              5,
			SaveInterval:           10 * time.Second,
			TimelinePageSize:       20,
			MaxFriendPages:         50,
		},
		Unfollow: UnfollowConfig{
			Delay:             3 * time.Second,
			RateLimitCooldown: 60 * time.Second,
			MaxAttempts:       3,
		},
		Resolver: ResolverConfig{
			MinRefreshInterval: 5 * time.Minute,
			FetchTimeout:       20 * time.Second,
		},
		Browser: BrowserConfig{
			ScrollDelay:   600 * time.Millisecond,
			MaxScrolls:    100,
			StableScrolls: 3,
			LoadTimeout:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Load .env file if present (optional)
	_ = godotenv.Load()

	if cookie := os.Getenv("XFC_SESSION_COOKIE"); cookie != "" {
		c.Session.Cookie = cookie
	}
	if username := os.Getenv("XFC_USERNAME"); username != "" {
		c.Session.Username = username
	}
	if ua := os.Getenv("XFC_USER_AGENT"); ua != "" {
		c.Session.UserAgent = ua
	}
	if debugURL := os.Getenv("XFC_BROWSER_DEBUG_URL"); debugURL != "" {
		c.Browser.DebugURL = debugURL
	}
	if dir := os.Getenv("XFC_DATA_DIR"); dir != "" {
		c.Storage.DataDirectory = dir
	}
	if level := os.Getenv("XFC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if days := os.Getenv("XFC_INACTIVE_DAYS"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return fmt.Errorf("invalid XFC_INACTIVE_DAYS: %w", err)
		}
		c.Scan.InactiveDays = n
	}
	if delay := os.Getenv("XFC_UNFOLLOW_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid XFC_UNFOLLOW_DELAY: %w", err)
		}
		c.Unfollow.Delay = d
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	candidates := []string{
		"xfc.yaml",
		".xfc.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "xfc", "config.yaml"),
			filepath.Join(home, ".xfc.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	var errs []error

	if c.Scan.InactiveDays <= 0 {
		errs = append(errs, errors.New("scan.inactive_days must be positive"))
	}
	if c.Scan.SaveEvery <= 0 {
		errs = append(errs, errors.New("scan.save_every must be positive"))
	}
	if c.Scan.MaxConsecutiveFailures <= 0 {
		errs = append(errs, errors.New("scan.max_consecutive_failures must be positive"))
	}
	if c.Scan.TimelinePageSize <= 0 || c.Scan.TimelinePageSize > 100 {
		errs = append(errs, errors.New("scan.timeline_page_size must be in (0, 100]"))
	}
	if c.Scan.MaxFriendPages <= 0 {
		errs = append(errs, errors.New("scan.max_friend_pages must be positive"))
	}
	if c.Unfollow.MaxAttempts <= 0 {
		errs = append(errs, errors.New("unfollow.max_attempts must be positive"))
	}
	if c.Browser.MaxScrolls <= 0 {
		errs = append(errs, errors.New("browser.max_scrolls must be positive"))
	}
	if c.Browser.StableScrolls <= 0 {
		errs = append(errs, errors.New("browser.stable_scrolls must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal", "disabled", "":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.level: %s", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then config file, then
// environment overrides, then validation.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = cfg.findConfigFile()
	}
	if configPath != "" {
		if err := cfg.LoadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
