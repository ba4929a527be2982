// Package config provides configuration management for ChatHub.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/viper"
)

// ErrConfigNotFound indicates no usable config file was found.
var ErrConfigNotFound = errors.New("config not found")

// Provider types accepted in the providers map.
const (
	ProviderTypeAPI    = "api"
	ProviderTypeWeb    = "web"
	ProviderTypeCustom = "custom"
)

// Config matches the structure of chathub.json
type Config struct {
	Meta      MetaConfig                `json:"meta" yaml:"meta" mapstructure:"meta"`
	Env       map[string]string         `json:"env" yaml:"env" mapstructure:"env"`
	Gateway   GatewayConfig             `json:"gateway" yaml:"gateway" mapstructure:"gateway"`
	Browser   BrowserConfig             `json:"browser" yaml:"browser" mapstructure:"browser"`
	Session   SessionConfig             `json:"session" yaml:"session" mapstructure:"session"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers" mapstructure:"providers"`
	Maint     MaintConfig               `json:"maintenance" yaml:"maintenance" mapstructure:"maintenance"`
	Logging   LoggingConfig             `json:"logging" yaml:"logging" mapstructure:"logging"`
}

type MetaConfig struct {
	LastTouchedVersion string `json:"lastTouchedVersion" yaml:"lastTouchedVersion" mapstructure:"lastTouchedVersion"`
	LastTouchedAt      string `json:"lastTouchedAt" yaml:"lastTouchedAt" mapstructure:"lastTouchedAt"`
}

type GatewayConfig struct {
	Bind      string          `json:"bind" yaml:"bind" mapstructure:"bind"`
	Port      int             `json:"port" yaml:"port" mapstructure:"port"`
	Auth      GatewayAuth     `json:"auth" yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit" mapstructure:"rateLimit"`
}

type GatewayAuth struct {
	Mode  string `json:"mode" yaml:"mode" mapstructure:"mode"`
	Token string `json:"token" yaml:"token" mapstructure:"token"`
}

type RateLimitConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	RPS     float64 `json:"rps" yaml:"rps" mapstructure:"rps"`
	Burst   int     `json:"burst" yaml:"burst" mapstructure:"burst"`
}

type BrowserConfig struct {
	Headless   bool   `json:"headless" yaml:"headless" mapstructure:"headless"`
	ControlURL string `json:"controlUrl" yaml:"controlUrl" mapstructure:"controlUrl"`
	UserAgent  string `json:"userAgent" yaml:"userAgent" mapstructure:"userAgent"`
}

type SessionConfig struct {
	TTLSeconds int `json:"ttlSeconds" yaml:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// TTL returns the session time-to-live as a duration.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(s.TTLSeconds) * time.Second
}

// ProviderConfig describes a single provider entry.
// Type "api" talks to an OpenAI-compatible endpoint; "web" uses a built-in
// selector profile; "custom" drives an arbitrary chat page with the selectors
// given inline.
type ProviderConfig struct {
	Type              string          `json:"type" yaml:"type" mapstructure:"type"`
	Default           bool            `json:"default" yaml:"default" mapstructure:"default"`
	BaseURL           string          `json:"baseUrl" yaml:"baseUrl" mapstructure:"baseUrl"`
	APIKey            string          `json:"apiKey" yaml:"apiKey" mapstructure:"apiKey"`
	Model             string          `json:"model" yaml:"model" mapstructure:"model"`
	Temperature       float64         `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int             `json:"maxTokens" yaml:"maxTokens" mapstructure:"maxTokens"`
	RequestsPerMinute int             `json:"requestsPerMinute" yaml:"requestsPerMinute" mapstructure:"requestsPerMinute"`
	Profile           string          `json:"profile" yaml:"profile" mapstructure:"profile"`
	Selectors         SelectorsConfig `json:"selectors" yaml:"selectors" mapstructure:"selectors"`
	UseXPath          bool            `json:"useXpath" yaml:"useXpath" mapstructure:"useXpath"`
	Timing            TimingConfig    `json:"timing" yaml:"timing" mapstructure:"timing"`
}

type SelectorsConfig struct {
	Input      string `json:"input" yaml:"input" mapstructure:"input"`
	SendButton string `json:"sendButton" yaml:"sendButton" mapstructure:"sendButton"`
	Response   string `json:"response" yaml:"response" mapstructure:"response"`
	NewChat    string `json:"newChat" yaml:"newChat" mapstructure:"newChat"`
	Loading    string `json:"loading" yaml:"loading" mapstructure:"loading"`
	LoginGate  string `json:"loginGate" yaml:"loginGate" mapstructure:"loginGate"`
	RateLimit  string `json:"rateLimit" yaml:"rateLimit" mapstructure:"rateLimit"`
}

type TimingConfig struct {
	NavSettleMs       int `json:"navSettleMs" yaml:"navSettleMs" mapstructure:"navSettleMs"`
	PollIntervalMs    int `json:"pollIntervalMs" yaml:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	StableAfterMs     int `json:"stableAfterMs" yaml:"stableAfterMs" mapstructure:"stableAfterMs"`
	ResponseTimeoutMs int `json:"responseTimeoutMs" yaml:"responseTimeoutMs" mapstructure:"responseTimeoutMs"`
}

type MaintConfig struct {
	SessionCleanup string `json:"sessionCleanup" yaml:"sessionCleanup" mapstructure:"sessionCleanup"`
	HealthProbe    string `json:"healthProbe" yaml:"healthProbe" mapstructure:"healthProbe"`
}

type LoggingConfig struct {
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
}

// StateDir returns the ChatHub state directory path.
// Can be overridden via CHATHUB_STATE_DIR environment variable.
// Default: ~/.chathub
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("CHATHUB_STATE_DIR")); override != "" {
		return expandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".chathub"
	}
	return filepath.Join(home, ".chathub")
}

// ConfigPath returns the default config file path.
// Can be overridden via CHATHUB_CONFIG_PATH environment variable.
// Default: ~/.chathub/chathub.json
func ConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("CHATHUB_CONFIG_PATH")); override != "" {
		return expandPath(override)
	}
	return filepath.Join(StateDir(), "chathub.json")
}

// ProfilesDir returns the directory holding user selector profiles (YAML).
func ProfilesDir() string {
	if override := strings.TrimSpace(os.Getenv("CHATHUB_PROFILES_DIR")); override != "" {
		return expandPath(override)
	}
	return filepath.Join(StateDir(), "profiles")
}

// expandPath expands ~ to home directory and resolves the path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// LoadViper loads the configuration into a Viper instance.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Check for explicit config path override
	if configPath := strings.TrimSpace(os.Getenv("CHATHUB_CONFIG_PATH")); configPath != "" {
		expandedPath := expandPath(configPath)
		fileInfo, err := os.Stat(expandedPath)
		if err == nil && fileInfo.IsDir() {
			v.SetConfigName("chathub")
			v.AddConfigPath(expandedPath)
		} else {
			v.SetConfigFile(expandedPath)
		}
	} else {
		v.SetConfigName("chathub")
		v.AddConfigPath(StateDir())
	}

	// Env vars - use CHATHUB_ prefix
	v.SetEnvPrefix("CHATHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Fallback: try config.yaml in the state dir
		v.SetConfigName("config")
		if err2 := v.ReadInConfig(); err2 != nil {
			if _, ok := err2.(viper.ConfigFileNotFoundError); ok {
				return nil, ErrConfigNotFound
			}
			return nil, err2
		}
	}

	return v, nil
}

// Load reads the configuration from file or environment variables.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Inject the config.env block into the OS environment before expansion,
	// so ${VAR} references in provider entries resolve against it.
	for k, val := range cfg.Env {
		expandedVal := os.ExpandEnv(val)
		_ = os.Setenv(k, expandedVal)
		cfg.Env[k] = expandedVal
	}

	expandEnvVars(&cfg)

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.bind", "127.0.0.1")
	v.SetDefault("gateway.port", 8090)
	v.SetDefault("gateway.auth.mode", "token")
	v.SetDefault("gateway.rateLimit.enabled", false)

	// Browser defaults
	v.SetDefault("browser.headless", true)

	// Session defaults
	v.SetDefault("session.ttlSeconds", 3600)

	// Maintenance defaults
	v.SetDefault("maintenance.sessionCleanup", "@every 5m")
	v.SetDefault("maintenance.healthProbe", "@every 2m")
}

// expandEnvVars expands environment variables in sensitive fields.
func expandEnvVars(cfg *Config) {
	cfg.Gateway.Auth.Token = os.ExpandEnv(cfg.Gateway.Auth.Token)

	for name, p := range cfg.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		cfg.Providers[name] = p
	}
}

// Save saves the configuration to the config file.
// A file lock guards against concurrent writers (gateway and CLI may both
// touch the file). Only JSON format is supported.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	lock := flock.New(configPath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks for semantic errors in the config.
func (c *Config) Validate() error {
	defaults := 0
	for name, p := range c.Providers {
		switch p.Type {
		case ProviderTypeAPI:
			if p.APIKey == "" {
				return fmt.Errorf("provider '%s': apiKey is required for api providers", name)
			}
		case ProviderTypeWeb:
			// An empty profile falls back to the provider name; whether a
			// selector profile by that name exists is checked at build time.
		case ProviderTypeCustom:
			if p.BaseURL == "" {
				return fmt.Errorf("provider '%s': baseUrl is required for custom providers", name)
			}
			if p.Selectors.Input == "" || p.Selectors.SendButton == "" || p.Selectors.Response == "" {
				return fmt.Errorf("provider '%s': input, sendButton and response selectors are required", name)
			}
		default:
			return fmt.Errorf("provider '%s': unknown type '%s' (expected api, web or custom)", name, p.Type)
		}
		if p.Default {
			defaults++
		}
	}

	if defaults > 1 {
		return fmt.Errorf("at most one provider may be marked default, found %d", defaults)
	}

	return nil
}
