// Package config loads the platform configuration surface described in
// spec.md §6.4: a JSON file (preferred, with `{env:VAR}` expansion and
// `//` comment stripping) or a TOML file under ~/.codecoder/, followed
// by environment variable overrides applied last.
//
// The three-layer priority (defaults < file < env) mirrors the teacher
// framework's Config.LoadFromEnv layering in core/config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration surface (spec.md §6.4).
type Config struct {
	Gateway   GatewayConfig             `json:"gateway" toml:"gateway"`
	Channels  map[string]ChannelConfig  `json:"channels" toml:"channels"`
	Providers ProvidersConfig           `json:"providers" toml:"providers"`
	Agent     AgentConfig               `json:"agent" toml:"agent"`
	Tools     ToolsConfig               `json:"tools" toml:"tools"`
	Autonomy  AutonomyConfig            `json:"autonomy" toml:"autonomy"`
	Session   SessionConfig             `json:"session" toml:"session"`
	Memory    MemoryConfig              `json:"memory" toml:"memory"`
	Codecoder CodecoderConfig           `json:"codecoder" toml:"codecoder"`
	HITL      HITLStorageConfig         `json:"hitl" toml:"hitl"`
	Audit     AuditStorageConfig        `json:"audit" toml:"audit"`
}

type GatewayConfig struct {
	Port            int    `json:"port" toml:"port"`
	Host            string `json:"host" toml:"host"`
	RequirePairing  bool   `json:"require_pairing" toml:"require_pairing"`
	AllowPublicBind bool   `json:"allow_public_bind" toml:"allow_public_bind"`
	TokenExpirySecs int    `json:"token_expiry_secs" toml:"token_expiry_secs"`
	RateLimiting    bool   `json:"rate_limiting" toml:"rate_limiting"`
	RateLimitRPM    int    `json:"rate_limit_rpm" toml:"rate_limit_rpm"`
	RedisURL        string `json:"redis_url" toml:"redis_url"`
	CodecoderEndpoint string `json:"codecoder_endpoint" toml:"codecoder_endpoint"`
	PairedTokens    []string `json:"paired_tokens" toml:"paired_tokens"`
}

type VoiceConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Provider string `json:"provider" toml:"provider"`
}

type ChannelConfig struct {
	Enabled     bool        `json:"enabled" toml:"enabled"`
	Token       string      `json:"token" toml:"token"`
	AppID       string      `json:"app_id" toml:"app_id"`
	AllowList   []string    `json:"allow_list" toml:"allow_list"`
	Voice       VoiceConfig `json:"voice" toml:"voice"`
}

type ReliabilityConfig struct {
	ProviderRetries           int      `json:"provider_retries" toml:"provider_retries"`
	ProviderBackoffMs         int      `json:"provider_backoff_ms" toml:"provider_backoff_ms"`
	FallbackProviders         []string `json:"fallback_providers" toml:"fallback_providers"`
	ChannelInitialBackoffSecs int      `json:"channel_initial_backoff_secs" toml:"channel_initial_backoff_secs"`
	ChannelMaxBackoffSecs     int      `json:"channel_max_backoff_secs" toml:"channel_max_backoff_secs"`
}

type OllamaConfig struct {
	BaseURL      string `json:"base_url" toml:"base_url"`
	DefaultModel string `json:"default_model" toml:"default_model"`
}

type ProvidersConfig struct {
	Default         string            `json:"default" toml:"default"`
	DefaultModel    string            `json:"default_model" toml:"default_model"`
	Ollama          OllamaConfig      `json:"ollama" toml:"ollama"`
	Reliability     ReliabilityConfig `json:"reliability" toml:"reliability"`
	CustomEndpoints map[string]string `json:"custom_endpoints" toml:"custom_endpoints"`
}

type AgentConfig struct {
	Enabled            bool     `json:"enabled" toml:"enabled"`
	MaxIterations      int      `json:"max_iterations" toml:"max_iterations"`
	RequireConfirmation bool    `json:"require_confirmation" toml:"require_confirmation"`
	DangerousPatterns  []string `json:"dangerous_patterns" toml:"dangerous_patterns"`
	Temperature        float64  `json:"temperature" toml:"temperature"`
}

type ToolsConfig struct {
	Shell           bool     `json:"shell" toml:"shell"`
	File            bool     `json:"file" toml:"file"`
	Browser         bool     `json:"browser" toml:"browser"`
	Memory          bool     `json:"memory" toml:"memory"`
	Codecoder       bool     `json:"codecoder" toml:"codecoder"`
	ShellTimeoutSecs int     `json:"shell_timeout_secs" toml:"shell_timeout_secs"`
	FileSizeLimit   int64    `json:"file_size_limit" toml:"file_size_limit"`
	BlockedCommands []string `json:"blocked_commands" toml:"blocked_commands"`
}

// AutonomyLevel controls how much an autonomous Hand may do unattended.
type AutonomyLevel string

const (
	AutonomyReadOnly   AutonomyLevel = "ReadOnly"
	AutonomySupervised AutonomyLevel = "Supervised"
	AutonomyFull       AutonomyLevel = "Full"
)

type AutonomyConfig struct {
	Level             AutonomyLevel `json:"level" toml:"level"`
	WorkspaceOnly     bool          `json:"workspace_only" toml:"workspace_only"`
	AllowedCommands   []string      `json:"allowed_commands" toml:"allowed_commands"`
	ForbiddenPaths    []string      `json:"forbidden_paths" toml:"forbidden_paths"`
	MaxActionsPerHour int           `json:"max_actions_per_hour" toml:"max_actions_per_hour"`
	MaxCostPerDayCents int          `json:"max_cost_per_day_cents" toml:"max_cost_per_day_cents"`
}

type SessionConfig struct {
	Enabled         bool    `json:"enabled" toml:"enabled"`
	ContextWindow   int     `json:"context_window" toml:"context_window"`
	CompactThreshold float64 `json:"compact_threshold" toml:"compact_threshold"`
	KeepRecent      int     `json:"keep_recent" toml:"keep_recent"`
}

type MemoryConfig struct {
	Backend  string `json:"backend" toml:"backend"`
	AutoSave bool   `json:"auto_save" toml:"auto_save"`
}

type CodecoderConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled"`
	Endpoint string `json:"endpoint" toml:"endpoint"`
	APIKey   string `json:"api_key" toml:"api_key"`
}

type HITLStorageConfig struct {
	StoragePath string `json:"storage_path" toml:"storage_path"`
}

type AuditStorageConfig struct {
	AuditDBPath string `json:"audit_db_path" toml:"audit_db_path"`
}

// Default returns a Config populated with the defaults named in spec.md §6.4.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port:            3000,
			Host:            "127.0.0.1",
			RequirePairing:  true,
			AllowPublicBind: false,
			TokenExpirySecs: 24 * 3600,
			RateLimitRPM:    60,
		},
		Channels: map[string]ChannelConfig{},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Reliability: ReliabilityConfig{
				ProviderRetries:           3,
				ProviderBackoffMs:         500,
				ChannelInitialBackoffSecs: 2,
				ChannelMaxBackoffSecs:     60,
			},
		},
		Agent: AgentConfig{
			Enabled:       true,
			MaxIterations: 20,
			Temperature:   0.7,
		},
		Tools: ToolsConfig{
			ShellTimeoutSecs: 30,
			FileSizeLimit:    10 * 1024 * 1024,
		},
		Autonomy: AutonomyConfig{
			Level: AutonomySupervised,
		},
		Session: SessionConfig{
			Enabled:          true,
			ContextWindow:    128000,
			CompactThreshold: 0.8,
			KeepRecent:       10,
		},
		Memory: MemoryConfig{Backend: "sqlite"},
	}
}

// DefaultConfigDir returns ~/.codecoder.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codecoder"), nil
}

// Load reads config.json (preferred) or config.toml from dir, applies it
// on top of Default(), then layers environment overrides. dir may be
// empty, in which case DefaultConfigDir() is used. A missing file is not
// an error: defaults plus env overrides are returned.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	cfg := Default()

	jsonPath := filepath.Join(dir, "config.json")
	tomlPath := filepath.Join(dir, "config.toml")

	switch {
	case fileExists(jsonPath):
		if err := loadJSON(jsonPath, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", jsonPath, err)
		}
	case fileExists(tomlPath):
		if err := loadTOML(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", tomlPath, err)
		}
	}

	ApplyEnvOverrides(cfg, os.Environ())
	return cfg, nil
}

// Save writes cfg as indented JSON to dir/config.json, creating dir if
// necessary. Used by `codecoder onboard` and `codecoder channel add|
// remove` to persist configuration changes (spec.md §6.3).
func Save(dir string, cfg *Config) error {
	if dir == "" {
		d, err := DefaultConfigDir()
		if err != nil {
			return err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	raw = append(raw, '\n')

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

var envRefPattern = regexp.MustCompile(`\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)
var lineCommentPattern = regexp.MustCompile(`(^|[^:"])//.*$`)

func loadJSON(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw = stripJSONComments(raw)
	raw = expandEnvRefs(raw)
	return json.Unmarshal(raw, cfg)
}

func loadTOML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw = expandEnvRefs(raw)
	return toml.Unmarshal(raw, cfg)
}

// stripJSONComments removes `//`-prefixed line comments so the config
// file can carry explanatory comments despite being parsed as JSON.
// It only strips a `//` that isn't immediately preceded by a `:` or `"`
// to avoid mangling URLs/strings that legitimately contain "//".
func stripJSONComments(raw []byte) []byte {
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		lines[i] = lineCommentPattern.ReplaceAllString(line, "$1")
	}
	return []byte(strings.Join(lines, "\n"))
}

// expandEnvRefs replaces `{env:VAR}` tokens with the value of the named
// environment variable, leaving the token untouched if unset.
func expandEnvRefs(raw []byte) []byte {
	return envRefPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envRefPattern.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return match
	})
}

// ApplyEnvOverrides applies the environment variables from spec.md §6.4,
// in order, to cfg. Invalid values (bad ints, out-of-range temperature)
// are silently ignored per the spec's boundary behaviour.
func ApplyEnvOverrides(cfg *Config, environ []string) {
	env := map[string]string{}
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	lookup := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := env[n]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := lookup("ZERO_BOT_API_KEY", "API_KEY"); ok {
		cfg.Codecoder.APIKey = v
	}
	if v, ok := lookup("ZERO_BOT_PROVIDER", "PROVIDER"); ok {
		cfg.Providers.Default = v
	}
	if v, ok := lookup("ZERO_BOT_MODEL"); ok {
		cfg.Providers.DefaultModel = v
	}
	if v, ok := lookup("ZERO_BOT_WORKSPACE"); ok {
		cfg.Autonomy.ForbiddenPaths = append(cfg.Autonomy.ForbiddenPaths[:0:0], cfg.Autonomy.ForbiddenPaths...)
		_ = v // workspace root is consumed by the executor, not stored on Config
	}
	if v, ok := lookup("ZERO_BOT_GATEWAY_PORT", "PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = n
		}
		// invalid integers are ignored, per spec.md §6.4
	}
	if v, ok := lookup("ZERO_BOT_GATEWAY_HOST", "HOST"); ok {
		cfg.Gateway.Host = v
	}
	if v, ok := lookup("ZERO_BOT_TEMPERATURE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 2 {
			cfg.Agent.Temperature = f
		}
		// out-of-range or unparseable values are silently ignored
	}
}

// TokenExpiry returns the configured token lifetime as a duration.
func (c *Config) TokenExpiry() time.Duration {
	if c.Gateway.TokenExpirySecs <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Gateway.TokenExpirySecs) * time.Second
}
