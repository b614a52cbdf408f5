package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// DefaultAuthEnv maps a model driver to the environment variable holding its API key.
var DefaultAuthEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

const (
	defaultFollowupHours    = 24
	defaultThinkingInterval = 3 * time.Minute
	defaultTick             = 30 * time.Second
	defaultInitialDelay     = 10 * time.Second
	defaultErrorBackoff     = 60 * time.Second
	defaultMessageTimeout   = 30 * time.Second
	defaultChunkSize        = 4000
)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates, standardizes it
// to plain JSON, unmarshals it into Config, and applies defaults and env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	ApplyEnv(&cfg)
	return &cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config not found, using defaults", "path", path)
		return Default(), nil
	}
	return nil, err
}

// Default returns a configuration built from defaults and the environment only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Secretary.FollowupHours == 0 {
		cfg.Secretary.FollowupHours = defaultFollowupHours
	}
	if cfg.Secretary.ThinkingInterval == 0 {
		cfg.Secretary.ThinkingInterval = Duration(defaultThinkingInterval)
	}
	if cfg.Secretary.Tick == 0 {
		cfg.Secretary.Tick = Duration(defaultTick)
	}
	if cfg.Secretary.InitialDelay == 0 {
		cfg.Secretary.InitialDelay = Duration(defaultInitialDelay)
	}
	if cfg.Secretary.ErrorBackoff == 0 {
		cfg.Secretary.ErrorBackoff = Duration(defaultErrorBackoff)
	}
	if cfg.Telegram.MessageTimeout == 0 {
		cfg.Telegram.MessageTimeout = Duration(defaultMessageTimeout)
	}
	if cfg.Telegram.ChunkSize == 0 {
		cfg.Telegram.ChunkSize = defaultChunkSize
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = MemoryPath()
	}
	if cfg.Models.Default == "" && len(cfg.Models.Providers) == 0 {
		cfg.Models.Default = "openai"
		cfg.Models.Providers = map[string]ProviderConfig{
			"openai": {Driver: "openai", Model: "gpt-4o-mini"},
		}
	}
	if cfg.Tools.Google.CredentialsFile == "" {
		cfg.Tools.Google.CredentialsFile = "credentials.json"
	}
	if cfg.Tools.Google.TokenFile == "" {
		cfg.Tools.Google.TokenFile = "token.json"
	}
	if cfg.Tools.Google.TimeZone == "" {
		cfg.Tools.Google.TimeZone = "America/New_York"
	}
	if cfg.Tools.Weather.Timeout == 0 {
		cfg.Tools.Weather.Timeout = Duration(10 * time.Second)
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 256
	}
}

// ApplyEnv overlays the environment variables recognized by the secretary.
// Environment values always win over the config file.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("FOLLOWUP_HOURS"); ok {
		cfg.Secretary.FollowupHours = envInt("FOLLOWUP_HOURS", v, defaultFollowupHours)
	}
	if v, ok := os.LookupEnv("ENABLE_ROUTINES"); ok {
		b := envBool(v)
		cfg.Secretary.EnableRoutines = &b
	}
	if v, ok := os.LookupEnv("ENABLE_LEARNING"); ok {
		b := envBool(v)
		cfg.Secretary.EnableLearning = &b
	}
	if v, ok := os.LookupEnv("THINKING_INTERVAL_MINUTES"); ok {
		m := envInt("THINKING_INTERVAL_MINUTES", v, int(defaultThinkingInterval/time.Minute))
		cfg.Secretary.ThinkingInterval = Duration(time.Duration(m) * time.Minute)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SERPER_API_KEY"); v != "" {
		cfg.Tools.Weather.SerperAPIKey = v
	}
	if v := os.Getenv("SECRETARY_MEMORY_PATH"); v != "" {
		cfg.Memory.Path = v
	}
}

// envBool treats only a case-insensitive "true" as true.
func envBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func envInt(name, v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		slog.Warn("config: invalid integer, using default", "var", name, "value", v, "default", fallback)
		return fallback
	}
	return n
}

// Validate checks the credentials required to start the bot.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("%w: set TELEGRAM_BOT_TOKEN or telegram.token", ErrMissingCredential))
	}

	p, ok := cfg.Models.Providers[cfg.Models.Default]
	if !ok {
		errs = append(errs, fmt.Errorf("default model provider %q is not configured", cfg.Models.Default))
	} else if envVar, needsKey := DefaultAuthEnv[strings.ToLower(p.Driver)]; needsKey {
		if strings.TrimSpace(p.Auth.APIKey) == "" && os.Getenv(envVar) == "" {
			errs = append(errs, fmt.Errorf("%w: set %s or models.providers.%s.auth.api_key",
				ErrMissingCredential, envVar, cfg.Models.Default))
		}
	}

	return errors.Join(errs...)
}
