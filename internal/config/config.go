// Package config loads the secretary configuration from config.jsonc, .env and the environment.
package config

import (
	"errors"
	"time"
)

// ErrMissingCredential is returned by Validate when a required credential is absent.
var ErrMissingCredential = errors.New("missing credential")

// Config is the root configuration for the secretary.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Models    ModelsConfig    `json:"models"`
	Secretary SecretaryConfig `json:"secretary"`
	Memory    MemoryConfig    `json:"memory"`
	Tools     ToolsConfig     `json:"tools"`
	Gateway   GatewayConfig   `json:"gateway"`
	Events    EventsConfig    `json:"events"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	AdminChatIDs []int64 `json:"admin_chat_ids,omitempty"` // non-empty starts the loop at boot
	// MessageTimeout bounds a single inbound message round trip (default 30s).
	MessageTimeout Duration `json:"message_timeout,omitempty"`
	ChunkSize      int      `json:"chunk_size,omitempty"` // default 4000
}

// SecretaryConfig holds the behavioral knobs of the decision loop.
type SecretaryConfig struct {
	FollowupHours    int      `json:"followup_hours"`
	EnableRoutines   *bool    `json:"enable_routines,omitempty"`
	EnableLearning   *bool    `json:"enable_learning,omitempty"`
	ThinkingInterval Duration `json:"thinking_interval,omitempty"`
	Tick             Duration `json:"tick,omitempty"`
	InitialDelay     Duration `json:"initial_delay,omitempty"`
	ErrorBackoff     Duration `json:"error_backoff,omitempty"`
}

// RoutinesEnabled reports whether routine execution is on (default true).
func (s SecretaryConfig) RoutinesEnabled() bool {
	return s.EnableRoutines == nil || *s.EnableRoutines
}

// LearningEnabled reports whether pattern learning is on (default true).
func (s SecretaryConfig) LearningEnabled() bool {
	return s.EnableLearning == nil || *s.EnableLearning
}

// MemoryConfig locates the persisted document.
type MemoryConfig struct {
	Path string `json:"path,omitempty"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "openai", "anthropic", "ollama", "gemini"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // direct key or ${{ .Env.VAR }} template
}

// ToolsConfig configures the collaborator tools handed to the agents.
type ToolsConfig struct {
	Google  GoogleConfig  `json:"google"`
	Weather WeatherConfig `json:"weather"`
}

// GoogleConfig locates OAuth material for Gmail and Calendar.
type GoogleConfig struct {
	CredentialsFile string `json:"credentials_file,omitempty"`
	TokenFile       string `json:"token_file,omitempty"`
	TimeZone        string `json:"time_zone,omitempty"`
}

// WeatherConfig selects the weather lookup backend. Serper wins when its key
// is set; otherwise SearchProvider ("duckduckgo", "google" or "bing") is used.
type WeatherConfig struct {
	SerperAPIKey   string   `json:"serper_api_key,omitempty"`
	SearchProvider string   `json:"search_provider,omitempty"`
	GoogleAPIKey   string   `json:"google_api_key,omitempty"`
	GoogleCX       string   `json:"google_cx,omitempty"`
	BingAPIKey     string   `json:"bing_api_key,omitempty"`
	Timeout        Duration `json:"timeout,omitempty"`
}

// GatewayConfig holds the read-only status server settings.
type GatewayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
