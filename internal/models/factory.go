package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/secretary/internal/config"
)

// CreateModel creates a model.ToolCallingChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "ollama" {
		return NewOllama(ctx, cfg)
	}

	if _, known := config.DefaultAuthEnv[driver]; !known {
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
	apiKey, err := ResolveAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve auth: %w", err)
	}

	switch driver {
	case "anthropic":
		return NewClaude(ctx, cfg, apiKey)
	case "gemini":
		return NewGemini(ctx, cfg, apiKey)
	default:
		return NewOpenAI(ctx, cfg, apiKey)
	}
}

func temperature(cfg config.ProviderConfig) *float32 {
	if temp, ok := cfg.Options["temperature"].(float64); ok {
		t := float32(temp)
		return &t
	}
	return nil
}
