package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/dohr-michael/secretary/internal/config"
)

func TestNewSearchTool_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.WeatherConfig
		want string
	}{
		{"google without key", config.WeatherConfig{SearchProvider: "google", GoogleCX: "cx"}, "google_api_key"},
		{"google without cx", config.WeatherConfig{SearchProvider: "google", GoogleAPIKey: "k"}, "google_cx"},
		{"bing without key", config.WeatherConfig{SearchProvider: "Bing"}, "bing_api_key"},
		{"unknown", config.WeatherConfig{SearchProvider: "altavista"}, `unknown search provider "altavista"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeatherTool(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewSearchTool_SerperSkipsProvider(t *testing.T) {
	// A Serper key wins even when the fallback provider is misconfigured.
	cfg := config.WeatherConfig{SerperAPIKey: "key", SearchProvider: "bing"}
	if _, err := NewWeatherTool(context.Background(), cfg); err != nil {
		t.Fatalf("NewWeatherTool: %v", err)
	}
}

func TestNewSearchTool_Providers(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config.WeatherConfig{
		{},
		{SearchProvider: SearchGoogle, GoogleAPIKey: "k", GoogleCX: "cx"},
		{SearchProvider: SearchBing, BingAPIKey: "k"},
	} {
		search, err := newSearchTool(ctx, cfg, 0)
		if err != nil {
			t.Fatalf("provider %q: %v", cfg.SearchProvider, err)
		}
		info, err := search.Info(ctx)
		if err != nil {
			t.Fatalf("provider %q info: %v", cfg.SearchProvider, err)
		}
		if info.Name != searchToolName {
			t.Errorf("provider %q: tool name = %q", cfg.SearchProvider, info.Name)
		}
	}
}
