package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/secretary/internal/config"
)

const (
	searchToolName   = "weather_search"
	searchMaxResults = 3
)

// Search providers usable for weather lookups without a Serper key.
const (
	SearchDuckDuckGo = "duckduckgo"
	SearchGoogle     = "google"
	SearchBing       = "bing"
)

// newSearchTool builds the keyless weather search backend. All providers take
// a {"query": ...} argument.
func newSearchTool(ctx context.Context, cfg config.WeatherConfig, timeout time.Duration) (tool.InvokableTool, error) {
	provider := strings.ToLower(cfg.SearchProvider)
	if provider == "" {
		provider = SearchDuckDuckGo
	}

	var (
		search tool.InvokableTool
		err    error
	)
	switch provider {
	case SearchDuckDuckGo:
		search, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   searchToolName,
			ToolDesc:   "web search used for weather lookups",
			MaxResults: searchMaxResults,
			Timeout:    timeout,
		})
	case SearchGoogle:
		if cfg.GoogleAPIKey == "" || cfg.GoogleCX == "" {
			return nil, fmt.Errorf("google search requires google_api_key and google_cx")
		}
		search, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleCX,
			Num:            searchMaxResults,
			ToolName:       searchToolName,
			ToolDesc:       "Google search used for weather lookups",
		})
	case SearchBing:
		if cfg.BingAPIKey == "" {
			return nil, fmt.Errorf("bing search requires bing_api_key")
		}
		search, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: searchMaxResults,
			Timeout:    timeout,
			ToolName:   searchToolName,
			ToolDesc:   "Bing search used for weather lookups",
		})
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.SearchProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s search: %w", provider, err)
	}
	slog.Debug("tools: weather search provider ready", "provider", provider)
	return search, nil
}
