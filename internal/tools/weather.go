package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/secretary/internal/config"
)

const defaultSerperURL = "https://google.serper.dev/search"

// WeatherTool answers current-weather questions through a web search: Serper
// when an API key is configured, the configured search provider otherwise.
type WeatherTool struct {
	apiKey    string
	serperURL string
	client    *http.Client
	search    tool.InvokableTool // fallback, used without an API key
}

// WeatherOption configures a WeatherTool.
type WeatherOption func(*WeatherTool)

// WithSerperURL overrides the Serper endpoint.
func WithSerperURL(u string) WeatherOption {
	return func(t *WeatherTool) { t.serperURL = u }
}

// WithSearchTool overrides the keyless search backend.
func WithSearchTool(s tool.InvokableTool) WeatherOption {
	return func(t *WeatherTool) { t.search = s }
}

// NewWeatherTool creates the weather tool.
func NewWeatherTool(ctx context.Context, cfg config.WeatherConfig, opts ...WeatherOption) (*WeatherTool, error) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := &WeatherTool{
		apiKey:    cfg.SerperAPIKey,
		serperURL: defaultSerperURL,
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.apiKey == "" && t.search == nil {
		search, err := newSearchTool(ctx, cfg, timeout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", NameGetWeather, err)
		}
		t.search = search
	}
	return t, nil
}

var weatherSpec = ToolSpec{
	Name:        NameGetWeather,
	Description: "Get current weather information for a specific location.",
	Parameters: map[string]ParamSpec{
		"location": {Type: "string", Description: "City or location to get weather for", Required: true},
	},
}

type weatherInput struct {
	Location string `json:"location"`
}

func (t *WeatherTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(weatherSpec), nil
}

func (t *WeatherTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var in weatherInput
	if err := decodeArgs(NameGetWeather, argumentsInJSON, &in); err != nil {
		return "", err
	}
	in.Location = strings.TrimSpace(in.Location)
	if in.Location == "" {
		return "", fmt.Errorf("%s: location is required", NameGetWeather)
	}

	if t.apiKey != "" {
		return t.serper(ctx, in.Location), nil
	}
	return t.fallback(ctx, in.Location, opts...), nil
}

type serperRequest struct {
	Q        string `json:"q"`
	Location string `json:"location"`
	Num      int    `json:"num"`
}

type serperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Description string            `json:"description"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (t *WeatherTool) serper(ctx context.Context, location string) string {
	payload, err := json.Marshal(serperRequest{
		Q:        fmt.Sprintf("current weather in %s temperature conditions forecast today", location),
		Location: location,
		Num:      1,
	})
	if err != nil {
		return errorf("encoding weather query: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serperURL, bytes.NewReader(payload))
	if err != nil {
		return errorf("building weather request: %v", err)
	}
	req.Header.Set("X-API-KEY", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errorf("network error getting weather: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorf("fetching weather data: HTTP %d", resp.StatusCode)
	}

	var data serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return errorf("decoding weather data: %v", err)
	}

	var info []string
	if ab := data.AnswerBox; ab != nil {
		info = appendNonEmpty(info, ab.Answer, ab.Snippet)
	}
	if kg := data.KnowledgeGraph; kg != nil {
		info = appendNonEmpty(info, kg.Description)
		keys := make([]string, 0, len(kg.Attributes))
		for k := range kg.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			info = append(info, fmt.Sprintf("%s: %s", k, kg.Attributes[k]))
		}
	}
	for i, r := range data.Organic {
		if i == 2 {
			break
		}
		info = appendNonEmpty(info, r.Snippet)
	}

	if len(info) == 0 {
		return fmt.Sprintf("Could not find specific weather information for %s", location)
	}
	return fmt.Sprintf("Weather information for %s:\n%s", location, strings.Join(info, "\n"))
}

func (t *WeatherTool) fallback(ctx context.Context, location string, opts ...tool.Option) string {
	if t.search == nil {
		return errorf("weather service not configured, set SERPER_API_KEY")
	}
	args, err := json.Marshal(map[string]string{
		"query": fmt.Sprintf("current weather in %s today", location),
	})
	if err != nil {
		return errorf("encoding weather query: %v", err)
	}
	out, err := t.search.InvokableRun(ctx, string(args), opts...)
	if err != nil {
		return errorf("searching weather: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		return fmt.Sprintf("Could not find specific weather information for %s", location)
	}
	return fmt.Sprintf("Weather information for %s:\n%s", location, out)
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

var _ tool.InvokableTool = (*WeatherTool)(nil)
