package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/secretary/internal/config"
)

func TestWeather_Serper(t *testing.T) {
	var gotKey string
	var gotReq serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = io.WriteString(w, `{
			"answerBox": {"answer": "12°C, partly cloudy"},
			"knowledgeGraph": {"description": "Paris weather", "attributes": {"Wind": "10 km/h", "Humidity": "60%"}},
			"organic": [{"snippet": "one"}, {"snippet": "two"}, {"snippet": "three"}]
		}`)
	}))
	defer srv.Close()

	wt, err := NewWeatherTool(context.Background(), config.WeatherConfig{SerperAPIKey: "k"}, WithSerperURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	out, err := wt.InvokableRun(context.Background(), `{"location":"Paris"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}

	if gotKey != "k" || gotReq.Location != "Paris" || gotReq.Num != 1 {
		t.Errorf("request: key=%q req=%+v", gotKey, gotReq)
	}
	want := "Weather information for Paris:\n12°C, partly cloudy\nParis weather\nHumidity: 60%\nWind: 10 km/h\none\ntwo"
	if out != want {
		t.Errorf("got %q\nwant %q", out, want)
	}
}

func TestWeather_SerperHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	wt, _ := NewWeatherTool(context.Background(), config.WeatherConfig{SerperAPIKey: "bad"}, WithSerperURL(srv.URL))
	out, err := wt.InvokableRun(context.Background(), `{"location":"Paris"}`)
	if err != nil {
		t.Fatalf("service failures must not be Go errors: %v", err)
	}
	if out != "Error: fetching weather data: HTTP 403" {
		t.Errorf("unexpected result %q", out)
	}
}

func TestWeather_SerperNoInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	wt, _ := NewWeatherTool(context.Background(), config.WeatherConfig{SerperAPIKey: "k"}, WithSerperURL(srv.URL))
	out, _ := wt.InvokableRun(context.Background(), `{"location":"Nowhere"}`)
	if out != "Could not find specific weather information for Nowhere" {
		t.Errorf("unexpected result %q", out)
	}
}

type fakeSearch struct {
	args string
	out  string
	err  error
}

func (f *fakeSearch) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "fake_search"}, nil
}

func (f *fakeSearch) InvokableRun(_ context.Context, args string, _ ...tool.Option) (string, error) {
	f.args = args
	return f.out, f.err
}

func TestWeather_SearchFallback(t *testing.T) {
	search := &fakeSearch{out: "Lyon: 18°C sunny"}
	wt, err := NewWeatherTool(context.Background(), config.WeatherConfig{}, WithSearchTool(search))
	if err != nil {
		t.Fatal(err)
	}

	out, err := wt.InvokableRun(context.Background(), `{"location":" Lyon "}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out != "Weather information for Lyon:\nLyon: 18°C sunny" {
		t.Errorf("unexpected result %q", out)
	}
	if !strings.Contains(search.args, `"query":"current weather in Lyon today"`) {
		t.Errorf("search args = %s", search.args)
	}

	search.err = errors.New("rate limited")
	out, _ = wt.InvokableRun(context.Background(), `{"location":"Lyon"}`)
	if out != "Error: searching weather: rate limited" {
		t.Errorf("unexpected result %q", out)
	}
}

func TestWeather_NotConfigured(t *testing.T) {
	wt := &WeatherTool{}
	out, err := wt.InvokableRun(context.Background(), `{"location":"Paris"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !IsError(out) || !strings.Contains(out, "SERPER_API_KEY") {
		t.Errorf("unexpected result %q", out)
	}
	if _, err := wt.InvokableRun(context.Background(), `{}`); err == nil {
		t.Error("expected error for missing location")
	}
}
