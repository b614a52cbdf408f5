package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dohr-michael/secretary/internal/config"
)

// Scopes requested for the shared Google token.
var Scopes = []string{
	gmail.GmailSendScope,
	gmail.GmailReadonlyScope,
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// ErrGoogleNotConfigured is returned when credentials.json or token.json is missing.
var ErrGoogleNotConfigured = errors.New("google credentials not found")

// Google lazily builds authenticated Gmail and Calendar clients shared by the
// email and calendar tools. Token refresh is handled by the oauth2 token source.
type Google struct {
	cfg      config.GoogleConfig
	opts     []option.ClientOption
	location *time.Location
	now      func() time.Time

	mu       sync.Mutex
	gmail    *gmail.Service
	calendar *calendar.Service
}

// GoogleOption configures a Google client.
type GoogleOption func(*Google)

// WithClientOptions bypasses the OAuth files and builds the services from opts
// (custom endpoint, HTTP client...).
func WithClientOptions(opts ...option.ClientOption) GoogleOption {
	return func(g *Google) { g.opts = opts }
}

// WithGoogleClock overrides the time source used for relative queries.
func WithGoogleClock(now func() time.Time) GoogleOption {
	return func(g *Google) { g.now = now }
}

// NewGoogle creates the shared Google client holder.
func NewGoogle(cfg config.GoogleConfig, opts ...GoogleOption) *Google {
	g := &Google{cfg: cfg, now: time.Now, location: time.UTC}
	if cfg.TimeZone != "" {
		if loc, err := time.LoadLocation(cfg.TimeZone); err == nil {
			g.location = loc
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Location is the time zone used for calendar events.
func (g *Google) Location() *time.Location { return g.location }

func (g *Google) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	if len(g.opts) > 0 {
		return g.opts, nil
	}
	ts, err := LoadTokenSource(ctx, g.cfg.CredentialsFile, g.cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// Gmail returns the Gmail service, creating it on first success.
func (g *Google) Gmail(ctx context.Context) (*gmail.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gmail != nil {
		return g.gmail, nil
	}
	opts, err := g.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	g.gmail = svc
	return svc, nil
}

// Calendar returns the Calendar service, creating it on first success.
func (g *Google) Calendar(ctx context.Context) (*calendar.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calendar != nil {
		return g.calendar, nil
	}
	opts, err := g.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	g.calendar = svc
	return svc, nil
}

// LoadTokenSource reads the OAuth client secrets and a previously authorized
// token, returning a refreshing token source.
func LoadTokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	secrets, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: please set up %s", ErrGoogleNotConfigured, credentialsFile)
		}
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secrets, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no authorized token at %s", ErrGoogleNotConfigured, tokenFile)
		}
		return nil, fmt.Errorf("read google token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse google token: %w", err)
	}

	return oauthCfg.TokenSource(context.WithoutCancel(ctx), &tok), nil
}
