package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/dohr-michael/secretary/internal/config"
)

// fakeGoogle serves the subset of the Gmail and Calendar REST APIs the tools use.
type fakeGoogle struct {
	mu       sync.Mutex
	sent     []string // raw messages
	queries  []string
	inserted []map[string]any
	events   []map[string]any
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/users/me/messages/send"):
		var msg struct {
			Raw string `json:"raw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&msg)
		f.sent = append(f.sent, msg.Raw)
		_, _ = io.WriteString(w, `{"id":"msg-1"}`)

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/users/me/messages"):
		q := r.URL.Query().Get("q")
		f.queries = append(f.queries, q)
		if strings.Contains(q, "nobody@example.com") {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"a1"},{"id":"a2"}]}`)

	case r.Method == http.MethodGet && strings.Contains(path, "/users/me/messages/"):
		id := path[strings.LastIndex(path, "/")+1:]
		body := base64.URLEncoding.EncodeToString([]byte("Hello from " + id))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      id,
			"snippet": "snippet " + id,
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "From", "value": "alice@example.com"},
					{"name": "Subject", "value": "Re: budget"},
					{"name": "Date", "value": "Mon, 10 Mar 2025 09:00:00 +0000"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/html", "body": map[string]string{"data": base64.URLEncoding.EncodeToString([]byte("<p>x</p>"))}},
					{"mimeType": "text/plain", "body": map[string]string{"data": body}},
				},
			},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/calendars/primary/events"):
		var ev map[string]any
		_ = json.NewDecoder(r.Body).Decode(&ev)
		f.inserted = append(f.inserted, ev)
		_, _ = io.WriteString(w, `{"id":"ev1","htmlLink":"https://calendar.example/ev1"}`)

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/calendars/primary/events"):
		f.queries = append(f.queries, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": f.events})

	default:
		http.NotFound(w, r)
	}
}

func newTestGoogle(t *testing.T, fake *fakeGoogle) *Google {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	clock := func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return NewGoogle(
		config.GoogleConfig{TimeZone: "America/New_York"},
		WithClientOptions(option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())),
		WithGoogleClock(clock),
	)
}

func TestSendEmail(t *testing.T) {
	fake := &fakeGoogle{}
	tl := NewSendEmailTool(newTestGoogle(t, fake))

	out, err := tl.InvokableRun(context.Background(), `{"to":"bob@example.com","subject":"Hi","body":"See you"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out != "Email sent successfully! Message ID: msg-1" {
		t.Errorf("unexpected result %q", out)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}
	raw, err := base64.URLEncoding.DecodeString(fake.sent[0])
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	for _, want := range []string{"To: bob@example.com\r\n", "Subject: Hi\r\n", "\r\n\r\nSee you"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("raw message missing %q:\n%s", want, raw)
		}
	}
}

func TestSendEmail_MissingRecipient(t *testing.T) {
	tl := NewSendEmailTool(NewGoogle(config.GoogleConfig{}))
	if _, err := tl.InvokableRun(context.Background(), `{"subject":"x"}`); err == nil {
		t.Fatal("expected argument error")
	}
	if _, err := tl.InvokableRun(context.Background(), `{not json`); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBuildRawMessage_EncodesSubject(t *testing.T) {
	raw, err := base64.URLEncoding.DecodeString(buildRawMessage("a@b.c", "Réunion", "corps"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "Subject: =?utf-8?q?R=C3=A9union?=") {
		t.Errorf("subject not Q-encoded:\n%s", raw)
	}
}

func TestReadEmail(t *testing.T) {
	fake := &fakeGoogle{}
	tl := NewReadEmailTool(newTestGoogle(t, fake))

	out, err := tl.InvokableRun(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if fake.queries[0] != "is:unread" {
		t.Errorf("default query = %q, want is:unread", fake.queries[0])
	}
	for _, want := range []string{
		"Found 2 email(s) matching 'is:unread'",
		"1. From: alice@example.com",
		"Subject: Re: budget",
		"Body: Hello from a1",
		"Body: Hello from a2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestReadEmail_NoMatch(t *testing.T) {
	tl := NewReadEmailTool(newTestGoogle(t, &fakeGoogle{}))
	out, _ := tl.InvokableRun(context.Background(), `{"query":"from:nobody@example.com"}`)
	if out != "No emails found matching query: from:nobody@example.com" {
		t.Errorf("unexpected result %q", out)
	}
}

func TestCheckEmailResponses(t *testing.T) {
	fake := &fakeGoogle{}
	tl := NewCheckEmailResponsesTool(newTestGoogle(t, fake))

	out, err := tl.InvokableRun(context.Background(),
		`{"email_addresses":"alice@example.com, nobody@example.com","subject_keyword":"budget","since_hours":48}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if fake.queries[0] != "from:alice@example.com after:2025/03/08 subject:budget" {
		t.Errorf("query = %q", fake.queries[0])
	}
	for _, want := range []string{
		"Email Response Status (last 48 hours)",
		"- alice@example.com: 2 email(s) - Latest: Re: budget",
		"- nobody@example.com: No response yet",
		"Consider sending a follow-up to: nobody@example.com",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCreateCalendarEvent(t *testing.T) {
	fake := &fakeGoogle{}
	tl := NewCreateCalendarEventTool(newTestGoogle(t, fake))

	out, err := tl.InvokableRun(context.Background(), `{
		"summary":"Budget review",
		"start_time":"2025-03-11 14:00",
		"end_time":"2025-03-11 15:00",
		"attendees":"a@example.com, b@example.com"
	}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out != "Event created successfully! Event link: https://calendar.example/ev1" {
		t.Errorf("unexpected result %q", out)
	}

	ev := fake.inserted[0]
	start := ev["start"].(map[string]any)
	if start["dateTime"] != "2025-03-11T14:00:00-04:00" || start["timeZone"] != "America/New_York" {
		t.Errorf("start = %v", start)
	}
	if n := len(ev["attendees"].([]any)); n != 2 {
		t.Errorf("attendees = %d, want 2", n)
	}
}

func TestCreateCalendarEvent_RequiredFields(t *testing.T) {
	tl := NewCreateCalendarEventTool(NewGoogle(config.GoogleConfig{}))
	if _, err := tl.InvokableRun(context.Background(), `{"summary":"x"}`); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestListCalendarEvents(t *testing.T) {
	fake := &fakeGoogle{events: []map[string]any{
		{"summary": "Standup", "start": map[string]string{"dateTime": "2025-03-11T09:00:00Z"}},
		{"start": map[string]string{"date": "2025-03-12"}},
	}}
	tl := NewListCalendarEventsTool(newTestGoogle(t, fake))

	out, err := tl.InvokableRun(context.Background(), `{"days_ahead":3}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	want := "Upcoming events in the next 3 days:\n- 2025-03-11T09:00:00Z: Standup\n- 2025-03-12: No title"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if !strings.Contains(fake.queries[0], "singleEvents=true") || !strings.Contains(fake.queries[0], "orderBy=startTime") {
		t.Errorf("list query = %q", fake.queries[0])
	}
}

func TestListCalendarEvents_Empty(t *testing.T) {
	tl := NewListCalendarEventsTool(newTestGoogle(t, &fakeGoogle{}))
	out, _ := tl.InvokableRun(context.Background(), ``)
	if out != "No upcoming events found in the next 7 days." {
		t.Errorf("unexpected result %q", out)
	}
}

func TestGoogleNotConfigured(t *testing.T) {
	dir := t.TempDir()
	g := NewGoogle(config.GoogleConfig{
		CredentialsFile: filepath.Join(dir, "credentials.json"),
		TokenFile:       filepath.Join(dir, "token.json"),
	})

	out, err := NewReadEmailTool(g).InvokableRun(context.Background(), `{}`)
	if err != nil {
		t.Fatalf("service failures must not be Go errors: %v", err)
	}
	if !IsError(out) || !strings.Contains(out, "credentials.json") {
		t.Errorf("unexpected result %q", out)
	}

	_, err = LoadTokenSource(context.Background(), filepath.Join(dir, "credentials.json"), filepath.Join(dir, "token.json"))
	if !errors.Is(err, ErrGoogleNotConfigured) {
		t.Errorf("err = %v, want ErrGoogleNotConfigured", err)
	}
}

func TestLoadTokenSource_MissingToken(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	secrets := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(creds, []byte(secrets), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadTokenSource(context.Background(), creds, filepath.Join(dir, "token.json"))
	if !errors.Is(err, ErrGoogleNotConfigured) || !strings.Contains(err.Error(), "token.json") {
		t.Errorf("err = %v", err)
	}

	tokenPath := filepath.Join(dir, "token.json")
	if err := os.WriteFile(tokenPath, []byte(`{"access_token":"x","refresh_token":"y"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if ts, err := LoadTokenSource(context.Background(), creds, tokenPath); err != nil || ts == nil {
		t.Errorf("LoadTokenSource = %v, %v", ts, err)
	}
}

func TestExtractBody_Nested(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	msg := `{"mimeType":"multipart/mixed","parts":[{"mimeType":"multipart/alternative","parts":[{"mimeType":"text/plain","body":{"data":"` + enc("nested body!") + `"}}]}]}`

	var part gmail.MessagePart
	if err := json.Unmarshal([]byte(msg), &part); err != nil {
		t.Fatal(err)
	}
	if got := extractBody(&part); got != "nested body!" {
		t.Errorf("extractBody = %q", got)
	}
}
