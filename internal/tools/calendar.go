package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/api/calendar/v3"
)

const (
	primaryCalendar = "primary"
	eventTimeLayout = "2006-01-02 15:04"
)

// ---------------------------------------------------------------------------
// create_calendar_event
// ---------------------------------------------------------------------------

// CreateCalendarEventTool inserts an event into the primary calendar.
type CreateCalendarEventTool struct {
	google *Google
}

func NewCreateCalendarEventTool(g *Google) *CreateCalendarEventTool {
	return &CreateCalendarEventTool{google: g}
}

var createCalendarEventSpec = ToolSpec{
	Name:        NameCreateCalendarEvent,
	Description: "Create a new event in Google Calendar.",
	Parameters: map[string]ParamSpec{
		"summary":     {Type: "string", Description: "Event title", Required: true},
		"start_time":  {Type: "string", Description: "Start time, format YYYY-MM-DD HH:MM", Required: true},
		"end_time":    {Type: "string", Description: "End time, format YYYY-MM-DD HH:MM", Required: true},
		"description": {Type: "string", Description: "Event description"},
		"location":    {Type: "string", Description: "Event location"},
		"attendees":   {Type: "string", Description: "Comma-separated email addresses of attendees"},
	},
}

type createCalendarEventInput struct {
	Summary     string `json:"summary"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Attendees   string `json:"attendees"`
}

func (t *CreateCalendarEventTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(createCalendarEventSpec), nil
}

func (t *CreateCalendarEventTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in createCalendarEventInput
	if err := decodeArgs(NameCreateCalendarEvent, argumentsInJSON, &in); err != nil {
		return "", err
	}
	if in.Summary == "" || in.StartTime == "" || in.EndTime == "" {
		return "", fmt.Errorf("%s: summary, start_time and end_time are required", NameCreateCalendarEvent)
	}

	svc, err := t.google.Calendar(ctx)
	if err != nil {
		return errorf("%v", err), nil
	}

	loc := t.google.Location()
	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       eventTime(in.StartTime, loc),
		End:         eventTime(in.EndTime, loc),
		Reminders:   &calendar.EventReminders{UseDefault: true},
	}
	for _, addr := range splitList(in.Attendees) {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: addr})
	}

	created, err := svc.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return errorf("creating calendar event: %v", err), nil
	}
	return fmt.Sprintf("Event created successfully! Event link: %s", created.HtmlLink), nil
}

// eventTime parses "YYYY-MM-DD HH:MM" in loc. Other formats are passed through
// unchanged and left to the Calendar API to validate.
func eventTime(s string, loc *time.Location) *calendar.EventDateTime {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(eventTimeLayout, s, loc); err == nil {
		s = t.Format(time.RFC3339)
	}
	return &calendar.EventDateTime{DateTime: s, TimeZone: loc.String()}
}

// ---------------------------------------------------------------------------
// list_calendar_events
// ---------------------------------------------------------------------------

// ListCalendarEventsTool lists upcoming events of the primary calendar.
type ListCalendarEventsTool struct {
	google *Google
}

func NewListCalendarEventsTool(g *Google) *ListCalendarEventsTool {
	return &ListCalendarEventsTool{google: g}
}

var listCalendarEventsSpec = ToolSpec{
	Name:        NameListCalendarEvents,
	Description: "List upcoming events from Google Calendar.",
	Parameters: map[string]ParamSpec{
		"days_ahead": {Type: "integer", Description: "Number of days ahead to check for events (default 7)"},
	},
}

type listCalendarEventsInput struct {
	DaysAhead int `json:"days_ahead"`
}

func (t *ListCalendarEventsTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(listCalendarEventsSpec), nil
}

func (t *ListCalendarEventsTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in listCalendarEventsInput
	if err := decodeArgs(NameListCalendarEvents, argumentsInJSON, &in); err != nil {
		return "", err
	}
	if in.DaysAhead <= 0 {
		in.DaysAhead = 7
	}

	svc, err := t.google.Calendar(ctx)
	if err != nil {
		return errorf("%v", err), nil
	}

	now := t.google.now().UTC()
	events, err := svc.Events.List(primaryCalendar).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, in.DaysAhead).Format(time.RFC3339)).
		MaxResults(10).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return errorf("listing calendar events: %v", err), nil
	}
	if len(events.Items) == 0 {
		return fmt.Sprintf("No upcoming events found in the next %d days.", in.DaysAhead), nil
	}

	lines := make([]string, 0, len(events.Items))
	for _, ev := range events.Items {
		start := ""
		if ev.Start != nil {
			start = ev.Start.DateTime
			if start == "" {
				start = ev.Start.Date
			}
		}
		summary := ev.Summary
		if summary == "" {
			summary = "No title"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", start, summary))
	}
	return fmt.Sprintf("Upcoming events in the next %d days:\n%s", in.DaysAhead, strings.Join(lines, "\n")), nil
}

var (
	_ tool.InvokableTool = (*CreateCalendarEventTool)(nil)
	_ tool.InvokableTool = (*ListCalendarEventsTool)(nil)
)
