// Package tools implements the collaborator tools handed to the secretary's
// agents: Gmail, Google Calendar and weather lookups.
//
// Tools never surface service failures as Go errors. They answer with a
// plain-text result or an "Error: ..." string the model can read. Only
// malformed arguments produce a Go error.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Tool names as seen by the model.
const (
	NameSendEmail           = "send_email"
	NameReadEmail           = "read_email"
	NameCheckEmailResponses = "check_email_responses"
	NameCreateCalendarEvent = "create_calendar_event"
	NameListCalendarEvents  = "list_calendar_events"
	NameGetWeather          = "get_weather"
)

// ErrorPrefix starts every failed tool result.
const ErrorPrefix = "Error: "

// ToolSpec describes a single tool interface.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string // "string", "number", "boolean", "integer"
	Description string
	Required    bool
}

// toolInfo converts a ToolSpec to an Eino schema.ToolInfo.
func toolInfo(spec ToolSpec) *schema.ToolInfo {
	info := &schema.ToolInfo{
		Name: spec.Name,
		Desc: spec.Description,
	}
	if len(spec.Parameters) > 0 {
		params := make(map[string]*schema.ParameterInfo, len(spec.Parameters))
		for name, p := range spec.Parameters {
			params[name] = &schema.ParameterInfo{
				Type:     paramTypeToDataType(p.Type),
				Desc:     p.Description,
				Required: p.Required,
			}
		}
		info.ParamsOneOf = schema.NewParamsOneOfByParams(params)
	}
	return info
}

func paramTypeToDataType(t string) schema.DataType {
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	default:
		return schema.String
	}
}

// decodeArgs unmarshals tool arguments, treating an empty payload as {}.
func decodeArgs(name, argumentsInJSON string, dst any) error {
	if strings.TrimSpace(argumentsInJSON) == "" {
		argumentsInJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), dst); err != nil {
		return fmt.Errorf("%s: parse input: %w", name, err)
	}
	return nil
}

func errorf(format string, args ...any) string {
	return ErrorPrefix + fmt.Sprintf(format, args...)
}

// IsError reports whether a tool result is an error string.
func IsError(result string) bool {
	return strings.HasPrefix(result, ErrorPrefix)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
