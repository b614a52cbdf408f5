package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/api/gmail/v1"
)

const gmailUser = "me"

// ---------------------------------------------------------------------------
// send_email
// ---------------------------------------------------------------------------

// SendEmailTool sends a plain-text email through Gmail.
type SendEmailTool struct {
	google *Google
}

func NewSendEmailTool(g *Google) *SendEmailTool { return &SendEmailTool{google: g} }

var sendEmailSpec = ToolSpec{
	Name:        NameSendEmail,
	Description: "Send an email using Gmail.",
	Parameters: map[string]ParamSpec{
		"to":      {Type: "string", Description: "Recipient email address", Required: true},
		"subject": {Type: "string", Description: "Email subject", Required: true},
		"body":    {Type: "string", Description: "Email body content", Required: true},
	},
}

type sendEmailInput struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (t *SendEmailTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(sendEmailSpec), nil
}

func (t *SendEmailTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in sendEmailInput
	if err := decodeArgs(NameSendEmail, argumentsInJSON, &in); err != nil {
		return "", err
	}
	if in.To == "" {
		return "", fmt.Errorf("%s: to is required", NameSendEmail)
	}

	svc, err := t.google.Gmail(ctx)
	if err != nil {
		return errorf("%v", err), nil
	}
	sent, err := svc.Users.Messages.Send(gmailUser, &gmail.Message{
		Raw: buildRawMessage(in.To, in.Subject, in.Body),
	}).Context(ctx).Do()
	if err != nil {
		return errorf("sending email: %v", err), nil
	}
	return fmt.Sprintf("Email sent successfully! Message ID: %s", sent.Id), nil
}

// buildRawMessage renders an RFC 2822 text message, base64url-encoded as the
// Gmail API expects.
func buildRawMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// ---------------------------------------------------------------------------
// read_email
// ---------------------------------------------------------------------------

// ReadEmailTool lists emails matching a Gmail search query.
type ReadEmailTool struct {
	google *Google
}

func NewReadEmailTool(g *Google) *ReadEmailTool { return &ReadEmailTool{google: g} }

var readEmailSpec = ToolSpec{
	Name:        NameReadEmail,
	Description: "Read emails from the Gmail inbox using a search query.",
	Parameters: map[string]ParamSpec{
		"query":       {Type: "string", Description: "Gmail search query (e.g. 'is:unread', 'from:user@example.com'). Defaults to is:unread"},
		"max_results": {Type: "integer", Description: "Maximum number of emails to retrieve (default 10)"},
	},
}

type readEmailInput struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

func (t *ReadEmailTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(readEmailSpec), nil
}

func (t *ReadEmailTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in readEmailInput
	if err := decodeArgs(NameReadEmail, argumentsInJSON, &in); err != nil {
		return "", err
	}
	if in.Query == "" {
		in.Query = "is:unread"
	}
	if in.MaxResults <= 0 {
		in.MaxResults = 10
	}

	svc, err := t.google.Gmail(ctx)
	if err != nil {
		return errorf("%v", err), nil
	}
	list, err := svc.Users.Messages.List(gmailUser).Q(in.Query).MaxResults(in.MaxResults).Context(ctx).Do()
	if err != nil {
		return errorf("reading emails: %v", err), nil
	}
	if len(list.Messages) == 0 {
		return fmt.Sprintf("No emails found matching query: %s", in.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d email(s) matching '%s':\n\n", len(list.Messages), in.Query)
	for i, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return errorf("reading email %s: %v", ref.Id, err), nil
		}
		body := extractBody(msg.Payload)
		if body == "" {
			body = "No text content"
		}
		fmt.Fprintf(&b, "%d. From: %s\n", i+1, header(msg.Payload, "From", "Unknown Sender"))
		fmt.Fprintf(&b, "   Subject: %s\n", header(msg.Payload, "Subject", "No Subject"))
		fmt.Fprintf(&b, "   Date: %s\n", header(msg.Payload, "Date", "Unknown Date"))
		fmt.Fprintf(&b, "   Preview: %s\n", truncate(msg.Snippet, 200))
		fmt.Fprintf(&b, "   Body: %s\n", truncate(body, 500))
		b.WriteString(strings.Repeat("-", 50) + "\n")
	}
	return b.String(), nil
}

func header(p *gmail.MessagePart, name, fallback string) string {
	if p == nil {
		return fallback
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return fallback
}

// extractBody returns the first text/plain part, searching nested parts.
func extractBody(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}
	if len(p.Parts) > 0 {
		for _, part := range p.Parts {
			if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
				return decodePart(part.Body.Data)
			}
			if len(part.Parts) > 0 {
				if body := extractBody(part); body != "" {
					return body
				}
			}
		}
		return ""
	}
	if p.Body != nil && p.Body.Data != "" {
		return decodePart(p.Body.Data)
	}
	return ""
}

func decodePart(data string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail sometimes omits padding.
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(raw), "")
}

// ---------------------------------------------------------------------------
// check_email_responses
// ---------------------------------------------------------------------------

// CheckEmailResponsesTool reports which correspondents replied recently.
type CheckEmailResponsesTool struct {
	google *Google
}

func NewCheckEmailResponsesTool(g *Google) *CheckEmailResponsesTool {
	return &CheckEmailResponsesTool{google: g}
}

var checkEmailResponsesSpec = ToolSpec{
	Name:        NameCheckEmailResponses,
	Description: "Check whether specific people have replied by email recently.",
	Parameters: map[string]ParamSpec{
		"email_addresses": {Type: "string", Description: "Comma-separated list of email addresses to check responses from", Required: true},
		"subject_keyword": {Type: "string", Description: "Keyword to search in the subject line"},
		"since_hours":     {Type: "integer", Description: "Check emails from the last N hours (default 24)"},
	},
}

type checkEmailResponsesInput struct {
	EmailAddresses string `json:"email_addresses"`
	SubjectKeyword string `json:"subject_keyword"`
	SinceHours     int    `json:"since_hours"`
}

func (t *CheckEmailResponsesTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return toolInfo(checkEmailResponsesSpec), nil
}

func (t *CheckEmailResponsesTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in checkEmailResponsesInput
	if err := decodeArgs(NameCheckEmailResponses, argumentsInJSON, &in); err != nil {
		return "", err
	}
	addresses := splitList(in.EmailAddresses)
	if len(addresses) == 0 {
		return "", fmt.Errorf("%s: email_addresses is required", NameCheckEmailResponses)
	}
	if in.SinceHours <= 0 {
		in.SinceHours = 24
	}

	svc, err := t.google.Gmail(ctx)
	if err != nil {
		return errorf("%v", err), nil
	}

	since := t.google.now().Add(-time.Duration(in.SinceHours) * time.Hour).Format("2006/01/02")
	var responded, waiting []string
	for _, addr := range addresses {
		q := fmt.Sprintf("from:%s after:%s", addr, since)
		if in.SubjectKeyword != "" {
			q += " subject:" + in.SubjectKeyword
		}
		list, err := svc.Users.Messages.List(gmailUser).Q(q).MaxResults(5).Context(ctx).Do()
		if err != nil {
			return errorf("checking email responses: %v", err), nil
		}
		if len(list.Messages) == 0 {
			waiting = append(waiting, addr)
			continue
		}
		latest, err := svc.Users.Messages.Get(gmailUser, list.Messages[0].Id).
			Format("metadata").MetadataHeaders("Subject", "Date").Context(ctx).Do()
		if err != nil {
			return errorf("checking email responses: %v", err), nil
		}
		responded = append(responded, fmt.Sprintf("- %s: %d email(s) - Latest: %s (%s)",
			addr, len(list.Messages), header(latest.Payload, "Subject", "No Subject"), header(latest.Payload, "Date", "Unknown Date")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Email Response Status (last %d hours):\n\n", in.SinceHours)
	if len(responded) > 0 {
		b.WriteString("Responded:\n" + strings.Join(responded, "\n") + "\n\n")
	}
	if len(waiting) > 0 {
		b.WriteString("Awaiting Response:\n")
		for _, addr := range waiting {
			b.WriteString("- " + addr + ": No response yet\n")
		}
		b.WriteString("\nConsider sending a follow-up to: " + strings.Join(waiting, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

var (
	_ tool.InvokableTool = (*SendEmailTool)(nil)
	_ tool.InvokableTool = (*ReadEmailTool)(nil)
	_ tool.InvokableTool = (*CheckEmailResponsesTool)(nil)
)
