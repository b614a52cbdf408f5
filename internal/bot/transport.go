package bot

import "context"

// Update is an inbound text message.
type Update struct {
	ChatID  int64
	UserID  string
	Text    string
	Command string // without the leading slash, empty for plain text
	Args    string
}

// Transport is the chat network the bot talks through.
type Transport interface {
	// Updates starts receiving and returns a channel closed when ctx ends.
	Updates(ctx context.Context) (<-chan Update, error)
	// Send delivers text. Markdown requests rich formatting; transports fall
	// back to plain text when the markup is rejected.
	Send(ctx context.Context, chatID int64, text string, markdown bool) error
	// Typing shows a typing indicator.
	Typing(ctx context.Context, chatID int64) error
}
