package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramPollTimeout = 60

// Telegram is the Bot API transport.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// TelegramOption configures a Telegram transport.
type TelegramOption func(*telegramOptions)

type telegramOptions struct {
	endpoint string
}

// WithAPIEndpoint overrides the Bot API endpoint, a format string taking the
// token and the method (see tgbotapi.APIEndpoint).
func WithAPIEndpoint(endpoint string) TelegramOption {
	return func(o *telegramOptions) { o.endpoint = endpoint }
}

// NewTelegram authorizes the bot token against the Bot API.
func NewTelegram(token string, opts ...TelegramOption) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: token not configured")
	}
	o := telegramOptions{endpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, o.endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	slog.Info("bot: telegram authorized", "username", api.Self.UserName)
	return &Telegram{api: api}, nil
}

// Updates implements Transport.
func (t *Telegram) Updates(ctx context.Context) (<-chan Update, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.api.GetUpdatesChan(u)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				in, ok := fromTelegram(update)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func fromTelegram(update tgbotapi.Update) (Update, bool) {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.Chat == nil {
		return Update{}, false
	}
	in := Update{
		ChatID: msg.Chat.ID,
		UserID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:   msg.Text,
	}
	if msg.From != nil {
		in.UserID = strconv.FormatInt(msg.From.ID, 10)
	}
	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = msg.CommandArguments()
	}
	return in, true
}

// Send implements Transport. Markdown rejected by Telegram is resent as plain text.
func (t *Telegram) Send(_ context.Context, chatID int64, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, err := t.api.Send(msg)
	if err != nil && markdown {
		slog.Debug("bot: markdown rejected, resending as plain text", "chat", chatID, "error", err)
		msg.ParseMode = ""
		_, err = t.api.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// Typing implements Transport.
func (t *Telegram) Typing(_ context.Context, chatID int64) error {
	_, err := t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// EscapeMarkdown escapes user-provided text for Telegram's legacy Markdown.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
