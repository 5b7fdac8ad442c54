// Package telegram connects the services to the Telegram Bot API: an adapter
// implementing service.Messenger, the long-poll loop and the update router.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/service"
	"go.uber.org/zap"
)

// Transport is everything the router sends through. *Client implements it.
type Transport interface {
	service.Messenger
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb service.Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Client wraps tgbotapi.BotAPI and maps its errors onto the service error
// kinds.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewClient authenticates with token and fetches the bot identity.
func NewClient(token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Client{api: api, logger: logger.With(zap.String("component", "telegram"))}, nil
}

// Username is the bot's @handle without the @.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb service.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup, ok := inlineMarkup(kb); ok {
		msg.ReplyMarkup = markup
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := c.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, classify(err)
	}
	return id.MessageID, nil
}

func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sent, err := c.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, classify(err)
	}
	return sent.MessageID, nil
}

// DeleteMessages deletes ids one call at a time. Ids that are already gone
// are skipped; the first other failure stops the run.
func (c *Client) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	for _, id := range messageIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, id))
		if err == nil {
			continue
		}
		if err = classify(err); errors.Is(err, service.ErrMessageGone) {
			continue
		}
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	return nil
}

func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, kb service.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if markup, ok := inlineMarkup(kb); ok {
		edit.ReplyMarkup = &markup
	}

	if _, err := c.api.Request(edit); err != nil {
		err = classify(err)
		// Telegram rejects edits that change nothing; that is not a failure.
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return classify(err)
	}
	return nil
}

// GetUpdates long-polls for new updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]tgbotapi.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}

	updates, err := c.api.GetUpdates(cfg)
	if err != nil {
		return nil, classify(err)
	}
	return updates, nil
}

func inlineMarkup(kb service.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

var goneMarkers = []string{
	"message to delete not found",
	"message to copy not found",
	"message to forward not found",
	"message_id_invalid",
	"message not found",
}

// classify maps Bot API failures onto the service error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.RetryAfter > 0:
			return &service.RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
		case apiErr.Code >= 500:
			return &service.TransientError{Err: err}
		}
		lower := strings.ToLower(apiErr.Message)
		for _, marker := range goneMarkers {
			if strings.Contains(lower, marker) {
				return fmt.Errorf("%w: %s", service.ErrMessageGone, apiErr.Message)
			}
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &service.TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &service.TransientError{Err: err}
	}
	return err
}
