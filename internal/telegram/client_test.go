package telegram

import (
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("rate limit", func(t *testing.T) {
		err := classify(&tgbotapi.Error{
			Code:               429,
			Message:            "Too Many Requests: retry after 7",
			ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
		})
		var rl *service.RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, 7*time.Second, rl.RetryAfter)
		assert.True(t, service.IsTransient(err))
	})

	t.Run("server error", func(t *testing.T) {
		err := classify(&tgbotapi.Error{Code: 502, Message: "Bad Gateway"})
		var te *service.TransientError
		assert.ErrorAs(t, err, &te)
	})

	t.Run("network error", func(t *testing.T) {
		err := classify(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.DNSError{Err: "timeout", IsTimeout: true}})
		assert.True(t, service.IsTransient(err))
	})

	t.Run("message gone", func(t *testing.T) {
		for _, msg := range []string{
			"Bad Request: message to delete not found",
			"Bad Request: message to copy not found",
			"Bad Request: MESSAGE_ID_INVALID",
		} {
			err := classify(&tgbotapi.Error{Code: 400, Message: msg})
			assert.ErrorIs(t, err, service.ErrMessageGone, msg)
		}
	})

	t.Run("permanent", func(t *testing.T) {
		orig := &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		err := classify(orig)
		assert.False(t, service.IsTransient(err))
		assert.False(t, errors.Is(err, service.ErrMessageGone))
	})

	assert.NoError(t, classify(nil))
}

func TestInlineMarkup(t *testing.T) {
	_, ok := inlineMarkup(nil)
	assert.False(t, ok)

	markup, ok := inlineMarkup(service.Keyboard{
		{{Text: "Open", URL: "https://t.me/bot?start=x"}, {Text: "Stats", Data: "stats"}},
	})
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	require.NotNil(t, row[0].URL)
	assert.Equal(t, "https://t.me/bot?start=x", *row[0].URL)
	require.NotNil(t, row[1].CallbackData)
	assert.Equal(t, "stats", *row[1].CallbackData)
}
