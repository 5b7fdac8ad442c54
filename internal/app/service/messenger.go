package service

import "context"

// Button is one inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// Messenger is the slice of the chat platform the services depend on.
// Returned ints are the message ids the platform assigned.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	ForwardMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	// DeleteMessages removes every id in messageIDs. Ids that are already
	// gone are not an error.
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error
}
