package service

import "github.com/sifan077/PowerStash/internal/app/link"

// Links renders share links. BotUsername is filled in once the bot knows
// its own handle.
type Links struct {
	Host        string
	BotUsername string
}

// For returns the token and the deep link for a record.
func (l Links) For(kind link.Kind, id uint64) (token, url string) {
	token = link.Encode(kind, id)
	return token, link.DeepLink(l.Host, l.BotUsername, token)
}
