package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sifan077/PowerStash/internal/app/model"
)

const shortIDLength = 10

// describeMedia maps the payload of msg to the uniform descriptor. ok is
// false for messages that carry nothing the bot can store.
func describeMedia(msg *tgbotapi.Message) (model.MediaDescriptor, bool) {
	switch {
	// Animations also carry a Document; they must be matched first.
	case msg.Animation != nil:
		return model.MediaDescriptor{Kind: model.MediaAnimation, Name: "GIF_" + shortID(msg.Animation.FileID), Size: int64(msg.Animation.FileSize)}, true
	case msg.Document != nil:
		d := msg.Document
		return model.MediaDescriptor{Kind: model.MediaDocument, Name: orDefault(d.FileName, "Unknown"), Size: int64(d.FileSize)}, true
	case len(msg.Photo) > 0:
		// Sizes come smallest first; the last one is what gets stored.
		p := msg.Photo[len(msg.Photo)-1]
		return model.MediaDescriptor{Kind: model.MediaPhoto, Name: "Photo_" + shortID(p.FileID), Size: int64(p.FileSize)}, true
	case msg.Video != nil:
		v := msg.Video
		return model.MediaDescriptor{Kind: model.MediaVideo, Name: orDefault(v.FileName, "Video_"+shortID(v.FileID)), Size: int64(v.FileSize)}, true
	case msg.Audio != nil:
		a := msg.Audio
		return model.MediaDescriptor{Kind: model.MediaAudio, Name: orDefault(a.FileName, "Audio_"+shortID(a.FileID)), Size: int64(a.FileSize)}, true
	case msg.Voice != nil:
		return model.MediaDescriptor{Kind: model.MediaVoice, Name: "Voice_" + shortID(msg.Voice.FileID), Size: int64(msg.Voice.FileSize)}, true
	case msg.VideoNote != nil:
		return model.MediaDescriptor{Kind: model.MediaVideoNote, Name: "VideoNote_" + shortID(msg.VideoNote.FileID), Size: int64(msg.VideoNote.FileSize)}, true
	case msg.Sticker != nil:
		return model.MediaDescriptor{Kind: model.MediaSticker, Name: "Sticker_" + shortID(msg.Sticker.FileID), Size: int64(msg.Sticker.FileSize)}, true
	}
	return model.MediaDescriptor{}, false
}

// hasMedia reports whether msg carries any attachment, supported or not.
func hasMedia(msg *tgbotapi.Message) bool {
	if _, ok := describeMedia(msg); ok {
		return true
	}
	return msg.Contact != nil || msg.Location != nil || msg.Venue != nil || msg.Poll != nil || msg.Dice != nil
}

func shortID(fileID string) string {
	if len(fileID) > shortIDLength {
		return fileID[:shortIDLength]
	}
	return fileID
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
