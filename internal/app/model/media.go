package model

import "strconv"

// MediaKind enumerates the message payloads the bot can store.
type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaDocument
	MediaPhoto
	MediaVideo
	MediaAudio
	MediaVoice
	MediaVideoNote
	MediaSticker
	MediaAnimation
)

var mediaKindNames = map[MediaKind]string{
	MediaDocument:  "Document",
	MediaPhoto:     "Photo",
	MediaVideo:     "Video",
	MediaAudio:     "Audio",
	MediaVoice:     "Voice",
	MediaVideoNote: "Video Note",
	MediaSticker:   "Sticker",
	MediaAnimation: "Animation",
}

func (k MediaKind) String() string {
	if name, ok := mediaKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// MediaDescriptor is the uniform (name, type, size) view of any supported
// media payload.
type MediaDescriptor struct {
	Kind MediaKind
	Name string
	Size int64
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
