package entities

import (
	"strings"
	"time"
)

type MediaKind string

const (
	MediaKindImage     MediaKind = "image"
	MediaKindVideo     MediaKind = "video"
	MediaKindAudio     MediaKind = "audio"
	MediaKindAnimation MediaKind = "animation"
	MediaKindDocument  MediaKind = "document"

	// MediaKindFile is a generic file, its concrete kind is decided by Classify
	MediaKindFile MediaKind = "file"
)

// mediaKinds is checked top to bottom, extensions do not overlap
var mediaKinds = []struct {
	ext  string
	kind MediaKind
}{
	{".mp3", MediaKindAudio},
	{".mp4", MediaKindVideo},
	{".webp", MediaKindVideo},
	{".jpg", MediaKindImage},
	{".jpeg", MediaKindImage},
	{".png", MediaKindImage},
	{".gif", MediaKindAnimation},
}

// Classify returns media kind of a file judging by its extension. Unknown
// extensions are sent as documents.
func Classify(path string) MediaKind {
	lower := strings.ToLower(path)
	for _, mk := range mediaKinds {
		if strings.HasSuffix(lower, mk.ext) {
			return mk.kind
		}
	}
	return MediaKindDocument
}

// Timeouts is a time budget for a single send of each media kind
type Timeouts map[MediaKind]time.Duration

func DefaultTimeouts() Timeouts {
	return Timeouts{
		MediaKindImage:     60 * time.Second,
		MediaKindVideo:     180 * time.Second,
		MediaKindAudio:     60 * time.Second,
		MediaKindDocument:  120 * time.Second,
		MediaKindAnimation: 120 * time.Second,
		MediaKindFile:      360 * time.Second,
	}
}

// For returns the budget for kind, falling back to the default table
func (t Timeouts) For(kind MediaKind) time.Duration {
	if d, ok := t[kind]; ok {
		return d
	}
	return DefaultTimeouts()[kind]
}
