package mediatypes

import "strings"

// Kind represents the media classification of a file.
type Kind string

const (
	// KindImage represents an image file.
	KindImage Kind = "image"
	// KindVideo represents a video file.
	KindVideo Kind = "video"
	// KindAudio represents an audio file.
	KindAudio Kind = "audio"
	// KindOther represents an unknown or unsupported file type.
	KindOther Kind = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".gif": true, ".bmp": true, ".svg": true, ".ico": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true,
	".webm": true, ".flv": true, ".wmv": true,
}

// AudioExtensions maps file extensions to whether they are supported audio formats.
var AudioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".ogg": true, ".flac": true,
	".aac": true, ".m4a": true, ".wma": true, ".aiff": true,
}

// KindForExt returns the media Kind for a file extension. The extension may
// be given with or without the leading dot and in any case. Unrecognized
// extensions return KindOther and are skipped everywhere (scan, watch,
// artifact generation).
func KindForExt(ext string) Kind {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	switch {
	case ImageExtensions[ext]:
		return KindImage
	case VideoExtensions[ext]:
		return KindVideo
	case AudioExtensions[ext]:
		return KindAudio
	default:
		return KindOther
	}
}

// IsMedia returns true if the extension classifies to a known media kind.
func IsMedia(ext string) bool {
	return KindForExt(ext) != KindOther
}

// Valid reports whether k is one of the known media kinds (not KindOther).
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo || k == KindAudio
}
