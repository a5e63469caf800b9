package database

import "encoding/json"

// Metadata type discriminators as stored in the catalog.
const (
	MetaImage = "image"
	MetaVideo = "video"
	MetaAudio = "audio"
	MetaNone  = "none"
)

// ImageMetadata describes a decoded image.
type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// VideoMetadata describes a probed video stream.
type VideoMetadata struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// AudioMetadata describes a decoded audio track.
type AudioMetadata struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Artist     string `json:"artist,omitempty"`
}

// Metadata is the tagged union of per-kind asset metadata. Exactly one of
// the payload pointers is set, matching Type; the zero value means "none".
// It is serialized as JSON text in the metadata column.
type Metadata struct {
	Type  string         `json:"type,omitempty"`
	Image *ImageMetadata `json:"image,omitempty"`
	Video *VideoMetadata `json:"video,omitempty"`
	Audio *AudioMetadata `json:"audio,omitempty"`
}

// NoMetadata returns the explicit "none" variant.
func NoMetadata() Metadata {
	return Metadata{Type: MetaNone}
}

// ImageMeta wraps an ImageMetadata payload into the union.
func ImageMeta(width, height int, format string) Metadata {
	return Metadata{Type: MetaImage, Image: &ImageMetadata{Width: width, Height: height, Format: format}}
}

// VideoMeta wraps a VideoMetadata payload into the union.
func VideoMeta(width, height int, fps float64) Metadata {
	return Metadata{Type: MetaVideo, Video: &VideoMetadata{Width: width, Height: height, FPS: fps}}
}

// AudioMeta wraps an AudioMetadata payload into the union.
func AudioMeta(sampleRate, bitrate int, artist string) Metadata {
	return Metadata{Type: MetaAudio, Audio: &AudioMetadata{SampleRate: sampleRate, Bitrate: bitrate, Artist: artist}}
}

// IsNone reports whether no metadata payload is present.
func (m Metadata) IsNone() bool {
	switch m.Type {
	case MetaImage:
		return m.Image == nil
	case MetaVideo:
		return m.Video == nil
	case MetaAudio:
		return m.Audio == nil
	default:
		return true
	}
}

// encodeMetadata serializes the union for storage. The none variant is
// stored as "{}" so freshly scanned rows look the same regardless of origin.
func encodeMetadata(m Metadata) string {
	if m.IsNone() {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// decodeMetadata parses a stored metadata payload. A corrupt, empty or
// unknown payload decodes to the none variant; it never fails the row read.
func decodeMetadata(s string) Metadata {
	if s == "" || s == "{}" {
		return NoMetadata()
	}

	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return NoMetadata()
	}
	if m.IsNone() {
		return NoMetadata()
	}
	return m
}
