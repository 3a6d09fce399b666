// Package clip defines the recorded video artifact handed from the recorder to the
// translation pipeline, and the container/codec options used to produce it.
package clip

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMimeType is used when a clip carries no recorded mime type.
const DefaultMimeType = "video/mp4"

// Clip is a finalized recording.
type Clip struct {
	Data     []byte
	MimeType string
	Frames   int
	Duration time.Duration
}

// Empty reports whether the clip carries no bytes.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// ContentType returns the clip mime type, falling back to DefaultMimeType.
func (c Clip) ContentType() string {
	if strings.TrimSpace(c.MimeType) == "" {
		return DefaultMimeType
	}
	return c.MimeType
}

// Codec describes one recording option: the FourCC handed to the video writer,
// the file extension of its container, and the resulting mime type.
type Codec struct {
	FourCC   string
	Ext      string
	MimeType string
}

// String renders the codec in the same form ParseCodecs accepts.
func (c Codec) String() string {
	return c.FourCC + ":" + strings.TrimPrefix(c.Ext, ".")
}

// DefaultCodecs is the preferred recording order: VP9 in WebM, then VP8 in WebM,
// then MPEG-4 part 2 in MP4.
func DefaultCodecs() []Codec {
	return []Codec{
		{FourCC: "VP90", Ext: ".webm", MimeType: "video/webm"},
		{FourCC: "VP80", Ext: ".webm", MimeType: "video/webm"},
		{FourCC: "mp4v", Ext: ".mp4", MimeType: "video/mp4"},
	}
}

// ErrInvalidCodec is returned by ParseCodecs for malformed entries.
var ErrInvalidCodec = errors.New("invalid codec entry")

var containerMimeTypes = map[string]string{
	"webm": "video/webm",
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
}

// ParseCodecs parses a comma separated list of FOURCC:container entries,
// e.g. "VP90:webm,VP80:webm,mp4v:mp4". Order is preserved.
func ParseCodecs(spec string) ([]Codec, error) {
	var codecs []Codec
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fourcc, container, ok := strings.Cut(entry, ":")
		if !ok || len(fourcc) != 4 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCodec, entry)
		}
		container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(container), "."))
		mimeType, known := containerMimeTypes[container]
		if !known {
			return nil, fmt.Errorf("%w: unknown container %q", ErrInvalidCodec, container)
		}
		codecs = append(codecs, Codec{FourCC: fourcc, Ext: "." + container, MimeType: mimeType})
	}
	if len(codecs) == 0 {
		return nil, fmt.Errorf("%w: empty list", ErrInvalidCodec)
	}
	return codecs, nil
}

// Extension returns a file extension for a mime type, ".bin" when unknown.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	for container, mt := range containerMimeTypes {
		if mt == base {
			return "." + container
		}
	}
	return ".bin"
}
