// Package encoder turns transformed media into response bytes.
package encoder

import (
	"github.com/AnyUserName/mediaproxy/internal/media"
)

// Encoder encodes media to a specific format.
type Encoder interface {
	// Format returns the output format name ("webp" or "png").
	Format() string

	// Extension returns the file extension without dot.
	Extension() string

	// ContentType returns the MIME type of the output.
	ContentType() string

	// Available returns true if the encoder is ready to use.
	// The webp encoder needs libwebp linked in.
	Available() bool

	// Encode converts m to bytes at the given quality (0-100). Vector media
	// must be rendered first.
	Encode(m media.Media, quality float32) ([]byte, error)
}
