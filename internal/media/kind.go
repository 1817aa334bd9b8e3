package media

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// Kind is the source container format.
type Kind int

const (
	Unknown Kind = iota
	PNG
	JPEG
	GIF
	SVG
	WebP
	ICO
)

var kindNames = [...]string{
	Unknown: "unknown",
	PNG:     "png",
	JPEG:    "jpeg",
	GIF:     "gif",
	SVG:     "svg",
	WebP:    "webp",
	ICO:     "ico",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ContentType returns the MIME type of the format.
func (k Kind) ContentType() string {
	switch k {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case GIF:
		return "image/gif"
	case SVG:
		return "image/svg+xml"
	case WebP:
		return "image/webp"
	case ICO:
		return "image/x-icon"
	default:
		return "application/octet-stream"
	}
}

// extensionKinds lists recognized URL path extensions.
var extensionKinds = map[string]Kind{
	"png":   PNG,
	"jpg":   JPEG,
	"jpeg":  JPEG,
	"jfif":  JPEG,
	"pjpeg": JPEG,
	"pjp":   JPEG,
	"gif":   GIF,
	"svg":   SVG,
	"webp":  WebP,
}

// ExtensionKind maps the extension of the last path segment of u.
func ExtensionKind(u *url.URL) Kind {
	if u == nil {
		return Unknown
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if k, ok := extensionKinds[strings.ToLower(ext)]; ok {
		return k
	}
	return Unknown
}

var (
	pngMagic   = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegMagic  = []byte{0xff, 0xd8, 0xff}
	gif87Magic = []byte("GIF87a")
	gif89Magic = []byte("GIF89a")
	riffMagic  = []byte("RIFF")
	webpFormat = []byte("WEBP")
	icoMagic   = []byte{0x00, 0x00, 0x01, 0x00}
)

// Sniff classifies data by its leading signature. Anything that matches no
// known binary signature is assumed to be SVG text.
func Sniff(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return PNG
	case bytes.HasPrefix(data, jpegMagic):
		return JPEG
	case bytes.HasPrefix(data, gif87Magic), bytes.HasPrefix(data, gif89Magic):
		return GIF
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpFormat):
		return WebP
	case bytes.HasPrefix(data, icoMagic):
		return ICO
	default:
		return SVG
	}
}

// Classify uses the URL extension and falls back to sniffing data.
func Classify(u *url.URL, data []byte) Kind {
	if k := ExtensionKind(u); k != Unknown {
		return k
	}
	return Sniff(data)
}
