// Package hasher derives entity tags for response bodies.
package hasher

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ContentHash computes the xxHash64 of data as 16 hex chars, truncated to
// hexLen when 0 < hexLen < 16.
func ContentHash(data []byte, hexLen int) string {
	full := fmt.Sprintf("%016x", xxhash.Sum64(data))
	if hexLen > 0 && hexLen < len(full) {
		return full[:hexLen]
	}
	return full
}

// ETag returns a strong entity tag for body.
func ETag(body []byte) string {
	return `"` + ContentHash(body, 0) + `"`
}

// Match reports whether an If-None-Match header value matches etag, using
// the weak comparison required for GET.
func Match(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
