//go:build !cgo

package webp

// Without cgo there is no libwebp; every entry point returns ErrUnavailable.
func defaultNative() native { return nil }
