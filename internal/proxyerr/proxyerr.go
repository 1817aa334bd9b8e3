// Package proxyerr defines the error kinds surfaced by the transcoding
// pipeline. Every stage reports failures as *Error so the HTTP layer can map
// them without inspecting messages.
package proxyerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	Unknown Kind = iota
	AddressRejected
	Network
	UnsupportedFormat
	Decode
	Transform
	Codec
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	AddressRejected:   "address_rejected",
	Network:           "network",
	UnsupportedFormat: "unsupported_format",
	Decode:            "decode",
	Transform:         "transform",
	Codec:             "codec",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a pipeline failure of a known kind.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "fetch" or "WebPAnimEncoderAdd".
	Op string
	// Status is the native status code, when one exists.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This makes
// errors.Is(err, proxyerr.New(proxyerr.Codec, "", nil)) a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates an error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an error of the given kind with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Native creates a Codec error carrying the status returned by a native call.
func Native(op string, status int) *Error {
	return &Error{Kind: Codec, Op: op, Status: status}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// StatusOf returns the native status of the first *Error in err's chain.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
