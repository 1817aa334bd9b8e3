// Package media holds the decoded representation of a proxied image and the
// classifier that decides how source bytes are decoded.
package media

import (
	"image"
	"time"
)

// Media is a decoded source. It is one of Raster, Sequence or Vector; the
// set is closed and consumers switch over all three.
type Media interface {
	isMedia()
}

// Raster is a single straight-alpha RGBA8 image with its origin at (0, 0).
type Raster struct {
	Image *image.NRGBA
}

// Sequence is an animation. It always holds at least one frame.
type Sequence struct {
	Frames []Frame
}

// Frame is one image of a Sequence and how long it is displayed.
type Frame struct {
	Image *image.NRGBA
	Delay Delay
}

// Vector is unrasterized SVG markup.
type Vector struct {
	Markup []byte
}

func (Raster) isMedia()   {}
func (Sequence) isMedia() {}
func (Vector) isMedia()   {}

// Delay is a frame duration in milliseconds kept as Num/Den so sources with
// sub-millisecond timing are not rounded until encoding.
type Delay struct {
	Num uint32
	Den uint32
}

// DelayMS returns a Delay of whole milliseconds.
func DelayMS(ms int) Delay {
	if ms < 0 {
		ms = 0
	}
	return Delay{Num: uint32(ms), Den: 1}
}

// Milliseconds truncates the delay to whole milliseconds.
func (d Delay) Milliseconds() int {
	den := d.Den
	if den == 0 {
		den = 1
	}
	return int(d.Num / den)
}

// Duration converts the delay to a time.Duration without truncation.
func (d Delay) Duration() time.Duration {
	den := d.Den
	if den == 0 {
		den = 1
	}
	return time.Duration(d.Num) * time.Millisecond / time.Duration(den)
}

// Bounds returns the width and height of the first image in m. Vector has no
// intrinsic pixel size here; use the svg package to query it.
func Bounds(m Media) (width, height int, ok bool) {
	switch v := m.(type) {
	case Raster:
		if v.Image == nil {
			return 0, 0, false
		}
		return v.Image.Rect.Dx(), v.Image.Rect.Dy(), true
	case Sequence:
		if len(v.Frames) == 0 || v.Frames[0].Image == nil {
			return 0, 0, false
		}
		r := v.Frames[0].Image.Rect
		return r.Dx(), r.Dy(), true
	default:
		return 0, 0, false
	}
}

// TotalDuration sums the delays of a sequence.
func (s Sequence) TotalDuration() time.Duration {
	var total time.Duration
	for _, f := range s.Frames {
		total += f.Delay.Duration()
	}
	return total
}
