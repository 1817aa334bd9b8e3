// Package transform implements the size presets applied to decoded media.
// Every operation returns a new value and never mutates its input.
package transform

import (
	"math"

	"github.com/disintegration/imaging"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/svg"
)

func failf(op, format string, args ...any) error {
	return proxyerr.Newf(proxyerr.Transform, op, format, args...)
}

func emptySequence(op string) error { return failf(op, "empty frame sequence") }

// Size returns the width and height of m. For Vector it parses the declared
// viewport without rendering.
func Size(m media.Media) (width, height int, err error) {
	switch v := m.(type) {
	case media.Raster:
		if v.Image == nil {
			return 0, 0, failf("size", "nil raster")
		}
		return v.Image.Rect.Dx(), v.Image.Rect.Dy(), nil
	case media.Sequence:
		if len(v.Frames) == 0 {
			return 0, 0, emptySequence("size")
		}
		r := v.Frames[0].Image.Rect
		return r.Dx(), r.Dy(), nil
	case media.Vector:
		w, h, err := svg.Size(v.Markup)
		if err != nil {
			return 0, 0, proxyerr.New(proxyerr.Transform, "size", err)
		}
		return w, h, nil
	default:
		return 0, 0, failf("size", "unknown media %T", m)
	}
}

// Height returns the height of m.
func Height(m media.Media) (int, error) {
	_, h, err := Size(m)
	return h, err
}

// Width returns the width of m.
func Width(m media.Media) (int, error) {
	w, _, err := Size(m)
	return w, err
}

// ResizeExact resamples m to width x height with a triangle filter. Sequence
// frames keep their delays. Vector markup is rendered straight at the target
// size.
func ResizeExact(m media.Media, height, width int) (media.Media, error) {
	if width <= 0 || height <= 0 {
		return nil, failf("resize", "invalid target %dx%d", width, height)
	}
	switch v := m.(type) {
	case media.Raster:
		if v.Image == nil {
			return nil, failf("resize", "nil raster")
		}
		return media.Raster{Image: imaging.Resize(v.Image, width, height, imaging.Linear)}, nil
	case media.Sequence:
		if len(v.Frames) == 0 {
			return nil, emptySequence("resize")
		}
		out := media.Sequence{Frames: make([]media.Frame, len(v.Frames))}
		for i, f := range v.Frames {
			out.Frames[i] = media.Frame{
				Image: imaging.Resize(f.Image, width, height, imaging.Linear),
				Delay: f.Delay,
			}
		}
		return out, nil
	case media.Vector:
		img, err := svg.Rasterize(v.Markup, width, height)
		if err != nil {
			return nil, proxyerr.New(proxyerr.Transform, "rasterize", err)
		}
		return media.Raster{Image: img}, nil
	default:
		return nil, failf("resize", "unknown media %T", m)
	}
}

// ResizeByHeightCap shrinks m to maxHeight keeping the aspect ratio. Media
// that already fits is returned unchanged.
func ResizeByHeightCap(m media.Media, maxHeight int) (media.Media, error) {
	w, h, err := Size(m)
	if err != nil {
		return nil, err
	}
	if h <= maxHeight {
		return m, nil
	}
	return ResizeExact(m, maxHeight, scaledWidth(w, h, maxHeight))
}

func scaledWidth(width, height, targetHeight int) int {
	w := int(math.Round(float64(width) * float64(targetHeight) / float64(height)))
	return max(w, 1)
}

// FirstFrame reduces a Sequence to its first frame. Raster and Vector pass
// through; markup stays unrendered.
func FirstFrame(m media.Media) (media.Media, error) {
	switch v := m.(type) {
	case media.Sequence:
		if len(v.Frames) == 0 {
			return nil, emptySequence("first frame")
		}
		return media.Raster{Image: v.Frames[0].Image}, nil
	case media.Raster, media.Vector:
		return m, nil
	default:
		return nil, failf("first frame", "unknown media %T", m)
	}
}

// Static drops the animation and caps the height at StaticHeight.
func Static(m media.Media) (media.Media, error) {
	m, err := FirstFrame(m)
	if err != nil {
		return nil, err
	}
	return ResizeByHeightCap(m, StaticHeight)
}

// Materialize renders Vector markup at its intrinsic size. Other media is
// returned unchanged.
func Materialize(m media.Media) (media.Media, error) {
	v, ok := m.(media.Vector)
	if !ok {
		return m, nil
	}
	img, err := svg.Rasterize(v.Markup, 0, 0)
	if err != nil {
		return nil, proxyerr.New(proxyerr.Transform, "rasterize", err)
	}
	return media.Raster{Image: img}, nil
}

// Apply runs the static reduction (when requested) and then the preset.
// The result is always pixels: markup untouched by a resize is rendered at
// its intrinsic size.
func Apply(m media.Media, preset Preset, static bool) (media.Media, error) {
	var err error
	if static {
		if m, err = Static(m); err != nil {
			return nil, err
		}
	}

	prof := preset.Profile()
	switch prof.Policy {
	case HeightCap:
		m, err = ResizeByHeightCap(m, prof.Height)
	case Exact:
		m, err = ResizeExact(m, prof.Height, prof.Width)
	}
	if err != nil {
		return nil, err
	}
	return Materialize(m)
}
