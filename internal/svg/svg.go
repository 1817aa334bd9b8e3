// Package svg parses and rasterizes SVG markup.
package svg

import (
	"bytes"
	"encoding/xml"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// MaxDimension bounds the raster produced from markup.
const MaxDimension = 8192

func parse(markup []byte) (*oksvg.SvgIcon, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(markup), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, errors.Wrap(err, "parse svg")
	}
	return icon, nil
}

// Size returns the declared viewport size of markup, rounded up to whole
// pixels. Nothing is rendered.
func Size(markup []byte) (width, height int, err error) {
	icon, err := parse(markup)
	if err != nil {
		return 0, 0, err
	}
	return viewport(markup, icon)
}

// viewport is the intrinsic size: the root width and height when they are
// absolute lengths, else the viewBox. A single absolute dimension keeps the
// viewBox aspect ratio.
func viewport(markup []byte, icon *oksvg.SvgIcon) (int, int, error) {
	vw, vh := icon.ViewBox.W, icon.ViewBox.H
	dw, dh := declaredSize(markup)
	switch {
	case dw > 0 && dh > 0:
		vw, vh = dw, dh
	case dw > 0 && vw > 0:
		vw, vh = dw, dw*vh/vw
	case dh > 0 && vh > 0:
		vw, vh = dh*vw/vh, dh
	}

	// Unit conversions leave float noise; 64.0000001 stays 64.
	w := int(math.Ceil(vw - 1e-6))
	h := int(math.Ceil(vh - 1e-6))
	if w <= 0 || h <= 0 {
		return 0, 0, errors.Errorf("svg has no usable viewport (%vx%v)", vw, vh)
	}
	if w > MaxDimension || h > MaxDimension {
		return 0, 0, errors.Errorf("svg viewport %dx%d exceeds %d", w, h, MaxDimension)
	}
	return w, h, nil
}

// Rasterize renders markup scaled to exactly width x height.
// A zero width or height renders at the intrinsic size.
func Rasterize(markup []byte, width, height int) (*image.NRGBA, error) {
	icon, err := parse(markup)
	if err != nil {
		return nil, err
	}
	natW, natH, err := viewport(markup, icon)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		width, height = natW, natH
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, errors.Errorf("raster %dx%d exceeds %d", width, height, MaxDimension)
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1)

	// rasterx paints premultiplied RGBA; the pipeline works on straight alpha.
	return imaging.Clone(dst), nil
}

// declaredSize reads the width and height attributes of the root element in
// pixels. Missing or relative values are 0.
func declaredSize(markup []byte) (width, height float64) {
	dec := xml.NewDecoder(bytes.NewReader(markup))
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0
		}
		root, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if root.Name.Local != "svg" {
			return 0, 0
		}
		for _, attr := range root.Attr {
			switch attr.Name.Local {
			case "width":
				width = pixels(attr.Value)
			case "height":
				height = pixels(attr.Value)
			}
		}
		return width, height
	}
}

// CSS absolute units at 96 dpi.
var units = map[string]float64{
	"":   1,
	"px": 1,
	"pt": 96.0 / 72,
	"pc": 16,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
}

func pixels(v string) float64 {
	v = strings.TrimSpace(v)
	num := strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz%")
	scale, ok := units[v[len(num):]]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return 0
	}
	return f * scale
}
