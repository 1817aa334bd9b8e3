package pipeline

import (
	"context"
	"image"
	"net/url"
	"time"

	"github.com/AnyUserName/mediaproxy/internal/decoder"
	"github.com/AnyUserName/mediaproxy/internal/encoder"
	"github.com/AnyUserName/mediaproxy/internal/hasher"
	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/metrics"
	"github.com/AnyUserName/mediaproxy/internal/transform"
)

// job is the CPU-bound part of a request.
type job struct {
	data    []byte
	kind    media.Kind
	preset  transform.Preset
	static  bool
	quality float32
	encoder encoder.Encoder
}

// process handles a single source: decode, transform, encode.
func process(j job, m *metrics.Metrics) (*Result, error) {
	start := time.Now()
	decoded, err := decoder.Decode(j.kind, j.data)
	m.Observe(metrics.StageDecode, time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	out, err := transform.Apply(decoded, j.preset, j.static)
	m.Observe(metrics.StageTransform, time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	body, err := j.encoder.Encode(out, j.quality)
	m.Observe(metrics.StageEncode, time.Since(start))
	if err != nil {
		return nil, err
	}

	result := &Result{
		Body:        body,
		ContentType: j.encoder.ContentType(),
		Extension:   j.encoder.Extension(),
		Source:      j.kind,
		Frames:      frameCount(out),
	}
	result.Width, result.Height, _ = media.Bounds(out)
	if j.encoder.Format() != "webp" {
		// Non-animated formats only keep the first frame.
		result.Frames = min(result.Frames, 1)
	}
	return result, nil
}

func frameCount(m media.Media) int {
	switch v := m.(type) {
	case media.Sequence:
		return len(v.Frames)
	case media.Raster:
		return 1
	default:
		return 0
	}
}

// Probe describes a source without transcoding it.
type Probe struct {
	Kind     media.Kind
	Bytes    int
	Hash     string
	Width    int
	Height   int
	Frames   int
	Duration time.Duration
	AvgColor [3]uint8
	// Vector is set for markup sources; Width and Height are then the
	// declared viewport.
	Vector bool
}

// Probe fetches and decodes u and reports what was found.
func (p *Pipeline) Probe(ctx context.Context, u *url.URL) (*Probe, error) {
	data, err := p.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	kind := media.Classify(u, data)

	return offload(ctx, p.sem, func() (*Probe, error) {
		decoded, err := decoder.Decode(kind, data)
		if err != nil {
			return nil, err
		}

		pr := &Probe{
			Kind:   kind,
			Bytes:  len(data),
			Hash:   hasher.ContentHash(data, 16),
			Frames: frameCount(decoded),
		}
		pr.Width, pr.Height, err = transform.Size(decoded)
		if err != nil {
			return nil, err
		}

		switch v := decoded.(type) {
		case media.Raster:
			pr.AvgColor = averageColor(v.Image)
		case media.Sequence:
			pr.Duration = v.TotalDuration()
			pr.AvgColor = averageColor(v.Frames[0].Image)
		case media.Vector:
			pr.Vector = true
		}
		return pr, nil
	})
}

// averageColor returns the mean straight-alpha RGB of img, ignoring fully
// transparent pixels.
func averageColor(img *image.NRGBA) [3]uint8 {
	var sum [3]uint64
	var count uint64
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x := 0; x < len(row); x += 4 {
			if row[x+3] == 0 {
				continue
			}
			sum[0] += uint64(row[x])
			sum[1] += uint64(row[x+1])
			sum[2] += uint64(row[x+2])
			count++
		}
	}
	if count == 0 {
		return [3]uint8{}
	}
	return [3]uint8{uint8(sum[0] / count), uint8(sum[1] / count), uint8(sum[2] / count)}
}
