package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"

	"github.com/AnyUserName/mediaproxy/internal/fetch"
	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/metrics"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/transform"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

// staticFetcher serves canned bodies by URL.
type staticFetcher map[string][]byte

func (f staticFetcher) Fetch(_ context.Context, u *url.URL) ([]byte, error) {
	data, ok := f[u.String()]
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "404 %s", u)
	}
	return data, nil
}

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ *url.URL) ([]byte, error) {
	<-ctx.Done()
	return nil, proxyerr.New(proxyerr.Network, "fetch", ctx.Err())
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifBytes(t *testing.T, w, h int, delays ...int) []byte {
	t.Helper()
	pal := color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}}
	g := &gif.GIF{Config: image.Config{Width: w, Height: h}}
	for i, d := range delays {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		for p := range frame.Pix {
			frame.Pix[p] = uint8(i % 2)
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, d)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func TestRunBadgeIsPNG(t *testing.T) {
	src := "https://img.example/photo.png"
	p := New(Config{Fetcher: staticFetcher{src: pngBytes(t, 300, 150, color.NRGBA{G: 200, A: 255})}})

	res, err := p.Run(context.Background(), Request{URL: mustURL(t, src), Preset: transform.Badge})
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "png", res.Extension)
	assert.Equal(t, media.PNG, res.Source)
	assert.Equal(t, 96, res.Width)
	assert.Equal(t, 96, res.Height)

	img, err := png.Decode(bytes.NewReader(res.Body))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 96, 96), img.Bounds())
}

func TestRunBadgeOfAnimationKeepsFirstFrame(t *testing.T) {
	src := "https://img.example/anim.gif"
	p := New(Config{Fetcher: staticFetcher{src: gifBytes(t, 20, 20, 10, 10, 10)}})

	res, err := p.Run(context.Background(), Request{URL: mustURL(t, src), Preset: transform.Badge})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Frames)
	img, err := png.Decode(bytes.NewReader(res.Body))
	require.NoError(t, err)
	r, _, b, _ := img.At(48, 48).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Zero(t, b)
}

func TestRunWebP(t *testing.T) {
	if !webp.Available() {
		t.Skip("libwebp not linked")
	}
	fetcher := staticFetcher{
		"https://img.example/a.png":    pngBytes(t, 800, 600, color.NRGBA{R: 90, A: 255}),
		"https://img.example/a.gif":    gifBytes(t, 640, 640, 50, 70, 30),
		"https://img.example/no-ext":   gifBytes(t, 64, 64, 10, 10),
		"https://img.example/icon.svg": []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 32"><rect width="64" height="32" fill="red"/></svg>`),
	}
	p := New(Config{Fetcher: fetcher, Quality: 70})

	tests := []struct {
		src    string
		preset transform.Preset
		static bool
		w, h   int
		frames int
	}{
		{"https://img.example/a.png", transform.Avatar, false, 427, 320, 1},
		{"https://img.example/a.png", transform.Preview, false, 200, 200, 1},
		{"https://img.example/a.gif", transform.Emoji, false, 128, 128, 3},
		{"https://img.example/a.gif", transform.Original, true, 422, 422, 1},
		{"https://img.example/no-ext", transform.Original, false, 64, 64, 2},
		{"https://img.example/icon.svg", transform.Original, false, 64, 32, 1},
		{"https://img.example/icon.svg", transform.Avatar, false, 64, 32, 1},
	}
	for _, tt := range tests {
		t.Run(tt.src+"/"+tt.preset.String(), func(t *testing.T) {
			res, err := p.Run(context.Background(), Request{URL: mustURL(t, tt.src), Preset: tt.preset, Static: tt.static})
			require.NoError(t, err)
			assert.Equal(t, "image/webp", res.ContentType)
			assert.Equal(t, tt.w, res.Width)
			assert.Equal(t, tt.h, res.Height)
			assert.Equal(t, tt.frames, res.Frames)

			animated, err := webp.HasAnimation(res.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.frames > 1, animated)
			if !animated {
				cfg, err := xwebp.DecodeConfig(bytes.NewReader(res.Body))
				require.NoError(t, err)
				assert.Equal(t, tt.w, cfg.Width)
			}
		})
	}
}

func TestRunErrorKinds(t *testing.T) {
	client, err := fetch.NewClient(fetch.ClientConfig{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	fetcher := staticFetcher{
		"https://img.example/broken.png": []byte("\x89PNG\r\n\x1a\nnot really"),
		"https://img.example/blob.bmp":   []byte("BM\x00\x00garbage"),
	}
	p := New(Config{Fetcher: fetcher, Metrics: m})

	_, err = p.Run(context.Background(), Request{URL: mustURL(t, "https://img.example/broken.png"), Preset: transform.Badge})
	assert.Equal(t, proxyerr.Decode, proxyerr.KindOf(err))

	// Unrecognized binaries are treated as markup and fail to render.
	_, err = p.Run(context.Background(), Request{URL: mustURL(t, "https://img.example/blob.bmp"), Preset: transform.Badge})
	assert.Equal(t, proxyerr.Transform, proxyerr.KindOf(err))

	_, err = p.Run(context.Background(), Request{URL: mustURL(t, "https://img.example/missing.png"), Preset: transform.Badge})
	assert.Equal(t, proxyerr.Network, proxyerr.KindOf(err))

	ipGuarded := New(Config{Fetcher: fetch.New(client, 0)})
	_, err = ipGuarded.Run(context.Background(), Request{URL: mustURL(t, "http://127.0.0.1/a.png"), Preset: transform.Badge})
	assert.Equal(t, proxyerr.AddressRejected, proxyerr.KindOf(err))

	series, err := testutil.GatherAndCount(reg, "mediaproxy_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestRunCancelledWhileFetching(t *testing.T) {
	p := New(Config{Fetcher: blockingFetcher{}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx, Request{URL: mustURL(t, "https://img.example/slow.png"), Preset: transform.Badge})
	require.Error(t, err)
	assert.Equal(t, proxyerr.Network, proxyerr.KindOf(err))
}

func TestOffloadWaitsForSlot(t *testing.T) {
	sem := make(chan struct{}, 1)
	sem <- struct{}{} // pool is full

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	_, err := offload(ctx, sem, func() (int, error) {
		ran.Store(true)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestOffloadAbandonedWorkerReleasesSlot(t *testing.T) {
	sem := make(chan struct{}, 1)
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := offload(ctx, sem, func() (int, error) {
		defer close(finished)
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	// The worker keeps its slot until it is done.
	assert.Len(t, sem, 1)
	close(release)
	<-finished
	assert.Eventually(t, func() bool { return len(sem) == 0 }, time.Second, time.Millisecond)
}

func TestOffloadRecoversPanic(t *testing.T) {
	sem := make(chan struct{}, 2)
	_, err := offload(context.Background(), sem, func() (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Eventually(t, func() bool { return len(sem) == 0 }, time.Second, time.Millisecond)
}

func TestOffloadReturnsValue(t *testing.T) {
	sem := make(chan struct{}, 1)
	v, err := offload(context.Background(), sem, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_, err = offload(context.Background(), sem, func() (string, error) { return "", errors.New("nope") })
	assert.EqualError(t, err, "nope")
}

func TestProbe(t *testing.T) {
	src := "https://img.example/anim.gif"
	p := New(Config{Fetcher: staticFetcher{src: gifBytes(t, 8, 6, 10, 25)}})

	pr, err := p.Probe(context.Background(), mustURL(t, src))
	require.NoError(t, err)
	assert.Equal(t, media.GIF, pr.Kind)
	assert.Equal(t, 8, pr.Width)
	assert.Equal(t, 6, pr.Height)
	assert.Equal(t, 2, pr.Frames)
	assert.Equal(t, 350*time.Millisecond, pr.Duration)
	assert.Equal(t, [3]uint8{255, 0, 0}, pr.AvgColor)
	assert.Len(t, pr.Hash, 16)
}
