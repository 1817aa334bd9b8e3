// Package pipeline runs one proxy request end to end:
// fetch, classify, decode, transform and encode.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/AnyUserName/mediaproxy/internal/encoder"
	"github.com/AnyUserName/mediaproxy/internal/logging"
	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/metrics"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/transform"
)

// DefaultQuality is used when neither the request nor the config sets one.
const DefaultQuality = 80

// Fetcher downloads the source bytes of a request.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// Config holds the shared, read-only parameters of a pipeline.
type Config struct {
	Fetcher Fetcher
	// Workers bounds concurrent decode/transform/encode work. Defaults to
	// the number of CPUs.
	Workers  int
	Quality  float32
	Lossless bool
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
}

// Request is one parsed proxy request.
type Request struct {
	URL    *url.URL
	Preset transform.Preset
	Static bool
	// Quality overrides Config.Quality when positive.
	Quality float32
}

// Result is the encoded response body.
type Result struct {
	Body        []byte
	ContentType string
	Extension   string
	Source      media.Kind
	Width       int
	Height      int
	Frames      int
}

// Pipeline orchestrates requests. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	registry *encoder.Registry
	sem      chan struct{}
	log      *logrus.Entry
}

// New creates a configured pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Pipeline{
		cfg:      cfg,
		registry: encoder.NewRegistry(cfg.Lossless),
		sem:      make(chan struct{}, cfg.Workers),
		log:      logging.Component(cfg.Logger, "pipeline"),
	}
}

// Encoders describes the available output encoders.
func (p *Pipeline) Encoders() string { return p.registry.String() }

// Run executes the request. Fetching happens on the calling goroutine; the
// CPU-bound stages run on the worker pool. When ctx is cancelled Run returns
// at once while the worker finishes and releases its native resources.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := p.log.WithFields(logrus.Fields{
		"url":    urlString(req.URL),
		"preset": req.Preset.String(),
		"static": req.Static,
	})

	res, err := p.run(ctx, req, log)
	elapsed := time.Since(start)
	p.cfg.Metrics.Observe(metrics.StageTotal, elapsed)
	if err != nil {
		kind := proxyerr.KindOf(err)
		p.cfg.Metrics.Request(req.Preset.String(), "error")
		p.cfg.Metrics.Error(kind.String())
		log.WithFields(logrus.Fields{
			"kind":     kind.String(),
			"duration": elapsed,
		}).WithError(err).Warn("request failed")
		return nil, err
	}

	p.cfg.Metrics.Request(req.Preset.String(), "ok")
	log.WithFields(logrus.Fields{
		"source":   res.Source.String(),
		"bytes":    len(res.Body),
		"size":     fmt.Sprintf("%dx%d", res.Width, res.Height),
		"frames":   res.Frames,
		"duration": elapsed,
	}).Info("request served")
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, log *logrus.Entry) (*Result, error) {
	if req.URL == nil {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "missing url")
	}
	enc, err := p.registry.For(req.Preset)
	if err != nil {
		return nil, proxyerr.New(proxyerr.Codec, "encoder", err)
	}

	data, err := p.fetch(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	kind := media.Classify(req.URL, data)
	log.WithFields(logrus.Fields{"kind": kind.String(), "fetched": len(data)}).Debug("fetched source")

	quality := p.cfg.Quality
	if req.Quality > 0 {
		quality = min(req.Quality, 100)
	}
	j := job{data: data, kind: kind, preset: req.Preset, static: req.Static, quality: quality, encoder: enc}
	return offload(ctx, p.sem, func() (*Result, error) {
		return process(j, p.cfg.Metrics)
	})
}

func (p *Pipeline) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if p.cfg.Fetcher == nil {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "no fetcher configured")
	}
	start := time.Now()
	data, err := p.cfg.Fetcher.Fetch(ctx, u)
	p.cfg.Metrics.Observe(metrics.StageFetch, time.Since(start))
	if err != nil {
		return nil, err
	}
	p.cfg.Metrics.Fetched(len(data))
	return data, nil
}

type outcome[T any] struct {
	val T
	err error
}

// offload runs fn on the worker pool and waits for it or for ctx.
func offload[T any](ctx context.Context, sem chan struct{}, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case sem <- struct{}{}: // acquire
	case <-ctx.Done():
		return zero, errors.Wrap(ctx.Err(), "waiting for worker")
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() { <-sem }() // release
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: proxyerr.Newf(proxyerr.Unknown, "worker", "panic: %v", r)}
			}
		}()
		val, err := fn()
		done <- outcome[T]{val: val, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		return zero, errors.Wrap(ctx.Err(), "request abandoned")
	}
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
