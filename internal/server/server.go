// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/AnyUserName/mediaproxy/internal/hasher"
	"github.com/AnyUserName/mediaproxy/internal/logging"
	"github.com/AnyUserName/mediaproxy/internal/metrics"
	"github.com/AnyUserName/mediaproxy/internal/pipeline"
	"github.com/AnyUserName/mediaproxy/internal/transform"
)

const (
	cacheForever  = "max-age=31536000, immutable"
	cacheFailure  = "max-age=300"
	contentPolicy = "default-src 'none'; img-src 'self'; media-src 'self'; style-src 'unsafe-inline'"

	shutdownTimeout = 10 * time.Second
)

// Runner transcodes one request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Config holds the server options.
type Config struct {
	Addr string
	// AllowOrigins lists CORS origins; any origin is allowed when empty.
	AllowOrigins []string
	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// Server is the proxy HTTP front end.
type Server struct {
	cfg     Config
	runner  Runner
	log     *logrus.Entry
	handler http.Handler
}

// New builds the server and its routes.
func New(cfg Config, runner Runner) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		log:    logging.Component(cfg.Logger, "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(cfg.Gatherer))
	}
	// The path suffix only names the download.
	mux.HandleFunc("GET /{name...}", s.proxy)

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	})
	s.handler = s.withRequestID(c.Handler(mux))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Hello world")
}

func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	req, err := ParseQuery(r.URL.Query())
	if err != nil {
		http.Error(w, "Invalid query: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		w.Header().Set("Cache-Control", cacheFailure)
		http.Error(w, "Something went wrong: "+err.Error(), http.StatusInternalServerError)
		return
	}

	etag := hasher.ETag(res.Body)
	h := w.Header()
	h.Set("Cache-Control", cacheForever)
	h.Set("ETag", etag)
	if hasher.Match(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Security-Policy", contentPolicy)
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", downloadName(r.PathValue("name"), req.URL)+"."+res.Extension))
	h.Set("Content-Length", fmt.Sprint(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(res.Body)
	}
}

// ParseQuery reads the proxy request from the query string. Preset flags are
// set by presence; when several are present emoji wins over avatar, avatar
// over preview and preview over badge.
func ParseQuery(q url.Values) (pipeline.Request, error) {
	raw := q.Get("url")
	if raw == "" {
		return pipeline.Request{}, errors.New("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return pipeline.Request{}, errors.Wrap(err, "url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return pipeline.Request{}, errors.Errorf("url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return pipeline.Request{}, errors.New("url: missing host")
	}

	req := pipeline.Request{URL: u, Preset: transform.Original, Static: q.Has("static")}
	for _, p := range []transform.Preset{transform.Emoji, transform.Avatar, transform.Preview, transform.Badge} {
		if q.Has(p.String()) {
			req.Preset = p
			break
		}
	}
	return req, nil
}

// downloadName picks the base file name for Content-Disposition.
func downloadName(name string, src *url.URL) string {
	if name == "" && src != nil {
		name = path.Base(src.Path)
	}
	name = path.Base("/" + name)
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '\\' || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "/" || name == "." {
		return "image"
	}
	return name
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// withRequestID tags every response with X-Request-Id and logs it.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		entry := s.log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"bytes":      rec.bytes,
			"duration":   time.Since(start),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request")
		} else {
			entry.Debug("request")
		}
	})
}
