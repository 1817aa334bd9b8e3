// Package fetch downloads source images.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
)

const (
	// DefaultTimeout bounds a whole fetch, body included.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "mediaproxy/1.0"
)

// CheckHost rejects URLs whose host is an IP literal. Domain names are not
// resolved.
func CheckHost(u *url.URL) error {
	host := strings.TrimSuffix(u.Hostname(), ".")
	if host == "" {
		return proxyerr.Newf(proxyerr.Network, "fetch", "url has no host")
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return proxyerr.Newf(proxyerr.AddressRejected, "fetch", "refusing to fetch IP address %s", host)
	}
	return nil
}

// ClientConfig configures the shared upstream client.
type ClientConfig struct {
	// Proxy is an optional upstream relay: http://, https:// or socks5://.
	Proxy   string
	Timeout time.Duration
}

// NewClient builds the HTTP client used for every fetch. The client is safe
// for concurrent use and is never modified afterwards.
func NewClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: time.Minute,
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, errors.Wrap(err, "socks5 proxy")
			}
			transport.DialContext = dialContext(dialer)
		default:
			return nil, errors.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	return &http.Client{
		Transport:     transport,
		Timeout:       cfg.Timeout,
		CheckRedirect: checkRedirect,
	}, nil
}

func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// checkRedirect applies the host check to every hop.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return CheckHost(req.URL)
}

// Fetcher performs one GET per source URL and buffers the whole body.
type Fetcher struct {
	Client *http.Client
	// MaxBytes limits the body size; 0 means unlimited.
	MaxBytes  int64
	UserAgent string
}

// New returns a fetcher using client.
func New(client *http.Client, maxBytes int64) *Fetcher {
	return &Fetcher{Client: client, MaxBytes: maxBytes, UserAgent: DefaultUserAgent}
}

// Fetch downloads u. IP literal hosts are rejected before any network call.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if u == nil {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "nil url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "unsupported scheme %q", u.Scheme)
	}
	if err := CheckHost(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, proxyerr.New(proxyerr.Network, "fetch", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// Redirects to IP literals surface here wrapped in *url.Error.
		if proxyerr.KindOf(err) == proxyerr.AddressRejected {
			return nil, err
		}
		return nil, proxyerr.New(proxyerr.Network, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &proxyerr.Error{
			Kind:   proxyerr.Network,
			Op:     "fetch",
			Status: resp.StatusCode,
			Err:    errors.Errorf("upstream responded %s", resp.Status),
		}
	}

	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, proxyerr.New(proxyerr.Network, "fetch", errors.Wrap(err, "read body"))
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, proxyerr.Newf(proxyerr.Network, "fetch", "body exceeds %d bytes", f.MaxBytes)
	}
	return data, nil
}
