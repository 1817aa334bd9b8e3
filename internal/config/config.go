// Package config resolves the proxy configuration from defaults, a YAML
// file, a .env file and the environment. Command-line flags are applied on
// top by the caller.
package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the proxy reads. A few
// unprefixed names are also honored for compatibility.
const EnvPrefix = "MEDIA_PROXY_"

// Config is the process configuration. It is read-only once the server
// starts.
type Config struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	HTTPProxy     string        `yaml:"http_proxy"`
	QualityFactor float32       `yaml:"quality_factor"`
	AllowOrigins  []string      `yaml:"allow_origins"`
	Workers       int           `yaml:"workers"` // 0 means one per CPU
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	Lossless      bool          `yaml:"lossless"`
	Metrics       bool          `yaml:"metrics"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          3000,
		QualityFactor: 80,
		FetchTimeout:  30 * time.Second,
		MaxBodyBytes:  50 << 20,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// Sources names where configuration is read from.
type Sources struct {
	// File is an optional YAML file. ${VAR} references are expanded.
	File string
	// DotEnv is an optional .env file; a missing file is ignored. Values
	// already present in the environment win.
	DotEnv string
	// Lookup reads the environment; os.LookupEnv when nil.
	Lookup func(key string) (string, bool)
}

// Resolve builds the configuration from defaults, src.File, src.DotEnv and
// the environment, in increasing precedence. It does not validate.
func Resolve(src Sources) (Config, error) {
	cfg := Default()
	if src.File != "" {
		if err := cfg.loadFile(src.File); err != nil {
			return cfg, err
		}
	}

	lookup := src.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if src.DotEnv != "" {
		dotenv, err := godotenv.Read(src.DotEnv)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, errors.Wrapf(err, "read %s", src.DotEnv)
		default:
			lookup = layered(lookup, dotenv)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func layered(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

type envVar struct {
	// names in lookup order; the first one set wins.
	names []string
	set   func(c *Config, value string) error
}

var envVars = []envVar{
	{[]string{EnvPrefix + "HOST", "HOST"}, func(c *Config, v string) error {
		c.Host = v
		return nil
	}},
	{[]string{EnvPrefix + "PORT", "PORT"}, func(c *Config, v string) (err error) {
		c.Port, err = strconv.Atoi(v)
		return err
	}},
	{[]string{EnvPrefix + "HTTP_PROXY", "HTTP_PROXY"}, func(c *Config, v string) error {
		c.HTTPProxy = v
		return nil
	}},
	{[]string{EnvPrefix + "QUALITY_FACTOR", "QUALITY_FACTOR"}, func(c *Config, v string) error {
		q, err := strconv.ParseFloat(v, 32)
		c.QualityFactor = float32(q)
		return err
	}},
	{[]string{EnvPrefix + "ALLOW_ORIGIN", "ALLOW_ORIGIN"}, func(c *Config, v string) error {
		c.AllowOrigins = SplitList(v)
		return nil
	}},
	{[]string{EnvPrefix + "WORKERS"}, func(c *Config, v string) (err error) {
		c.Workers, err = strconv.Atoi(v)
		return err
	}},
	{[]string{EnvPrefix + "FETCH_TIMEOUT"}, func(c *Config, v string) (err error) {
		c.FetchTimeout, err = time.ParseDuration(v)
		return err
	}},
	{[]string{EnvPrefix + "MAX_BODY_BYTES"}, func(c *Config, v string) (err error) {
		c.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	}},
	{[]string{EnvPrefix + "LOSSLESS"}, func(c *Config, v string) (err error) {
		c.Lossless, err = strconv.ParseBool(v)
		return err
	}},
	{[]string{EnvPrefix + "METRICS"}, func(c *Config, v string) (err error) {
		c.Metrics, err = strconv.ParseBool(v)
		return err
	}},
	{[]string{EnvPrefix + "LOG_LEVEL"}, func(c *Config, v string) error {
		c.LogLevel = v
		return nil
	}},
	{[]string{EnvPrefix + "LOG_FORMAT"}, func(c *Config, v string) error {
		c.LogFormat = v
		return nil
	}},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		for _, name := range ev.names {
			v, ok := lookup(name)
			if !ok {
				continue
			}
			if err := ev.set(c, strings.TrimSpace(v)); err != nil {
				return errors.Wrapf(err, "env %s", name)
			}
			break
		}
	}
	return nil
}

// SplitList splits a comma separated list, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	// The pipeline treats a zero quality as unset.
	if c.QualityFactor <= 0 || c.QualityFactor > 100 {
		return errors.Errorf("quality factor %v out of range 1-100", c.QualityFactor)
	}
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative")
	}
	if c.FetchTimeout < 0 {
		return errors.Errorf("fetch timeout must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return errors.Errorf("max body bytes must not be negative")
	}
	if c.HTTPProxy != "" {
		u, err := url.Parse(c.HTTPProxy)
		if err != nil {
			return errors.Wrap(err, "http proxy")
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return errors.Errorf("http proxy: unsupported scheme %q", u.Scheme)
		}
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
