package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/mediaproxy/internal/config"
	"github.com/AnyUserName/mediaproxy/internal/fetch"
	"github.com/AnyUserName/mediaproxy/internal/metrics"
	"github.com/AnyUserName/mediaproxy/internal/pipeline"
	"github.com/AnyUserName/mediaproxy/internal/server"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

var (
	serveHost     string
	servePort     int
	serveProxy    string
	serveQuality  float32
	serveOrigins  []string
	serveWorkers  int
	serveMetrics  bool
	serveLossless bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP proxy",
	Long: `Serves GET /?url=<source>[&emoji|&avatar|&preview|&badge][&static].

Configuration comes from defaults, the --config file, the .env file and
the environment (MEDIA_PROXY_* or the plain HOST, PORT, HTTP_PROXY,
QUALITY_FACTOR and ALLOW_ORIGIN names), then from flags given here.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveHost, "host", "", "listen host")
	f.IntVarP(&servePort, "port", "p", 0, "listen port")
	f.StringVar(&serveProxy, "http-proxy", "", "upstream relay for fetches (http, https or socks5)")
	f.Float32VarP(&serveQuality, "quality", "q", 0, "WebP quality 1-100")
	f.StringSliceVar(&serveOrigins, "allow-origin", nil, "allowed CORS origin (repeatable, default any)")
	f.IntVarP(&serveWorkers, "workers", "w", 0, "parallel transcodes (0 = NumCPU)")
	f.BoolVar(&serveMetrics, "metrics", false, "expose /metrics")
	f.BoolVar(&serveLossless, "lossless", false, "encode WebP losslessly")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	client, err := fetch.NewClient(fetch.ClientConfig{Proxy: cfg.HTTPProxy, Timeout: cfg.FetchTimeout})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if m, err = metrics.New(reg); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		gatherer = reg
	}

	p := pipeline.New(pipeline.Config{
		Fetcher:  fetch.New(client, cfg.MaxBodyBytes),
		Workers:  cfg.Workers,
		Quality:  cfg.QualityFactor,
		Lossless: cfg.Lossless,
		Logger:   log,
		Metrics:  m,
	})
	if !webp.Available() {
		log.Warn("built without libwebp: only badge (PNG) requests can succeed")
	}
	log.WithFields(logrus.Fields{
		"addr":     cfg.Addr(),
		"encoders": p.Encoders(),
		"quality":  cfg.QualityFactor,
		"proxy":    cfg.HTTPProxy != "",
		"metrics":  cfg.Metrics,
	}).Info("starting mediaproxy")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Addr:         cfg.Addr(),
		AllowOrigins: cfg.AllowOrigins,
		Gatherer:     gatherer,
		Logger:       log,
	}, p)
	return srv.ListenAndServe(ctx)
}

// applyServeFlags overrides cfg with the flags that were given explicitly.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = serveHost
	}
	if f.Changed("port") {
		cfg.Port = servePort
	}
	if f.Changed("http-proxy") {
		cfg.HTTPProxy = serveProxy
	}
	if f.Changed("quality") {
		cfg.QualityFactor = serveQuality
	}
	if f.Changed("allow-origin") {
		cfg.AllowOrigins = serveOrigins
	}
	if f.Changed("workers") {
		cfg.Workers = serveWorkers
	}
	if f.Changed("metrics") {
		cfg.Metrics = serveMetrics
	}
	if f.Changed("lossless") {
		cfg.Lossless = serveLossless
	}
}
