package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AnyUserName/mediaproxy/internal/config"
	"github.com/AnyUserName/mediaproxy/internal/logging"
)

var (
	version    = "0.1.0"
	verbose    bool
	configPath string
	dotEnvPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "mediaproxy",
	Short: "Media transcoding proxy",
	Long: `mediaproxy fetches remote images and re-encodes them for display.

Sources may be PNG, JPEG, GIF, WebP (still or animated), ICO or SVG.
Output is WebP, or PNG for badges, resized by the requested preset
(emoji, avatar, preview, badge). Animations stay animated unless
static output is asked for.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&dotEnvPath, "env-file", ".env", "dotenv file read before the environment (ignored when missing)")
	pf.StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	pf.StringVar(&logFormat, "log-format", "", "log format: json or text (overrides config)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mediaproxy %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// loadConfig resolves the configuration and builds the process logger.
// Flags of the calling command are applied by the caller afterwards.
func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Resolve(config.Sources{File: configPath, DotEnv: dotEnvPath})
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, fmt.Errorf("logging: %w", err)
	}
	return cfg, log, nil
}

// logVerbose prints a message only when --verbose is set.
func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[mediaproxy] "+format+"\n", args...)
	}
}
