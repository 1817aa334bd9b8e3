package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/mediaproxy/internal/fetch"
	"github.com/AnyUserName/mediaproxy/internal/pipeline"
	"github.com/AnyUserName/mediaproxy/internal/transform"
)

var (
	convertOut      string
	convertPreset   string
	convertEmoji    bool
	convertAvatar   bool
	convertPreview  bool
	convertBadge    bool
	convertStatic   bool
	convertQuality  float32
	convertLossless bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <url>",
	Short: "Transcode one source and write the result to a file",
	Long: `Fetches the source, applies the preset and writes the encoded output,
exactly as the proxy would serve it.

When --out is empty the file is named after the source with the output
extension, in the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertOut, "out", "o", "", "output file")
	f.StringVarP(&convertPreset, "preset", "p", "", "preset name: original, emoji, avatar, preview, badge")
	f.BoolVar(&convertEmoji, "emoji", false, "emoji preset")
	f.BoolVar(&convertAvatar, "avatar", false, "avatar preset")
	f.BoolVar(&convertPreview, "preview", false, "preview preset")
	f.BoolVar(&convertBadge, "badge", false, "badge preset")
	f.BoolVar(&convertStatic, "static", false, "keep only the first frame")
	f.Float32VarP(&convertQuality, "quality", "q", 0, "quality 1-100 (0 = config default)")
	f.BoolVar(&convertLossless, "lossless", false, "encode WebP losslessly")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	start := time.Now()
	src, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	preset, err := convertPresetFlag()
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("lossless") {
		cfg.Lossless = convertLossless
	}
	client, err := fetch.NewClient(fetch.ClientConfig{Proxy: cfg.HTTPProxy, Timeout: cfg.FetchTimeout})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}

	logVerbose("source:  %s", src.Redacted())
	logVerbose("preset:  %s (static=%v)", preset, convertStatic)

	p := pipeline.New(pipeline.Config{
		Fetcher:  fetch.New(client, cfg.MaxBodyBytes),
		Workers:  1,
		Quality:  cfg.QualityFactor,
		Lossless: cfg.Lossless,
		Logger:   log,
	})
	res, err := p.Run(cmd.Context(), pipeline.Request{
		URL:     src,
		Preset:  preset,
		Static:  convertStatic,
		Quality: convertQuality,
	})
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	out := convertOut
	if out == "" {
		out = outputName(src, res.Extension)
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.WriteFile(absOut, res.Body, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logVerbose("output:  %s", absOut)

	printConvertReport(res, preset, absOut, time.Since(start))
	return nil
}

// convertPresetFlag resolves --preset and the preset switches, which follow
// the same priority as the query flags.
func convertPresetFlag() (transform.Preset, error) {
	switch {
	case convertEmoji:
		return transform.Emoji, nil
	case convertAvatar:
		return transform.Avatar, nil
	case convertPreview:
		return transform.Preview, nil
	case convertBadge:
		return transform.Badge, nil
	case convertPreset != "":
		p, ok := transform.ParsePreset(convertPreset)
		if !ok {
			return p, fmt.Errorf("unknown preset %q", convertPreset)
		}
		return p, nil
	default:
		return transform.Original, nil
	}
}

func outputName(src *url.URL, ext string) string {
	base := path.Base(src.Path)
	base = base[:len(base)-len(path.Ext(base))]
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return base + "." + ext
}

func printConvertReport(res *pipeline.Result, preset transform.Preset, out string, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("  Source:   %s\n", res.Source)
	fmt.Printf("  Preset:   %s\n", preset)
	fmt.Printf("  Output:   %s (%s)\n", out, res.ContentType)
	fmt.Printf("  Size:     %dx%d\n", res.Width, res.Height)
	if res.Frames > 1 {
		fmt.Printf("  Frames:   %d\n", res.Frames)
	}
	fmt.Printf("  Bytes:    %s\n", formatBytes(int64(len(res.Body))))
	fmt.Printf("  Time:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Println()
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
