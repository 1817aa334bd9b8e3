package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/mediaproxy/internal/fetch"
	"github.com/AnyUserName/mediaproxy/internal/pipeline"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <url>",
	Short: "Fetch a source and describe what the proxy sees",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	src, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := fetch.NewClient(fetch.ClientConfig{Proxy: cfg.HTTPProxy, Timeout: cfg.FetchTimeout})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Fetcher: fetch.New(client, cfg.MaxBodyBytes),
		Workers: 1,
		Logger:  log,
	})
	pr, err := p.Probe(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(probeReport(pr))
	}
	printProbe(src, pr)
	return nil
}

type report struct {
	Kind       string `json:"kind"`
	Bytes      int    `json:"bytes"`
	Hash       string `json:"hash"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Frames     int    `json:"frames,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	AvgColor   string `json:"avg_color,omitempty"`
	Vector     bool   `json:"vector,omitempty"`
}

func probeReport(pr *pipeline.Probe) report {
	r := report{
		Kind:       pr.Kind.String(),
		Bytes:      pr.Bytes,
		Hash:       pr.Hash,
		Width:      pr.Width,
		Height:     pr.Height,
		Frames:     pr.Frames,
		DurationMS: pr.Duration.Milliseconds(),
		Vector:     pr.Vector,
	}
	if !pr.Vector {
		r.AvgColor = hexColor(pr.AvgColor)
	}
	return r
}

func hexColor(c [3]uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

func printProbe(src *url.URL, pr *pipeline.Probe) {
	fmt.Println()
	fmt.Printf("  Source:      %s\n", src.Redacted())
	fmt.Printf("  Kind:        %s (%s)\n", pr.Kind, pr.Kind.ContentType())
	fmt.Printf("  Size:        %s\n", formatBytes(int64(pr.Bytes)))
	fmt.Printf("  Hash:        %s\n", pr.Hash)
	if pr.Vector {
		fmt.Printf("  Viewport:    %dx%d\n", pr.Width, pr.Height)
	} else {
		fmt.Printf("  Dimensions:  %dx%d\n", pr.Width, pr.Height)
		fmt.Printf("  Avg color:   %s\n", hexColor(pr.AvgColor))
	}
	if pr.Frames > 1 {
		fmt.Printf("  Frames:      %d\n", pr.Frames)
		fmt.Printf("  Duration:    %s\n", pr.Duration.Round(time.Millisecond))
	}
	fmt.Println()
}
