package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gnana997/designparity/pkg/pipeline"
	"github.com/gnana997/designparity/pkg/provider"
	"github.com/gnana997/designparity/pkg/util"
)

const defaultCompareTimeout = 2 * time.Minute

var compareValueFlags = map[string]bool{
	"--config":    true,
	"--token":     true,
	"--mode":      true,
	"--threshold": true,
	"--timeout":   true,
	"--format":    true,
}

// runCompare executes a one-shot comparison and prints the result to
// stdout. Exit code 0 means the similarity met the threshold, 1 means it
// did not (or the run failed), 2 means the invocation was unusable.
func runCompare(args []string) {
	urls := positionals(args, compareValueFlags)
	if len(urls) != 2 {
		fmt.Fprintln(os.Stderr, "usage: designparity compare <figma-url> <web-url> [flags]")
		os.Exit(2)
	}

	format := flagValue(args, "format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "text" {
		fmt.Fprintf(os.Stderr, "unknown --format %q: use json or text\n", format)
		os.Exit(2)
	}

	st, err := loadSettings(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	settings := st.Comparison
	if raw := flagValue(args, "threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad --threshold %q\n", raw)
			os.Exit(2)
		}
		settings.Threshold = v
	}

	req := pipeline.Request{
		FigmaURL:   urls[0],
		WebURL:     urls[1],
		Settings:   &settings,
		FigmaToken: flagValue(args, "token"),
		Timeout:    defaultCompareTimeout,
	}
	if raw := flagValue(args, "mode"); raw != "" {
		mode, ok := provider.ParseMode(raw)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown --mode %q: use api, desktop, oauth, or proxy\n", raw)
			os.Exit(2)
		}
		req.Mode = mode
	}
	if raw := flagValue(args, "timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad --timeout %q\n", raw)
			os.Exit(2)
		}
		req.Timeout = d
	}

	logger := util.NewLogger(util.LoggerConfig{
		Level:  util.LogLevel(st.LogLevel),
		Format: util.LogFormat(st.LogFormat),
		Output: os.Stderr,
	})

	d, err := buildPipeline(st, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
		os.Exit(1)
	}
	defer d.close()

	result, err := d.svc.CompareURLs(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "comparison failed: %v\n", err)
		os.Exit(1)
	}

	switch format {
	case "text":
		printResultHuman(result, settings.Threshold)
	default:
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	}

	if result.OverallSimilarity < settings.Threshold {
		os.Exit(1)
	}
}
