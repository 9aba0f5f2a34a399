package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gnana997/designparity/pkg/schema"
)

const (
	maxWidth = 80
	maxCell  = 28
)

// printResultHuman prints a human-readable comparison report to stdout.
func printResultHuman(result *schema.ComparisonResult, threshold float64) {
	verdict := "PASS"
	if result.OverallSimilarity < threshold {
		verdict = "FAIL"
	}
	fmt.Printf("Similarity  %.1f%%  (threshold %.1f%%)  %s\n",
		result.OverallSimilarity*100, threshold*100, verdict)

	m := result.Metadata
	fmt.Println()
	fmt.Printf("Elements  figma %d, web %d, matched %d\n",
		m.FigmaElements, m.WebElements, m.MatchedPairs)
	if !m.ComparedAt.IsZero() {
		fmt.Printf("Compared  %s\n", m.ComparedAt.Format(time.RFC3339))
	}
	if m.FigmaError != "" {
		fmt.Println()
		printWrapped("Figma side degraded: "+m.FigmaError, 0, maxWidth)
	}
	if m.WebError != "" {
		if m.FigmaError == "" {
			fmt.Println()
		}
		printWrapped("Web side degraded: "+m.WebError, 0, maxWidth)
	}

	// Property deviations get the table; presence deviations read better as
	// one line each.
	var propDevs, presence []schema.Deviation
	for _, d := range result.Deviations {
		switch d.Type {
		case schema.DeviationMissing, schema.DeviationExtra:
			presence = append(presence, d)
		default:
			propDevs = append(propDevs, d)
		}
	}

	fmt.Println()
	printDeviationTable(propDevs)

	fmt.Println()
	if len(presence) == 0 {
		fmt.Println("Unmatched elements  (none)")
	} else {
		fmt.Println("Unmatched elements")
		for _, d := range presence {
			sev := fmt.Sprintf("[%s]", d.Severity)
			fmt.Printf("  %-10s %s\n", sev, d.Message)
		}
	}
}

// printDeviationTable renders matched-pair deviations with dynamic column
// widths.
func printDeviationTable(devs []schema.Deviation) {
	if len(devs) == 0 {
		fmt.Println("Deviations  (none)")
		return
	}
	fmt.Println("Deviations")

	typeW := len("TYPE")
	propW := len("PROPERTY")
	figmaW := len("FIGMA")
	webW := len("WEB")
	for _, d := range devs {
		if len(d.Type) > typeW {
			typeW = len(d.Type)
		}
		if len(d.Property) > propW {
			propW = len(d.Property)
		}
		if w := len(clip(d.FigmaValue, maxCell)); w > figmaW {
			figmaW = w
		}
		if w := len(clip(d.WebValue, maxCell)); w > webW {
			webW = w
		}
	}

	sepLen := typeW + propW + figmaW + webW + len("SEVERITY") + 8
	fmt.Printf("  %-*s  %-*s  %-*s  %-*s  %s\n",
		typeW, "TYPE", propW, "PROPERTY", figmaW, "FIGMA", webW, "WEB", "SEVERITY")
	fmt.Printf("  %s\n", strings.Repeat("─", sepLen))

	for _, d := range devs {
		fmt.Printf("  %-*s  %-*s  %-*s  %-*s  %s\n",
			typeW, d.Type, propW, d.Property,
			figmaW, clip(d.FigmaValue, maxCell), webW, clip(d.WebValue, maxCell),
			d.Severity)
		if d.Message != "" {
			fmt.Printf("  %s  %s\n", strings.Repeat(" ", typeW), d.Message)
		}
	}
}

// clip shortens cell values so text deviations do not blow up the table.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// printWrapped prints text word-wrapped at maxWidth with the given left indent.
func printWrapped(text string, indent, width int) {
	words := strings.Fields(text)
	prefix := strings.Repeat(" ", indent)
	line := prefix
	for _, word := range words {
		if len(line)+len(word)+1 > width && line != prefix {
			fmt.Println(line)
			line = prefix + word
		} else {
			if line == prefix {
				line += word
			} else {
				line += " " + word
			}
		}
	}
	if line != prefix {
		fmt.Println(line)
	}
}
