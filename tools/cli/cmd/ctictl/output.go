package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/risk"
)

type format string

const (
	formatSummary format = "summary"
	formatJSON    format = "json"
	formatYAML    format = "yaml"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatSummary, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

func render(w io.Writer, f format, reports []event.Report) error {
	switch f {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderSummary(w, reports)
	}
}

// renderSummary prints one line per report followed by totals.
func renderSummary(w io.Writer, reports []event.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tSTATUS\tANOMALY\tTHREAT\tRISK\tSCORE")
	levels := map[string]int{}
	threats := map[string]int{}
	anomalies := 0
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%.1f\n", r.EventID, r.Status, r.IsAnomaly, r.ThreatType, r.RiskLevel, r.RiskScore)
		levels[r.RiskLevel]++
		threats[r.ThreatType]++
		if r.IsAnomaly {
			anomalies++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d events, %d anomalous\n", len(reports), anomalies)
	var parts []string
	for _, l := range []risk.Level{risk.Critical, risk.High, risk.Medium, risk.Low} {
		parts = append(parts, fmt.Sprintf("%s=%d", l, levels[string(l)]))
	}
	fmt.Fprintf(w, "risk: %s\n", strings.Join(parts, " "))

	names := make([]string, 0, len(threats))
	for t := range threats {
		names = append(names, t)
	}
	sort.Strings(names)
	parts = parts[:0]
	for _, t := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", t, threats[t]))
	}
	_, err := fmt.Fprintf(w, "threats: %s\n", strings.Join(parts, " "))
	return err
}
