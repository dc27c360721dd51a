package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ring-simulator/internal/analysis"
	"ring-simulator/internal/layout"
)

type reportHeader struct {
	BatchID string
	Name    string
	Seed    int64
	NumSims int
}

// report prints the overall summary followed by one row per stop.
func report(w io.Writer, h reportHeader, stops []layout.Stop, overall analysis.Summary, byStop []analysis.StopSummary) {
	fmt.Fprintln(w, strings.ReplaceAll(h.Name, "\n", ", "))
	fmt.Fprintf(w, "batch %s, seed %d, %d runs\n", h.BatchID, h.Seed, h.NumSims)
	fmt.Fprintf(w, "mean interarrival: %s\n", formatStat(overall, overall.Mean))
	fmt.Fprintf(w, "std interarrival:  %s\n", formatStat(overall, overall.Std))
	fmt.Fprintf(w, "samples:           %d\n\n", len(overall.Samples))

	names := make(map[float64]string, len(stops))
	for _, s := range stops {
		names[s.Position] = s.Name
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STOP\tLOCATION\tMEAN\tSTD\tSAMPLES")
	for _, s := range byStop {
		name := names[s.Stop]
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%v\t%s\t%s\t%d\n", name, s.Stop,
			formatStat(s.Summary, s.Mean), formatStat(s.Summary, s.Std), len(s.Samples))
	}
	_ = tw.Flush()
}

func formatStat(s analysis.Summary, v float64) string {
	if s.Degenerate() {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}
