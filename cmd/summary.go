package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/geohead/incidentdash/aggregate"
	"github.com/geohead/incidentdash/chart"
	"github.com/geohead/incidentdash/dashboard"
	"github.com/geohead/incidentdash/filter"
)

const barWidth = 40

// Summary implements the "summary" subcommand: print the quick stats and
// every aggregate table of the selected subset.
func Summary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	var ds datasetFlags
	var sel selectionFlags
	ds.register(fs)
	sel.register(fs)
	asJSON := fs.Bool("json", false, "print the full view as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: incidentdash summary [source] [flags]

Print call totals and the aggregate tables for a filtered subset.

Flags:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  incidentdash summary files/incidents.csv
  incidentdash summary --source files/incidents.csv --region Nairobi --start 2022-03-01
  incidentdash summary --json --status Open
`)
	}
	fs.Parse(reorderArgs(args))
	if fs.NArg() > 0 {
		ds.source = fs.Arg(0)
	}

	e, err := ds.env()
	if err != nil {
		fatalf("error loading config: %v", err)
	}
	data, err := e.load(context.Background())
	if err != nil {
		fatalf("error loading data: %v", err)
	}
	d, view, err := sel.open(data, e.loc)
	if err != nil {
		fatalf("error applying filters: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			fatalf("error encoding view: %v", err)
		}
		return
	}
	writeSummary(os.Stdout, d, view)
}

// writeSummary prints the filters, quick stats and aggregate tables.
func writeSummary(w io.Writer, d *dashboard.Dashboard, v *dashboard.View) {
	fmt.Fprintln(w, dashboard.Title)
	fmt.Fprintf(w, "Source: %s\n", v.Source)
	for _, line := range d.FilterLines() {
		fmt.Fprintf(w, "  %s\n", line)
	}
	for _, n := range v.Reset {
		fmt.Fprintf(w, "  (%s reset to %s)\n", n, filter.All)
	}
	fmt.Fprintln(w)
	for _, line := range chart.SummaryLines(v.Summary) {
		fmt.Fprintln(w, line)
	}

	for _, t := range v.Tables.Single() {
		fmt.Fprintln(w)
		renderTable(w, t)
	}
	for _, ct := range v.Tables.Cross() {
		fmt.Fprintln(w)
		renderCrossTable(w, ct)
	}
}

func renderTable(w io.Writer, t aggregate.Table) {
	label := t.Field.Label()
	fmt.Fprintf(w, "%s (%s)\n", label, t.Name)
	if len(t.Entries) == 0 {
		fmt.Fprintln(w, "(no data)")
		return
	}

	maxName, maxCount := len(label), 0
	for _, e := range t.Entries {
		maxName = max(maxName, len(displayKey(e.Key)))
		maxCount = max(maxCount, e.Count)
	}

	rowFmt := fmt.Sprintf("%%-%ds  %%10s   %%s\n", maxName)
	fmt.Fprintf(w, rowFmt, label, chart.CountAxis, "")
	fmt.Fprintln(w, strings.Repeat("─", maxName+2+10+3+barWidth))
	for _, e := range t.Entries {
		fmt.Fprintf(w, rowFmt, displayKey(e.Key), formatInt(e.Count), bar(e.Count, maxCount))
	}
	fmt.Fprintln(w, strings.Repeat("─", maxName+2+10+3+barWidth))
	fmt.Fprintf(w, rowFmt, "Total", formatInt(t.Total()), "")
}

// renderCrossTable prints a matrix with key1 down the side and key2 across.
func renderCrossTable(w io.Writer, ct aggregate.CrossTable) {
	fmt.Fprintf(w, "%s by %s (%s)\n", ct.Field1.Label(), ct.Field2.Label(), ct.Name)
	if len(ct.Entries) == 0 {
		fmt.Fprintln(w, "(no data)")
		return
	}
	rows, cols := ct.Keys1(), ct.Keys2()

	nameWidth := len(ct.Field1.Label())
	for _, k := range rows {
		nameWidth = max(nameWidth, len(displayKey(k)))
	}
	colWidth := 8
	for _, k := range cols {
		colWidth = max(colWidth, len(displayKey(k)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s", nameWidth, ct.Field1.Label())
	for _, k := range cols {
		fmt.Fprintf(&sb, "  %*s", colWidth, displayKey(k))
	}
	fmt.Fprintln(w, sb.String())
	fmt.Fprintln(w, strings.Repeat("─", nameWidth+len(cols)*(colWidth+2)))

	for _, k1 := range rows {
		sb.Reset()
		fmt.Fprintf(&sb, "%-*s", nameWidth, displayKey(k1))
		for _, k2 := range cols {
			n, _ := ct.Get(k1, k2)
			fmt.Fprintf(&sb, "  %*s", colWidth, formatInt(n))
		}
		fmt.Fprintln(w, sb.String())
	}
}

// bar draws count proportionally to top using eighth-block runes.
func bar(count, top int) string {
	if top <= 0 || count <= 0 {
		return ""
	}
	partials := []rune(" ▏▎▍▌▋▊▉")
	eighths := count * barWidth * 8 / top
	if eighths == 0 {
		eighths = 1
	}
	s := strings.Repeat("█", eighths/8)
	if r := eighths % 8; r > 0 {
		s += string(partials[r])
	}
	return s
}

func displayKey(k string) string {
	if k == "" {
		return "(blank)"
	}
	return k
}
