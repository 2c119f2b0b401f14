package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/geohead/incidentdash/chart"
	"github.com/geohead/incidentdash/dashboard"
)

// Report implements the "report" subcommand: render every chart of the
// selected subset into a PDF.
func Report(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	var ds datasetFlags
	var sel selectionFlags
	ds.register(fs)
	sel.register(fs)
	out := fs.String("out", "incidents-report.pdf", "output PDF file path")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: incidentdash report [source] [--out report.pdf] [flags]

Write a PDF with a summary page and one page per chart.

Flags:
`)
		fs.PrintDefaults()
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
	d, _, err := sel.open(data, e.loc)
	if err != nil {
		fatalf("error applying filters: %v", err)
	}
	if err := writeReport(*out, d); err != nil {
		fatalf("error writing PDF: %v", err)
	}
	fmt.Printf("wrote %s\n", *out)
}

func writeReport(path string, d *dashboard.Dashboard) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chart.WriteReport(f, d.Report()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
