package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/geohead/incidentdash/chart"
	"github.com/geohead/incidentdash/dashboard"
	"github.com/geohead/incidentdash/export"
)

// Export implements the "export" subcommand: write the aggregate tables or
// the filtered rows to a file, and optionally every chart as an image.
func Export(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var ds datasetFlags
	var sel selectionFlags
	ds.register(fs)
	sel.register(fs)
	out := fs.String("out", "incidents.xlsx", "output file: .xlsx (aggregate tables), .csv or .json (filtered rows)")
	chartDir := fs.String("charts", "", "also write every chart to this directory")
	format := fs.String("format", "png", "chart image format: png, svg or pdf")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: incidentdash export [source] [--out incidents.xlsx] [flags]

Export the filtered subset.

Flags:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  incidentdash export files/incidents.csv --out tables.xlsx
  incidentdash export --region Coast --out coast.csv
  incidentdash export --out coast.json --charts ./charts --format svg
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

	if err := exportFile(*out, d, view); err != nil {
		fatalf("error writing %s: %v", *out, err)
	}
	fmt.Printf("wrote %s\n", *out)

	if *chartDir != "" {
		n, err := exportCharts(*chartDir, *format, view.Charts)
		if err != nil {
			fatalf("error writing charts: %v", err)
		}
		fmt.Printf("wrote %d charts to %s\n", n, *chartDir)
	}
}

// exportFile writes the view to path, choosing the format by extension.
func exportFile(path string, d *dashboard.Dashboard, v *dashboard.View) error {
	var write func(io.Writer) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		write = func(w io.Writer) error {
			return export.WriteXLSX(w, export.Workbook{
				Source:  v.Source,
				Filters: d.FilterLines(),
				Summary: v.Summary,
				Tables:  v.Tables,
			})
		}
	case ".csv":
		write = func(w io.Writer) error { return export.WriteCSV(w, d.Subset()) }
	case ".json":
		write = func(w io.Writer) error { return export.WriteJSON(w, d.Subset()) }
	default:
		return fmt.Errorf("unsupported export format %q (use .xlsx, .csv or .json)", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exportCharts renders each spec to dir/<id>.<format>.
func exportCharts(dir, format string, specs []chart.Spec) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for i, s := range specs {
		path := filepath.Join(dir, s.ID+"."+format)
		f, err := os.Create(path)
		if err != nil {
			return i, err
		}
		err = chart.WriteImage(f, s, format, chart.DefaultWidth, chart.DefaultHeight)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return i, fmt.Errorf("%s: %w", s.ID, err)
		}
	}
	return len(specs), nil
}
