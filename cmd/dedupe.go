package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/geohead/incidentdash/export"
	"github.com/geohead/incidentdash/incident"
)

// Dedupe implements the "dedupe" subcommand: find category spellings that
// likely name the same entity ("Nairobi County" and "nairobi") and write a
// cleaned copy of the dataset with the accepted merges applied.
func Dedupe(args []string) {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	var ds datasetFlags
	ds.register(fs)
	fields := fs.String("fields", "region,county", "comma-separated fields to check")
	out := fs.String("out", "", "write the merged rows as CSV to this path (omit to only report)")
	yes := fs.Bool("yes", false, "accept every merge without prompting")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: incidentdash dedupe [source] [--fields region,county] [--out cleaned.csv] [--yes]\n\nFind and merge category spelling variants.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(reorderArgs(args))
	if fs.NArg() > 0 {
		ds.source = fs.Arg(0)
	}

	var check []incident.Field
	for _, name := range strings.Split(*fields, ",") {
		f, ok := incident.ParseField(strings.TrimSpace(name))
		if !ok {
			fatalf("invalid field %q; valid options: region, county, purpose, intervention, status, caller_gender", name)
		}
		check = append(check, f)
	}

	e, err := ds.env()
	if err != nil {
		fatalf("error loading config: %v", err)
	}
	data, err := e.load(context.Background())
	if err != nil {
		fatalf("error loading data: %v", err)
	}

	rows := data.Rows
	total := 0
	in := bufio.NewScanner(os.Stdin)
	for _, f := range check {
		variants := incident.FindVariants(rows, f)
		if len(variants) == 0 {
			fmt.Fprintf(os.Stderr, "%s: no variants found\n", f)
			continue
		}
		merges := promptMerges(in, os.Stderr, variants, *yes || *out == "")
		if *out == "" {
			continue
		}
		var n int
		rows, n = incident.Rename(rows, f, merges)
		total += n
	}

	if *out == "" {
		return
	}
	if err := writeCSVFile(*out, rows); err != nil {
		fatalf("error writing %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stderr, "dedupe: renamed %d entries, wrote %s\n", total, *out)
}

// promptMerges asks about each variant group and returns the accepted
// renames (old spelling -> keeper). With acceptAll set every group is
// listed and accepted. Answering "a" accepts the rest.
func promptMerges(in *bufio.Scanner, w io.Writer, variants []incident.Variant, acceptAll bool) map[string]string {
	merges := make(map[string]string)
	accept := func(v incident.Variant) {
		for _, o := range v.Others {
			merges[o.Value] = v.Keeper.Value
		}
	}

	for _, v := range variants {
		if acceptAll {
			for _, o := range v.Others {
				fmt.Fprintf(w, "  %s: %q (%d) → %q (%d)\n", v.Field, o.Value, o.Count, v.Keeper.Value, v.Keeper.Count)
			}
			accept(v)
			continue
		}

		fmt.Fprintf(w, "\nPotential duplicate %s values:\n", v.Field)
		fmt.Fprintf(w, "  %-30q %d rows\n", v.Keeper.Value, v.Keeper.Count)
		for _, o := range v.Others {
			fmt.Fprintf(w, "  %-30q %d rows\n", o.Value, o.Count)
		}
		fmt.Fprintf(w, "Merge into %q? [y/N/a(ll)]: ", v.Keeper.Value)

		if !in.Scan() {
			break
		}
		switch strings.TrimSpace(strings.ToLower(in.Text())) {
		case "a", "all":
			acceptAll = true
			accept(v)
		case "y", "yes":
			accept(v)
		}
	}
	return merges
}

func writeCSVFile(path string, rows []incident.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
