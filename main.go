package main

import (
	"fmt"
	"os"

	"github.com/geohead/incidentdash/cmd"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmd.Serve(os.Args[2:])
	case "summary":
		cmd.Summary(os.Args[2:])
	case "report":
		cmd.Report(os.Args[2:])
	case "export":
		cmd.Export(os.Args[2:])
	case "fetch":
		cmd.Fetch(os.Args[2:])
	case "dedupe":
		cmd.Dedupe(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: incidentdash <command> [flags]

Commands:
  serve     Serve the interactive dashboard API
  summary   Print call totals and aggregate tables
  report    Write a PDF report with every chart
  export    Export aggregate tables or filtered rows
  fetch     Download a remote dataset snapshot
  dedupe    Find and merge category spelling variants

Settings come from incidents.yaml and INCIDENTS_* environment variables.
`)
}
