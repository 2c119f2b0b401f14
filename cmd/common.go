package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/geohead/incidentdash/config"
	"github.com/geohead/incidentdash/dashboard"
	"github.com/geohead/incidentdash/filter"
	"github.com/geohead/incidentdash/incident"
	"github.com/geohead/incidentdash/logging"
)

// datasetFlags are shared by every subcommand that loads the dataset.
type datasetFlags struct {
	config string
	source string
}

func (f *datasetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "YAML config file (default "+config.DefaultFile+" if present)")
	fs.StringVar(&f.source, "source", "", "dataset locator: file path, http(s) URL or sqlite:// locator (overrides config)")
}

// env is what a subcommand needs once configuration is resolved.
type env struct {
	cfg    *config.Config
	loc    *time.Location
	logger *slog.Logger
}

func (f *datasetFlags) env() (*env, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.source != "" {
		cfg.Source = f.source
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, loc: loc, logger: logging.New(cfg.Logging, os.Stderr)}, nil
}

func (e *env) httpClient() *http.Client {
	return &http.Client{Timeout: e.cfg.HTTPTimeout}
}

// load fetches the configured dataset.
func (e *env) load(ctx context.Context) (*incident.Dataset, error) {
	if e.cfg.Source == "" {
		return nil, fmt.Errorf("%w: no source configured (use --source or INCIDENTS_SOURCE)", incident.ErrDataUnavailable)
	}
	src, err := incident.OpenSource(e.cfg.Source, incident.SourceOptions{
		Location:   e.loc,
		HTTPClient: e.httpClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", incident.ErrDataUnavailable, err)
	}
	return incident.NewLoader(e.logger).Load(ctx, src)
}

// selectionFlags select a working subset from the command line.
type selectionFlags struct {
	start, end                            string
	region, purpose, intervention, status string
}

func (f *selectionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.start, "start", "", "first day included ("+filter.DateLayout+", default oldest)")
	fs.StringVar(&f.end, "end", "", "end day, exclusive ("+filter.DateLayout+", default latest)")
	fs.StringVar(&f.region, "region", "", "region filter")
	fs.StringVar(&f.purpose, "purpose", "", "purpose filter")
	fs.StringVar(&f.intervention, "intervention", "", "intervention filter")
	fs.StringVar(&f.status, "status", "", "status filter")
}

func (f *selectionFlags) values() map[filter.Name]string {
	vals := map[filter.Name]string{
		filter.DateStart:    f.start,
		filter.DateEnd:      f.end,
		filter.Region:       f.region,
		filter.Purpose:      f.purpose,
		filter.Intervention: f.intervention,
		filter.Status:       f.status,
	}
	for k, v := range vals {
		if v == "" {
			delete(vals, k)
		}
	}
	return vals
}

// open builds a dashboard over ds with the flag selection applied.
func (f *selectionFlags) open(ds *incident.Dataset, loc *time.Location) (*dashboard.Dashboard, *dashboard.View, error) {
	d := dashboard.New(ds, loc)
	vals := f.values()
	if len(vals) == 0 {
		return d, d.View(), nil
	}
	v, err := d.Apply(vals)
	if err != nil {
		return nil, nil, err
	}
	return d, v, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// reorderArgs moves positional arguments to the end so that Go's flag package
// can parse all flags regardless of where a positional argument appears.
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(args[i], "-") {
			positional = append(positional, args[i])
			continue
		}
		flags = append(flags, args[i])
		if isBoolFlag(args[i]) || strings.Contains(args[i], "=") {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags = append(flags, args[i+1])
			i++
		}
	}
	return append(flags, positional...)
}

// boolFlags take no value, so the argument after them is positional.
var boolFlags = map[string]bool{"yes": true, "json": true, "force": true}

func isBoolFlag(arg string) bool {
	return boolFlags[strings.TrimLeft(arg, "-")]
}

func formatInt(v int) string {
	s := strconv.Itoa(v)
	if v < 0 {
		return "-" + addCommas(s[1:])
	}
	return addCommas(s)
}

func addCommas(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var sb strings.Builder
	pre := n % 3
	if pre > 0 {
		sb.WriteString(s[:pre])
		sb.WriteByte(',')
	}
	for i := pre; i < n; i += 3 {
		sb.WriteString(s[i : i+3])
		if i+3 < n {
			sb.WriteByte(',')
		}
	}
	return sb.String()
}
