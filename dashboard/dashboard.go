// Package dashboard runs the recompute cycle: filter the dataset, aggregate
// the working subset, and describe the charts.
package dashboard

import (
	"fmt"
	"time"

	"github.com/geohead/incidentdash/aggregate"
	"github.com/geohead/incidentdash/chart"
	"github.com/geohead/incidentdash/filter"
	"github.com/geohead/incidentdash/incident"
)

// SnapshotSize is the number of leading rows shown as a sample.
const SnapshotSize = 4

// Title is the dashboard heading.
const Title = "Incident Reporter Dashboard"

// View is everything a renderer needs after one recompute.
type View struct {
	Source   string                   `json:"source"`
	Oldest   time.Time                `json:"oldest"`
	Latest   time.Time                `json:"latest"`
	Filters  map[filter.Name]string   `json:"filters"`
	Options  map[filter.Name][]string `json:"options"`
	Reset    []filter.Name            `json:"reset,omitempty"`
	Summary  aggregate.Summary        `json:"summary"`
	Snapshot []incident.Row           `json:"snapshot"`
	Tables   aggregate.Tables         `json:"tables"`
	Charts   []chart.Spec             `json:"charts"`
}

// Observer is told how long each recompute took and how many rows it kept.
type Observer func(elapsed time.Duration, rows int)

// Dashboard owns one filter selection over a shared dataset. It is not safe
// for concurrent use.
type Dashboard struct {
	state   *filter.State
	observe Observer
	now     func() time.Time
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithObserver installs a recompute observer.
func WithObserver(o Observer) Option {
	return func(d *Dashboard) { d.observe = o }
}

// New returns a dashboard with the default selection.
func New(ds *incident.Dataset, loc *time.Location, opts ...Option) *Dashboard {
	d := &Dashboard{
		state: filter.NewState(ds, filter.WithLocation(loc)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State exposes the underlying selection.
func (d *Dashboard) State() *filter.State { return d.state }

// Set changes one filter and recomputes. On error the selection is
// unchanged and no view is returned.
func (d *Dashboard) Set(name filter.Name, value string) (*View, error) {
	reset, err := d.state.Set(name, value)
	if err != nil {
		return nil, err
	}
	v := d.View()
	v.Reset = reset
	return v, nil
}

// SetDates changes both ends of the date range at once.
func (d *Dashboard) SetDates(start, end string) (*View, error) {
	reset, err := setDates(d.state, start, end)
	if err != nil {
		return nil, err
	}
	v := d.View()
	v.Reset = reset
	return v, nil
}

func setDates(st *filter.State, start, end string) ([]filter.Name, error) {
	loc := st.Location()
	s, err := time.ParseInLocation(filter.DateLayout, start, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", filter.ErrInvalidDateRange, start)
	}
	e, err := time.ParseInLocation(filter.DateLayout, end, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", filter.ErrInvalidDateRange, end)
	}
	return st.SetDateRange(s, e)
}

// Apply sets several filters in cascade order, dates first, and recomputes
// once. If any value is rejected the selection is left as it was.
func (d *Dashboard) Apply(values map[filter.Name]string) (*View, error) {
	next := d.state.Clone()
	var reset []filter.Name
	if start, end := values[filter.DateStart], values[filter.DateEnd]; start != "" || end != "" {
		cur := next.Values()
		if start == "" {
			start = cur[filter.DateStart]
		}
		if end == "" {
			end = cur[filter.DateEnd]
		}
		r, err := setDates(next, start, end)
		if err != nil {
			return nil, err
		}
		reset = append(reset, r...)
	}
	for _, n := range filter.Cascade {
		v, ok := values[n]
		if !ok || v == "" {
			continue
		}
		r, err := next.Set(n, v)
		if err != nil {
			return nil, err
		}
		reset = append(reset, r...)
	}
	*d.state = *next
	v := d.View()
	v.Reset = reset
	return v, nil
}

// Reset restores the default selection and recomputes.
func (d *Dashboard) Reset() *View {
	d.state.Reset()
	return d.View()
}

// Options returns the current option list for a categorical filter.
func (d *Dashboard) Options(name filter.Name) ([]string, error) {
	return d.state.OptionsFor(name)
}

// Subset returns the current working subset.
func (d *Dashboard) Subset() []incident.Row {
	return d.state.Apply()
}

// View recomputes the working subset, its aggregates and charts.
func (d *Dashboard) View() *View {
	started := time.Now()
	ds := d.state.Dataset()
	rows := d.state.Apply()
	tables := aggregate.Compute(rows)
	oldest, latest := d.state.Bounds()

	v := &View{
		Source:   ds.Source,
		Oldest:   oldest,
		Latest:   latest,
		Filters:  d.state.Values(),
		Options:  make(map[filter.Name][]string, len(filter.Cascade)),
		Summary:  aggregate.Summarize(rows),
		Snapshot: rows[:min(SnapshotSize, len(rows))],
		Tables:   tables,
		Charts:   chart.Standard(tables),
	}
	for _, n := range filter.Cascade {
		v.Options[n], _ = d.state.OptionsFor(n)
	}
	if d.observe != nil {
		d.observe(time.Since(started), len(rows))
	}
	return v
}

// FilterLines describes the selection for report headers.
func (d *Dashboard) FilterLines() []string {
	vals := d.state.Values()
	lines := []string{fmt.Sprintf("Dates: %s to %s (end exclusive)", vals[filter.DateStart], vals[filter.DateEnd])}
	if d.state.FullRange() {
		lines[0] = fmt.Sprintf("Dates: %s to %s (all)", vals[filter.DateStart], vals[filter.DateEnd])
	}
	for _, n := range filter.Cascade {
		lines = append(lines, fmt.Sprintf("%s: %s", n, vals[n]))
	}
	return lines
}

// Report builds a printable report of the current view.
func (d *Dashboard) Report() chart.Report {
	v := d.View()
	return chart.Report{
		Title:     Title,
		Source:    v.Source,
		Generated: d.now(),
		Filters:   d.FilterLines(),
		Summary:   v.Summary,
		Charts:    v.Charts,
	}
}
