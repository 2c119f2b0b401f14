package filter

import (
	"fmt"
	"slices"
	"time"

	"github.com/geohead/incidentdash/incident"
)

// State is one session's filter selection over a shared, read-only dataset.
// It is not safe for concurrent use; callers serialize access per session.
type State struct {
	ds     *incident.Dataset
	loc    *time.Location
	oldest time.Time
	latest time.Time
	dates  DateRange
	values map[Name]string
}

// Option configures a State.
type Option func(*State)

// WithLocation sets the zone date values are parsed in. It defaults to the
// zone of the dataset's oldest record.
func WithLocation(loc *time.Location) Option {
	return func(s *State) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewState returns the default selection for ds: the full date range and
// All for every categorical filter.
func NewState(ds *incident.Dataset, opts ...Option) *State {
	oldest, _ := ds.Bounds()
	s := &State{
		ds:  ds,
		loc: oldest.Location(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.oldest, s.latest = ds.BoundsIn(s.loc)
	s.Reset()
	return s
}

// Clone returns an independent copy of the selection over the same dataset.
func (s *State) Clone() *State {
	c := *s
	c.values = make(map[Name]string, len(s.values))
	for k, v := range s.values {
		c.values[k] = v
	}
	return &c
}

// Reset restores the default selection.
func (s *State) Reset() {
	s.dates = DateRange{Start: s.oldest, End: s.latest}
	s.values = make(map[Name]string, len(Cascade))
	for _, n := range Cascade {
		s.values[n] = All
	}
}

// Dataset returns the dataset the state filters.
func (s *State) Dataset() *incident.Dataset { return s.ds }

// Bounds returns the oldest and latest record days in the state's zone.
func (s *State) Bounds() (oldest, latest time.Time) { return s.oldest, s.latest }

// Location returns the zone date values are parsed in.
func (s *State) Location() *time.Location { return s.loc }

// DateRange returns the selected date range.
func (s *State) DateRange() DateRange { return s.dates }

// FullRange reports whether the date range is the untouched default.
func (s *State) FullRange() bool {
	return s.dates.Start.Equal(s.oldest) && s.dates.End.Equal(s.latest)
}

// Get returns the current value of a filter. Dates are formatted with
// DateLayout.
func (s *State) Get(name Name) (string, error) {
	switch name {
	case DateStart:
		return s.dates.Start.In(s.loc).Format(DateLayout), nil
	case DateEnd:
		return s.dates.End.In(s.loc).Format(DateLayout), nil
	}
	v, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return v, nil
}

// Values returns every filter's current value keyed by name.
func (s *State) Values() map[Name]string {
	out := make(map[Name]string, len(Names))
	for _, n := range Names {
		out[n], _ = s.Get(n)
	}
	return out
}

// Selection snapshots the state for Apply.
func (s *State) Selection() Selection {
	values := make(map[Name]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return Selection{Dates: s.dates, FullRange: s.FullRange(), Values: values}
}

// Apply returns the rows matching the current selection.
func (s *State) Apply() []incident.Row {
	return Apply(s.ds, s.Selection())
}

// OptionsFor returns the values selectable for a categorical filter given
// the date range and every earlier filter in Cascade, in order of first
// appearance, followed by All.
func (s *State) OptionsFor(name Name) ([]string, error) {
	field, ok := name.Field()
	if !ok {
		return nil, fmt.Errorf("%w: %q has no options", ErrUnknownFilter, name)
	}
	rows := applyUntil(s.ds.Rows, s.Selection(), name)
	return append(distinct(rows, field), All), nil
}

// Set changes one filter. Categorical values must be All or one of the
// filter's current options; date values use DateLayout. On error the state
// is unchanged. Later cascade filters whose selection is no longer offered
// fall back to All, and their names are returned.
func (s *State) Set(name Name, value string) ([]Name, error) {
	switch name {
	case DateStart, DateEnd:
		day, err := time.ParseInLocation(DateLayout, value, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidDateRange, name, value)
		}
		if name == DateStart {
			return s.SetDateRange(day, s.dates.End)
		}
		return s.SetDateRange(s.dates.Start, day)
	}
	if !name.IsCategorical() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	if value != All {
		opts, err := s.OptionsFor(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(opts, value) {
			return nil, fmt.Errorf("%w: %q is not an option for %s", ErrInvalidFilterValue, value, name)
		}
	}
	s.values[name] = value
	return s.reconcile(cascadeIndex(name) + 1), nil
}

// SetDateRange replaces the date range. start after end is rejected and the
// previous range retained.
func (s *State) SetDateRange(start, end time.Time) ([]Name, error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidDateRange, start.Format(DateLayout), end.Format(DateLayout))
	}
	s.dates = DateRange{Start: start, End: end}
	return s.reconcile(0), nil
}

// reconcile resets cascade filters from index from onward whose selection
// is no longer among their options.
func (s *State) reconcile(from int) []Name {
	var reset []Name
	for _, n := range Cascade[from:] {
		v := s.values[n]
		if v == All {
			continue
		}
		opts, _ := s.OptionsFor(n)
		if !slices.Contains(opts, v) {
			s.values[n] = All
			reset = append(reset, n)
		}
	}
	return reset
}
