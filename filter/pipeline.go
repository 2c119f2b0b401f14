package filter

import (
	"time"

	"github.com/geohead/incidentdash/incident"
)

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether Start <= t < End.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Selection is an immutable snapshot of a State, the input of Apply.
type Selection struct {
	Dates DateRange
	// FullRange marks the default date range, which selects every row
	// regardless of the half-open boundary.
	FullRange bool
	Values    map[Name]string
}

// Value returns the selection for a categorical filter, All if unset.
func (s Selection) Value(n Name) string {
	if v, ok := s.Values[n]; ok && v != "" {
		return v
	}
	return All
}

// Apply returns the rows of ds matching sel: date range first, then region,
// purpose, intervention and status. The result is always a new slice; an
// empty result is not an error.
func Apply(ds *incident.Dataset, sel Selection) []incident.Row {
	return applyUntil(ds.Rows, sel, "")
}

// applyUntil applies the date range and the cascade filters preceding stop.
// An empty stop applies the whole cascade.
func applyUntil(rows []incident.Row, sel Selection, stop Name) []incident.Row {
	rows = filterDates(rows, sel)
	for _, n := range Cascade {
		if n == stop {
			break
		}
		v := sel.Value(n)
		if v == All {
			continue
		}
		field, _ := n.Field()
		rows = filterField(rows, field, v)
	}
	return rows
}

func filterDates(rows []incident.Row, sel Selection) []incident.Row {
	out := make([]incident.Row, 0, len(rows))
	if sel.FullRange {
		return append(out, rows...)
	}
	for _, r := range rows {
		if sel.Dates.Contains(r.Time) {
			out = append(out, r)
		}
	}
	return out
}

func filterField(rows []incident.Row, field incident.Field, value string) []incident.Row {
	out := make([]incident.Row, 0, len(rows))
	for _, r := range rows {
		if r.Value(field) == value {
			out = append(out, r)
		}
	}
	return out
}

// distinct returns the values of field in order of first appearance.
func distinct(rows []incident.Row, field incident.Field) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		v := r.Value(field)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
