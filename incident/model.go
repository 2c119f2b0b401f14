package incident

import (
	"time"
)

// Column names expected in every dataset source.
const (
	ColTime         = "incident_date_time"
	ColRegion       = "region"
	ColCounty       = "county"
	ColPurpose      = "purpose"
	ColIntervention = "intervention"
	ColStatus       = "status"
	ColCallerGender = "caller_gender"
)

// RequiredColumns lists the columns a source must provide. Anything else is
// carried through untouched in Row.Extra.
var RequiredColumns = []string{
	ColTime, ColRegion, ColCounty, ColPurpose, ColIntervention, ColStatus, ColCallerGender,
}

// Field names a categorical attribute of a Row.
type Field string

const (
	Region       Field = ColRegion
	County       Field = ColCounty
	Purpose      Field = ColPurpose
	Intervention Field = ColIntervention
	Status       Field = ColStatus
	CallerGender Field = ColCallerGender
)

// Fields lists every categorical field in column order.
var Fields = []Field{Region, County, Purpose, Intervention, Status, CallerGender}

// ParseField maps a column name to a Field.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Label returns a display label for the field ("caller_gender" -> "Gender").
func (f Field) Label() string {
	switch f {
	case Region:
		return "Region"
	case County:
		return "County"
	case Purpose:
		return "Purpose"
	case Intervention:
		return "Intervention"
	case Status:
		return "Status"
	case CallerGender:
		return "Gender"
	}
	return string(f)
}

// Row is a single incident report. Rows are never modified after loading;
// Extra must be treated as read-only.
type Row struct {
	Time         time.Time         `json:"incident_date_time"`
	Region       string            `json:"region"`
	County       string            `json:"county"`
	Purpose      string            `json:"purpose"`
	Intervention string            `json:"intervention"`
	Status       string            `json:"status"`
	CallerGender string            `json:"caller_gender"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Value returns the row's value for a categorical field.
func (r Row) Value(f Field) string {
	switch f {
	case Region:
		return r.Region
	case County:
		return r.County
	case Purpose:
		return r.Purpose
	case Intervention:
		return r.Intervention
	case Status:
		return r.Status
	case CallerGender:
		return r.CallerGender
	}
	return ""
}

// Dataset is the immutable row set of one load. Filtering builds new slices
// and never touches Rows.
type Dataset struct {
	Source   string
	LoadedAt time.Time
	Rows     []Row
	// Skipped counts source rows dropped because their timestamp could not
	// be parsed.
	Skipped int
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Bounds returns the calendar days of the oldest and latest incidents, each
// truncated to midnight in the timestamp's own zone. Both are zero for an
// empty dataset.
func (d *Dataset) Bounds() (oldest, latest time.Time) {
	lo, hi, ok := d.span()
	if !ok {
		return time.Time{}, time.Time{}
	}
	return Day(lo), Day(hi)
}

// BoundsIn is Bounds with both days taken in loc, so they compare equal to
// dates parsed in loc.
func (d *Dataset) BoundsIn(loc *time.Location) (oldest, latest time.Time) {
	lo, hi, ok := d.span()
	if !ok {
		return time.Time{}, time.Time{}
	}
	return Day(lo.In(loc)), Day(hi.In(loc))
}

func (d *Dataset) span() (lo, hi time.Time, ok bool) {
	if len(d.Rows) == 0 {
		return lo, hi, false
	}
	lo, hi = d.Rows[0].Time, d.Rows[0].Time
	for _, r := range d.Rows[1:] {
		if r.Time.Before(lo) {
			lo = r.Time
		}
		if r.Time.After(hi) {
			hi = r.Time
		}
	}
	return lo, hi, true
}

// Day truncates t to midnight in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
