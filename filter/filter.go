// Package filter holds the dashboard's filter selection model and the
// pipeline that applies it to a dataset.
//
// Categorical filters cascade: the options offered for a filter are the
// values remaining after the date range and every earlier filter in Cascade
// have been applied. The date range is independent of the categorical
// filters and is always applied first.
package filter

import (
	"errors"

	"github.com/geohead/incidentdash/incident"
)

// All is the sentinel selection meaning "no constraint".
const All = "All"

// DateLayout is the format of date_start and date_end values.
const DateLayout = "2006-01-02"

// Name identifies one filter.
type Name string

const (
	DateStart    Name = "date_start"
	DateEnd      Name = "date_end"
	Region       Name = "region"
	Purpose      Name = "purpose"
	Intervention Name = "intervention"
	Status       Name = "status"
)

// Cascade is the fixed order in which categorical filters narrow each other.
var Cascade = []Name{Region, Purpose, Intervention, Status}

// Names lists every filter name.
var Names = []Name{DateStart, DateEnd, Region, Purpose, Intervention, Status}

var (
	// ErrInvalidFilterValue is returned when a categorical value is neither
	// All nor one of the filter's current options.
	ErrInvalidFilterValue = errors.New("invalid filter value")
	// ErrInvalidDateRange is returned when start is after end or a date
	// value cannot be parsed.
	ErrInvalidDateRange = errors.New("invalid date range")
	// ErrUnknownFilter is returned for names outside Names.
	ErrUnknownFilter = errors.New("unknown filter")
)

// ParseName validates a filter name.
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", ErrUnknownFilter
}

// Field returns the dataset field a categorical filter constrains.
func (n Name) Field() (incident.Field, bool) {
	switch n {
	case Region:
		return incident.Region, true
	case Purpose:
		return incident.Purpose, true
	case Intervention:
		return incident.Intervention, true
	case Status:
		return incident.Status, true
	}
	return "", false
}

// IsCategorical reports whether n is one of the Cascade filters.
func (n Name) IsCategorical() bool {
	_, ok := n.Field()
	return ok
}

func cascadeIndex(n Name) int {
	for i, c := range Cascade {
		if c == n {
			return i
		}
	}
	return -1
}
