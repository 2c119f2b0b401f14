package aggregate

import (
	"strconv"
	"strings"
	"time"

	"github.com/geohead/incidentdash/incident"
)

// ageColumns are the pass-through columns that may carry the caller's age.
var ageColumns = []string{"caller_age", "age"}

// Summary holds the quick stats shown above the charts.
type Summary struct {
	TotalCalls int       `json:"total_calls"`
	First      time.Time `json:"first,omitempty"`
	Last       time.Time `json:"last,omitempty"`

	// Calls on the same day, month and year as Last.
	LatestDay   int `json:"latest_day"`
	LatestMonth int `json:"latest_month"`
	LatestYear  int `json:"latest_year"`

	// AverageAge is set only when some row carries a numeric age column.
	AverageAge *float64 `json:"average_age,omitempty"`
}

// Summarize computes the quick stats for rows.
func Summarize(rows []incident.Row) Summary {
	s := Summary{TotalCalls: len(rows)}
	if len(rows) == 0 {
		return s
	}
	s.First, s.Last = rows[0].Time, rows[0].Time
	for _, r := range rows[1:] {
		if r.Time.Before(s.First) {
			s.First = r.Time
		}
		if r.Time.After(s.Last) {
			s.Last = r.Time
		}
	}

	ly, lm, ld := s.Last.Date()
	var ageSum float64
	var ageN int
	for _, r := range rows {
		y, m, d := r.Time.In(s.Last.Location()).Date()
		if y == ly {
			s.LatestYear++
			if m == lm {
				s.LatestMonth++
				if d == ld {
					s.LatestDay++
				}
			}
		}
		if age, ok := rowAge(r); ok {
			ageSum += age
			ageN++
		}
	}
	if ageN > 0 {
		avg := ageSum / float64(ageN)
		s.AverageAge = &avg
	}
	return s
}

func rowAge(r incident.Row) (float64, bool) {
	for _, col := range ageColumns {
		v := strings.TrimSpace(r.Extra[col])
		if v == "" {
			continue
		}
		age, err := strconv.ParseFloat(v, 64)
		if err != nil || age < 0 {
			return 0, false
		}
		return age, true
	}
	return 0, false
}
