// Package aggregate computes grouped call counts over a filtered set of
// incident rows.
package aggregate

import (
	"sort"

	"github.com/geohead/incidentdash/incident"
)

// Table names, shared with chart ids and export sheet names.
const (
	CallsRegion       = "calls_region"
	CallsCounty       = "calls_county"
	CallsPurpose      = "calls_purpose"
	CallsGender       = "calls_gender"
	StatusDist        = "status_dist"
	CallsIntervention = "calls_intervention"
	PurposeGender     = "purpose_gender"
	RegionGender      = "region_gender"
)

// Entry is one category and its count.
type Entry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Table is a single-key count, ordered by descending count then ascending
// key.
type Table struct {
	Name    string         `json:"name"`
	Field   incident.Field `json:"field"`
	Entries []Entry        `json:"entries"`
}

// Total returns the sum of all counts.
func (t Table) Total() int {
	n := 0
	for _, e := range t.Entries {
		n += e.Count
	}
	return n
}

// Get returns the count for key.
func (t Table) Get(key string) (int, bool) {
	for _, e := range t.Entries {
		if e.Key == key {
			return e.Count, true
		}
	}
	return 0, false
}

// Keys returns the table's keys in display order.
func (t Table) Keys() []string {
	keys := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Count groups rows by field.
func Count(name string, rows []incident.Row, field incident.Field) Table {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Value(field)]++
	}
	entries := make([]Entry, 0, len(counts))
	for k, n := range counts {
		entries = append(entries, Entry{Key: k, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	return Table{Name: name, Field: field, Entries: entries}
}

// CrossEntry is one present (Key1, Key2) combination.
type CrossEntry struct {
	Key1  string `json:"key1"`
	Key2  string `json:"key2"`
	Count int    `json:"count"`
}

// CrossTable is a two-key count. Only combinations present in the input
// appear, ordered by Key1 then Key2.
type CrossTable struct {
	Name    string         `json:"name"`
	Field1  incident.Field `json:"field1"`
	Field2  incident.Field `json:"field2"`
	Entries []CrossEntry   `json:"entries"`
}

// CrossTab groups rows by two fields.
func CrossTab(name string, rows []incident.Row, f1, f2 incident.Field) CrossTable {
	type pair struct{ a, b string }
	counts := make(map[pair]int)
	for _, r := range rows {
		counts[pair{r.Value(f1), r.Value(f2)}]++
	}
	entries := make([]CrossEntry, 0, len(counts))
	for p, n := range counts {
		entries = append(entries, CrossEntry{Key1: p.a, Key2: p.b, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Key1 != entries[j].Key1 {
			return entries[i].Key1 < entries[j].Key1
		}
		return entries[i].Key2 < entries[j].Key2
	})
	return CrossTable{Name: name, Field1: f1, Field2: f2, Entries: entries}
}

// Keys1 returns the distinct first keys in ascending order.
func (c CrossTable) Keys1() []string {
	return distinctSorted(c.Entries, func(e CrossEntry) string { return e.Key1 })
}

// Keys2 returns the distinct second keys in ascending order.
func (c CrossTable) Keys2() []string {
	return distinctSorted(c.Entries, func(e CrossEntry) string { return e.Key2 })
}

// Get returns the count for a combination; absent combinations report false.
func (c CrossTable) Get(k1, k2 string) (int, bool) {
	for _, e := range c.Entries {
		if e.Key1 == k1 && e.Key2 == k2 {
			return e.Count, true
		}
	}
	return 0, false
}

// Total returns the sum of all counts.
func (c CrossTable) Total() int {
	n := 0
	for _, e := range c.Entries {
		n += e.Count
	}
	return n
}

func distinctSorted(entries []CrossEntry, key func(CrossEntry) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		k := key(e)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Tables is the full set of aggregates the dashboard shows.
type Tables struct {
	Region        Table      `json:"calls_region"`
	County        Table      `json:"calls_county"`
	Purpose       Table      `json:"calls_purpose"`
	Gender        Table      `json:"calls_gender"`
	Status        Table      `json:"status_dist"`
	Intervention  Table      `json:"calls_intervention"`
	PurposeGender CrossTable `json:"purpose_gender"`
	RegionGender  CrossTable `json:"region_gender"`
}

// Compute builds every table from rows.
func Compute(rows []incident.Row) Tables {
	return Tables{
		Region:        Count(CallsRegion, rows, incident.Region),
		County:        Count(CallsCounty, rows, incident.County),
		Purpose:       Count(CallsPurpose, rows, incident.Purpose),
		Gender:        Count(CallsGender, rows, incident.CallerGender),
		Status:        Count(StatusDist, rows, incident.Status),
		Intervention:  Count(CallsIntervention, rows, incident.Intervention),
		PurposeGender: CrossTab(PurposeGender, rows, incident.Purpose, incident.CallerGender),
		RegionGender:  CrossTab(RegionGender, rows, incident.Region, incident.CallerGender),
	}
}

// Single returns the single-key tables in display order.
func (t Tables) Single() []Table {
	return []Table{t.Region, t.County, t.Purpose, t.Gender, t.Status, t.Intervention}
}

// Cross returns the cross tables in display order.
func (t Tables) Cross() []CrossTable {
	return []CrossTable{t.PurposeGender, t.RegionGender}
}
