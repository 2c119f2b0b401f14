package incident

import (
	"sort"
	"strings"
)

// categorySuffixes lists administrative designations that are commonly
// appended to place names. Longer suffixes come first so "SUB-COUNTY" is
// tried before "COUNTY".
var categorySuffixes = []string{
	"SUB-COUNTY", "SUB COUNTY", "COUNTY", "REGION", "PROVINCE",
}

// NormalizeCategory folds case and whitespace and strips a trailing
// administrative suffix, so "Nairobi County" and " nairobi" compare equal.
func NormalizeCategory(value string) string {
	upper := strings.Join(strings.Fields(strings.ToUpper(value)), " ")
	for _, suffix := range categorySuffixes {
		if strings.HasSuffix(upper, " "+suffix) {
			return upper[:len(upper)-len(suffix)-1]
		}
	}
	return upper
}

// ValueCount is a raw category value and the number of rows carrying it.
type ValueCount struct {
	Value string
	Count int
}

// Variant groups spellings of one field that normalize to the same key.
// Keeper is the most frequent spelling; Others are the candidates for
// renaming to it.
type Variant struct {
	Field  Field
	Key    string
	Keeper ValueCount
	Others []ValueCount
}

// FindVariants detects values of field that likely refer to the same entity.
// Results are sorted by key.
func FindVariants(rows []Row, field Field) []Variant {
	// key -> raw value -> count
	groups := make(map[string]map[string]int)
	for _, r := range rows {
		raw := r.Value(field)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		key := NormalizeCategory(raw)
		if groups[key] == nil {
			groups[key] = make(map[string]int)
		}
		groups[key][raw]++
	}

	var variants []Variant
	for key, spellings := range groups {
		if len(spellings) < 2 {
			continue
		}
		counts := make([]ValueCount, 0, len(spellings))
		for v, n := range spellings {
			counts = append(counts, ValueCount{Value: v, Count: n})
		}
		// Keeper: the most frequent spelling, ties broken alphabetically.
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].Count != counts[j].Count {
				return counts[i].Count > counts[j].Count
			}
			return counts[i].Value < counts[j].Value
		})
		variants = append(variants, Variant{
			Field:  field,
			Key:    key,
			Keeper: counts[0],
			Others: counts[1:],
		})
	}

	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Key < variants[j].Key
	})
	return variants
}

// Rename returns a copy of rows with field values replaced according to
// merges (old spelling -> new spelling). The input rows are not modified.
func Rename(rows []Row, field Field, merges map[string]string) ([]Row, int) {
	out := make([]Row, len(rows))
	applied := 0
	for i, r := range rows {
		if to, ok := merges[r.Value(field)]; ok {
			r = r.with(field, to)
			applied++
		}
		out[i] = r
	}
	return out, applied
}

func (r Row) with(f Field, v string) Row {
	switch f {
	case Region:
		r.Region = v
	case County:
		r.County = v
	case Purpose:
		r.Purpose = v
	case Intervention:
		r.Intervention = v
	case Status:
		r.Status = v
	case CallerGender:
		r.CallerGender = v
	}
	return r
}
