package incident

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Batch is what a Source delivers: decoded rows plus the number of records
// dropped because their timestamp did not parse.
type Batch struct {
	Rows    []Row
	Skipped int
}

// timeLayouts are tried in order. Layouts without a zone are interpreted in
// the decoder's location.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an incident timestamp. Values without an explicit offset
// are read in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// normalizeHeader converts "Caller Gender" to "caller_gender".
func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// decoder turns header + records into Rows.
type decoder struct {
	loc     *time.Location
	index   map[string]int
	headers []string
}

func newDecoder(headers []string, loc *time.Location) (*decoder, error) {
	d := &decoder{loc: loc, index: make(map[string]int, len(headers))}
	for i, h := range headers {
		key := normalizeHeader(h)
		d.headers = append(d.headers, key)
		if _, dup := d.index[key]; !dup {
			d.index[key] = i
		}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := d.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return d, nil
}

func (d *decoder) cell(rec []string, col string) string {
	i := d.index[col]
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// decode returns the row for rec, or ok=false if its timestamp is unusable.
func (d *decoder) decode(rec []string) (Row, bool) {
	t, err := ParseTime(d.cell(rec, ColTime), d.loc)
	if err != nil {
		return Row{}, false
	}
	row := Row{
		Time:         t,
		Region:       d.cell(rec, ColRegion),
		County:       d.cell(rec, ColCounty),
		Purpose:      d.cell(rec, ColPurpose),
		Intervention: d.cell(rec, ColIntervention),
		Status:       d.cell(rec, ColStatus),
		CallerGender: d.cell(rec, ColCallerGender),
	}
	for i, h := range d.headers {
		if isRequired(h) || i >= len(rec) || h == "" {
			continue
		}
		if row.Extra == nil {
			row.Extra = make(map[string]string)
		}
		row.Extra[h] = strings.TrimSpace(rec[i])
	}
	return row, true
}

func isRequired(col string) bool {
	for _, c := range RequiredColumns {
		if c == col {
			return true
		}
	}
	return false
}

// DecodeRecords decodes a header row and data records.
func DecodeRecords(headers []string, records [][]string, loc *time.Location) (*Batch, error) {
	d, err := newDecoder(headers, loc)
	if err != nil {
		return nil, err
	}
	b := &Batch{Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		row, ok := d.decode(rec)
		if !ok {
			b.Skipped++
			continue
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// DecodeCSV reads a CSV document whose first record is the header.
func DecodeCSV(r io.Reader, loc *time.Location) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	d, err := newDecoder(headers, loc)
	if err != nil {
		return nil, err
	}

	b := &Batch{}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}
		row, ok := d.decode(rec)
		if !ok {
			b.Skipped++
			continue
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

// DecodeJSON reads either a JSON array of objects or a paginated envelope
// of the form {"results": [...]}.
func DecodeJSON(r io.Reader, loc *time.Location) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	data = bytes.TrimSpace(data)

	var objects []map[string]any
	if len(data) > 0 && data[0] == '{' {
		var envelope struct {
			Results []map[string]any `json:"results"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		objects = envelope.Results
	} else if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if len(objects) == 0 {
		return &Batch{}, nil
	}

	// Objects may carry different key sets; the header is their sorted union.
	var headers []string
	seen := make(map[string]bool)
	for _, obj := range objects {
		for k := range obj {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)

	records := make([][]string, len(objects))
	for i, obj := range objects {
		rec := make([]string, len(headers))
		for j, h := range headers {
			rec[j] = jsonString(obj[h])
		}
		records[i] = rec
	}
	return DecodeRecords(headers, records, loc)
}

func jsonString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// sniffJSON reports whether the payload looks like JSON rather than CSV.
func sniffJSON(data []byte) bool {
	data = bytes.TrimLeft(data, " \t\r\n\ufeff")
	return len(data) > 0 && (data[0] == '[' || data[0] == '{')
}
