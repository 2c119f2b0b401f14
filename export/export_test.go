package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/geohead/incidentdash/aggregate"
	"github.com/geohead/incidentdash/incident"
)

var eat = time.FixedZone("EAT", 3*60*60)

func rows() []incident.Row {
	return []incident.Row{
		{
			Time: time.Date(2022, time.March, 1, 10, 15, 0, 0, eat), Region: "Nairobi", County: "Nairobi",
			Purpose: "Medical", Intervention: "Ambulance", Status: "Closed", CallerGender: "Female",
			Extra: map[string]string{"age": "34"},
		},
		{
			Time: time.Date(2022, time.March, 2, 8, 0, 0, 0, eat), Region: "Coast", County: "Mombasa",
			Purpose: "Fire", Intervention: "Fire Engine", Status: "Open", CallerGender: "Male",
			Extra: map[string]string{"caller_name": "Juma, A."},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows()))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{
		"incident_date_time", "region", "county", "purpose", "intervention", "status", "caller_gender",
		"age", "caller_name",
	}, recs[0])
	assert.Equal(t, "2022-03-01T10:15:00+03:00", recs[1][0])
	assert.Equal(t, "34", recs[1][7])
	assert.Equal(t, "", recs[1][8])
	assert.Equal(t, "Juma, A.", recs[2][8])
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows()))

	b, err := incident.DecodeCSV(&buf, eat)
	require.NoError(t, err)
	require.Len(t, b.Rows, 2)
	assert.True(t, rows()[1].Time.Equal(b.Rows[1].Time))
	assert.Equal(t, "Fire Engine", b.Rows[1].Intervention)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, rows()))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Coast", got[1]["region"])
}

func TestWriteXLSX(t *testing.T) {
	data := rows()
	wb := Workbook{
		Source:  "file:incidents.csv",
		Filters: []string{"region: All"},
		Summary: aggregate.Summarize(data),
		Tables:  aggregate.Compute(data),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, wb))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		"summary", "calls_region", "calls_county", "calls_purpose", "calls_gender",
		"status_dist", "calls_intervention", "purpose_gender", "region_gender",
	}, f.GetSheetList())

	got, err := f.GetRows("calls_region")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Region", "Num of calls"},
		{"Coast", "1"},
		{"Nairobi", "1"},
	}, got)

	got, err = f.GetRows("region_gender")
	require.NoError(t, err)
	assert.Equal(t, []string{"Region", "Gender", "Num of calls"}, got[0])
	assert.Len(t, got, 3)

	v, err := f.GetCellValue("summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Workbook{Tables: aggregate.Compute(nil)}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows("calls_county")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
