package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/geohead/incidentdash/config"
	"github.com/geohead/incidentdash/filter"
	"github.com/geohead/incidentdash/incident"
	"github.com/geohead/incidentdash/logging"
)

var eat = time.FixedZone("EAT", 3*60*60)

func testDataset() *incident.Dataset {
	row := func(day, hour int, region, county, purpose, intervention, status, gender string) incident.Row {
		return incident.Row{
			Time:   time.Date(2022, time.March, day, hour, 0, 0, 0, eat),
			Region: region, County: county, Purpose: purpose,
			Intervention: intervention, Status: status, CallerGender: gender,
		}
	}
	return &incident.Dataset{
		Source: "file:testdata.csv",
		Rows: []incident.Row{
			row(1, 10, "Nairobi", "Nairobi", "Medical", "Ambulance", "Closed", "Female"),
			row(2, 8, "Coast", "Mombasa", "Fire", "Fire Engine", "Open", "Male"),
			row(3, 0, "Nairobi", "Kiambu", "Fire", "Fire Engine", "Closed", "Male"),
			row(3, 23, "Nairobi", "Nairobi", "Medical", "Police", "Open", "Female"),
			row(4, 12, "Rift Valley", "Nakuru", "Security", "Police", "Closed", "Female"),
		},
	}
}

func testEnv() *env {
	cfg := config.Default()
	return &env{cfg: &cfg, loc: eat, logger: logging.Discard()}
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"data.csv", "--region", "Coast"}, []string{"--region", "Coast", "data.csv"}},
		{[]string{"--json", "data.csv"}, []string{"--json", "data.csv"}},
		{[]string{"--out=x.pdf", "data.csv", "--yes"}, []string{"--out=x.pdf", "--yes", "data.csv"}},
		{[]string{"--start", "2022-03-01", "--", "-odd"}, []string{"--start", "2022-03-01", "-odd"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reorderArgs(tt.in), strings.Join(tt.in, " "))
	}
}

func TestFormatInt(t *testing.T) {
	assert.Equal(t, "0", formatInt(0))
	assert.Equal(t, "999", formatInt(999))
	assert.Equal(t, "1,000", formatInt(1000))
	assert.Equal(t, "123,456,789", formatInt(123456789))
	assert.Equal(t, "-12,345", formatInt(-12345))
}

func TestSelectionFlags(t *testing.T) {
	sel := selectionFlags{region: "Nairobi", status: "Open"}
	assert.Equal(t, map[filter.Name]string{
		filter.Region: "Nairobi",
		filter.Status: "Open",
	}, sel.values())

	d, v, err := sel.open(testDataset(), eat)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Summary.TotalCalls)
	assert.Len(t, d.Subset(), 1)

	_, v, err = (&selectionFlags{}).open(testDataset(), eat)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Summary.TotalCalls)

	_, _, err = (&selectionFlags{region: "Mars"}).open(testDataset(), eat)
	assert.ErrorIs(t, err, filter.ErrInvalidFilterValue)

	_, _, err = (&selectionFlags{start: "2022-03-04", end: "2022-03-01"}).open(testDataset(), eat)
	assert.ErrorIs(t, err, filter.ErrInvalidDateRange)
}

func TestEnvLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"incident_date_time,region,county,purpose,intervention,status,caller_gender\n"+
			"2022-03-01 10:15:00,Nairobi,Nairobi,Medical,Ambulance,Closed,Female\n"), 0o644))

	e := testEnv()
	e.cfg.Source = path
	ds, err := e.load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	e.cfg.Source = ""
	_, err = e.load(context.Background())
	assert.ErrorIs(t, err, incident.ErrDataUnavailable)
}

func TestWriteSummary(t *testing.T) {
	sel := selectionFlags{region: "Nairobi"}
	d, v, err := sel.open(testDataset(), eat)
	require.NoError(t, err)

	var buf bytes.Buffer
	writeSummary(&buf, d, v)
	out := buf.String()

	assert.Contains(t, out, "Incident Reporter Dashboard")
	assert.Contains(t, out, "region: Nairobi")
	assert.Contains(t, out, "Total calls: 3")
	assert.Contains(t, out, "Purpose (calls_purpose)")
	assert.Contains(t, out, "Purpose by Gender (purpose_gender)")
	assert.Contains(t, out, strings.Repeat("█", barWidth))

	// County: Nairobi 2 and Kiambu 1, so Kiambu gets half a bar.
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Kiambu ") {
			assert.Contains(t, line, strings.Repeat("█", barWidth/2))
			assert.NotContains(t, line, strings.Repeat("█", barWidth/2+1))
		}
	}
}

func TestWriteSummary_Empty(t *testing.T) {
	sel := selectionFlags{start: "2022-03-02", end: "2022-03-02"}
	d, v, err := sel.open(testDataset(), eat)
	require.NoError(t, err)

	var buf bytes.Buffer
	writeSummary(&buf, d, v)
	assert.Contains(t, buf.String(), "Total calls: 0")
	assert.Contains(t, buf.String(), "(no data)")
}

func TestBar(t *testing.T) {
	assert.Equal(t, "", bar(0, 10))
	assert.Equal(t, "", bar(5, 0))
	assert.Equal(t, strings.Repeat("█", barWidth), bar(10, 10))
	assert.Equal(t, "▏", bar(1, 1000))
	assert.Equal(t, strings.Repeat("█", 13)+"▎", bar(1, 3))
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	d, v, err := (&selectionFlags{region: "Nairobi"}).open(testDataset(), eat)
	require.NoError(t, err)

	xlsx := filepath.Join(dir, "tables.xlsx")
	require.NoError(t, exportFile(xlsx, d, v))
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	got, err := f.GetRows("calls_county")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"County", "Num of calls"}, {"Nairobi", "2"}, {"Kiambu", "1"}}, got)
	require.NoError(t, f.Close())

	csvPath := filepath.Join(dir, "rows.csv")
	require.NoError(t, exportFile(csvPath, d, v))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	jsonPath := filepath.Join(dir, "rows.json")
	require.NoError(t, exportFile(jsonPath, d, v))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), `"region": "Nairobi"`))

	assert.Error(t, exportFile(filepath.Join(dir, "rows.txt"), d, v))
}

func TestExportCharts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	_, v, err := (&selectionFlags{}).open(testDataset(), eat)
	require.NoError(t, err)

	n, err := exportCharts(dir, "svg", v.Charts)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	data, err := os.ReadFile(filepath.Join(dir, "calls_region.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
}

func TestWriteReport(t *testing.T) {
	d, _, err := (&selectionFlags{purpose: "Fire"}).open(testDataset(), eat)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, writeReport(path, d))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	pages, err := api.PageCount(f, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, pages)
}

func TestFetchTo(t *testing.T) {
	body := "incident_date_time,region,county,purpose,intervention,status,caller_gender\n" +
		"2022-03-01 10:15:00,Nairobi,Nairobi,Medical,Ambulance,Closed,Female\n" +
		"2022-03-02 08:00:00,Coast,Mombasa,Fire,Fire Engine,Open,Male\n"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/incidents":
			w.Header().Set("Content-Type", "text/csv")
			w.Write([]byte(body))
		case "/garbage":
			w.Write([]byte("not,a\ndataset,at all\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	e := testEnv()

	path := filepath.Join(dir, "snap", "incidents.csv")
	n, rows, err := fetchTo(context.Background(), e, ts.URL+"/incidents", path)
	require.NoError(t, err)
	assert.Equal(t, len(body), n)
	assert.Equal(t, 2, rows)
	assert.FileExists(t, path)

	bad := filepath.Join(dir, "bad.csv")
	_, _, err = fetchTo(context.Background(), e, ts.URL+"/garbage", bad)
	assert.Error(t, err)
	assert.NoFileExists(t, bad)

	_, _, err = fetchTo(context.Background(), e, ts.URL+"/missing", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
