package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/geohead/incidentdash/config"
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

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timezone = "Africa/Nairobi"
	cfg.RateLimit.Enabled = false
	return &cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(testDataset(), cfg, logging.Discard())
	require.NoError(t, err)
	return s
}

type viewBody struct {
	ID      string              `json:"id"`
	Filters map[string]string   `json:"filters"`
	Options map[string][]string `json:"options"`
	Reset   []string            `json:"reset"`
	Summary struct {
		TotalCalls int `json:"total_calls"`
	} `json:"summary"`
	Snapshot []json.RawMessage `json:"snapshot"`
	Charts   []struct {
		ID string `json:"id"`
	} `json:"charts"`
}

type errorBody struct {
	StatusCode int             `json:"status_code"`
	ErrorCode  string          `json:"error_code"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details"`
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createSession(t *testing.T, h http.Handler) viewBody {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[viewBody](t, rec)
}

func TestCreateSession_Defaults(t *testing.T) {
	s := newTestServer(t, testConfig())
	v := createSession(t, s)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, 5, v.Summary.TotalCalls)
	assert.Len(t, v.Snapshot, 4)
	assert.Len(t, v.Charts, 9)
	assert.Equal(t, "All", v.Filters["region"])
	assert.Equal(t, "2022-03-01", v.Filters["date_start"])
	assert.Equal(t, "2022-03-04", v.Filters["date_end"])
	assert.Equal(t, []string{"Nairobi", "Coast", "Rift Valley", "All"}, v.Options["region"])
}

func TestCreateSession_WithFilters(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodPost, "/api/sessions", `{"filters":{"region":"Nairobi","purpose":"Fire"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	v := decode[viewBody](t, rec)
	assert.Equal(t, 1, v.Summary.TotalCalls)
	assert.Equal(t, "Fire", v.Filters["purpose"])
}

func TestCreateSession_Validation(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/api/sessions", `{"filters":{"planet":"Mars"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, decode[errorBody](t, rec).ErrorCode)

	rec = do(t, s, http.MethodPost, "/api/sessions", `{"filters":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decode[errorBody](t, rec).ErrorCode)

	rec = do(t, s, http.MethodPost, "/api/sessions", `{"filters":{"region":"Mars"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidFilterValue, decode[errorBody](t, rec).ErrorCode)
	assert.Equal(t, 0, s.sessions.len())
}

func TestSetFilter(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID

	rec := do(t, s, http.MethodPut, "/api/sessions/"+id+"/filters/region", `{"value":"Nairobi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[viewBody](t, rec)
	assert.Equal(t, 3, v.Summary.TotalCalls)
	assert.Equal(t, []string{"Medical", "Fire", "All"}, v.Options["purpose"])

	rec = do(t, s, http.MethodPut, "/api/sessions/"+id+"/filters/purpose", `{"value":"Fire"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[viewBody](t, rec).Summary.TotalCalls)

	// Rift Valley has no Fire calls, so purpose falls back to All.
	rec = do(t, s, http.MethodPut, "/api/sessions/"+id+"/filters/region", `{"value":"Rift Valley"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decode[viewBody](t, rec)
	assert.Equal(t, []string{"purpose"}, v.Reset)
	assert.Equal(t, "All", v.Filters["purpose"])
	assert.Equal(t, 1, v.Summary.TotalCalls)
}

func TestSetFilter_Errors(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid value", "/filters/region", `{"value":"Mars"}`, http.StatusBadRequest, CodeInvalidFilterValue},
		{"unknown filter", "/filters/planet", `{"value":"x"}`, http.StatusNotFound, CodeUnknownFilter},
		{"missing value", "/filters/region", `{}`, http.StatusBadRequest, CodeValidationFailed},
		{"bad date", "/dates", `{"start":"01/03/2022","end":"2022-03-04"}`, http.StatusBadRequest, CodeValidationFailed},
		{"start after end", "/dates", `{"start":"2022-03-04","end":"2022-03-01"}`, http.StatusBadRequest, CodeInvalidDateRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPut, "/api/sessions/"+id+tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[errorBody](t, rec).ErrorCode)
		})
	}

	// Failed updates leave the selection alone.
	v := decode[viewBody](t, do(t, s, http.MethodGet, "/api/sessions/"+id, ""))
	assert.Equal(t, 5, v.Summary.TotalCalls)
	assert.Equal(t, "All", v.Filters["region"])
}

func TestSetDatesAndApply(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID

	rec := do(t, s, http.MethodPut, "/api/sessions/"+id+"/dates", `{"start":"2022-03-02","end":"2022-03-03"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[viewBody](t, rec).Summary.TotalCalls)

	rec = do(t, s, http.MethodPut, "/api/sessions/"+id+"/dates", `{"start":"2022-03-02","end":"2022-03-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[viewBody](t, rec)
	assert.Equal(t, 0, v.Summary.TotalCalls)
	assert.Equal(t, []string{"All"}, v.Options["region"])

	rec = do(t, s, http.MethodPatch, "/api/sessions/"+id+"/filters",
		`{"filters":{"date_start":"2022-03-01","date_end":"2022-03-04","region":"Nairobi","status":"Open"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[viewBody](t, rec).Summary.TotalCalls)

	rec = do(t, s, http.MethodPost, "/api/sessions/"+id+"/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v = decode[viewBody](t, rec)
	assert.Equal(t, 5, v.Summary.TotalCalls)
	assert.Equal(t, "All", v.Filters["status"])
}

func TestOptions(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID
	do(t, s, http.MethodPut, "/api/sessions/"+id+"/filters/region", `{"value":"Coast"}`)

	rec := do(t, s, http.MethodGet, "/api/sessions/"+id+"/options/intervention", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[optionsResponse](t, rec)
	assert.Equal(t, []string{"Fire Engine", "All"}, got.Options)
	assert.Equal(t, "All", got.Selected)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/options/date_start", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsAreIndependent(t *testing.T) {
	s := newTestServer(t, testConfig())
	a := createSession(t, s).ID
	b := createSession(t, s).ID
	assert.NotEqual(t, a, b)

	do(t, s, http.MethodPut, "/api/sessions/"+a+"/filters/region", `{"value":"Coast"}`)
	va := decode[viewBody](t, do(t, s, http.MethodGet, "/api/sessions/"+a, ""))
	vb := decode[viewBody](t, do(t, s, http.MethodGet, "/api/sessions/"+b, ""))
	assert.Equal(t, 1, va.Summary.TotalCalls)
	assert.Equal(t, 5, vb.Summary.TotalCalls)
}

func TestSessionLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxSessions = 1
	cfg.Server.SessionTTL = time.Minute
	s := newTestServer(t, cfg)

	now := time.Date(2022, time.March, 5, 12, 0, 0, 0, time.UTC)
	s.sessions.now = func() time.Time { return now }

	id := createSession(t, s).ID
	rec := do(t, s, http.MethodPost, "/api/sessions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeSessionLimit, decode[errorBody](t, rec).ErrorCode)

	now = now.Add(2 * time.Minute)
	rec = do(t, s, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeSessionNotFound, decode[errorBody](t, rec).ErrorCode)

	id = createSession(t, s).ID
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "/api/sessions/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/sessions/"+id, "").Code)
}

func TestCharts(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID

	rec := do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts/calls_region", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec struct {
		Kind   string   `json:"kind"`
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, "bar", spec.Kind)
	assert.Equal(t, []string{"Nairobi", "Coast", "Rift Valley"}, spec.Labels)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts/calls_gender.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts/calls_region.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts/nope.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeChartNotFound, decode[errorBody](t, rec).ErrorCode)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts/calls_region.gif", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/charts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calls_intervention_pie")
}

func TestExports(t *testing.T) {
	s := newTestServer(t, testConfig())
	id := createSession(t, s).ID
	do(t, s, http.MethodPut, "/api/sessions/"+id+"/filters/region", `{"value":"Nairobi"}`)

	rec := do(t, s, http.MethodGet, "/api/sessions/"+id+"/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "incidents.csv")
	assert.Equal(t, 4, strings.Count(rec.Body.String(), "\n"))

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows("calls_region")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Region", "Num of calls"}, {"Nairobi", "3"}}, got)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/rows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 3)
}

func TestHealthMetricsAndIndex(t *testing.T) {
	s := newTestServer(t, testConfig())
	createSession(t, s)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[healthResponse](t, rec)
	assert.Equal(t, 5, h.Rows)
	assert.Equal(t, 1, h.Sessions)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "incidentdash_open_sessions 1")
	assert.Contains(t, body, "incidentdash_recompute_duration_seconds_count")
	assert.Contains(t, body, `route="/api/sessions`)

	rec = do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incident Reporter Dashboard")

	rec = do(t, s, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2}
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/", "").Code)
	rec := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decode[errorBody](t, rec).ErrorCode)

	// Health checks bypass the limiter.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)
}

func TestClientLimiter_DropsIdleClients(t *testing.T) {
	cl := newClientLimiter(1, 2, logging.Discard())
	now := time.Date(2022, time.March, 1, 12, 0, 0, 0, time.UTC)
	cl.now = func() time.Time { return now }

	a := cl.limiter("10.0.0.1:5000")
	cl.limiter("10.0.0.2:5000")
	assert.Same(t, a, cl.limiter("10.0.0.1:6000"))
	assert.Equal(t, 2, cl.len())

	now = now.Add(limiterIdle / 2)
	cl.limiter("10.0.0.1:5000")

	now = now.Add(limiterIdle/2 + time.Minute)
	cl.limiter("10.0.0.3:5000")
	assert.Equal(t, 2, cl.len(), "10.0.0.2 idle past the limit")
	assert.Same(t, a, cl.limiter("10.0.0.1:5000"))

	slow := newClientLimiter(0.001, 2, logging.Discard())
	assert.Equal(t, 2000*time.Second, slow.idle)
}
