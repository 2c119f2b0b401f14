package server

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/geohead/incidentdash/chart"
	"github.com/geohead/incidentdash/dashboard"
	"github.com/geohead/incidentdash/export"
	"github.com/geohead/incidentdash/filter"
)

type filtersRequest struct {
	Filters map[string]string `json:"filters" validate:"omitempty,dive,keys,oneof=date_start date_end region purpose intervention status,endkeys,max=200"`
}

type setFilterRequest struct {
	Value string `json:"value" validate:"required,max=200"`
}

type datesRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

type sessionResponse struct {
	ID string `json:"id"`
	*dashboard.View
}

type optionsResponse struct {
	Filter   filter.Name `json:"filter"`
	Selected string      `json:"selected"`
	Options  []string    `json:"options"`
}

func toNames(in map[string]string) map[filter.Name]string {
	out := make(map[filter.Name]string, len(in))
	for k, v := range in {
		out[filter.Name(k)] = v
	}
	return out
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if err := s.decode(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}

	d := s.newDashboard()
	view := d.View()
	if len(req.Filters) > 0 {
		v, err := d.Apply(toNames(req.Filters))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view = v
	}

	sess, err := s.sessions.create(d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "session created", "session", sess.id)
	w.Header().Set("Location", "/api/sessions/"+sess.id)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sessionResponse{ID: sess.id, View: view})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.remove(chi.URLParam(r, "session")) {
		s.fail(w, r, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request, sess *session) {
	render.JSON(w, r, sessionResponse{ID: sess.id, View: sess.dash.View()})
}

func (s *Server) resetFilters(w http.ResponseWriter, r *http.Request, sess *session) {
	render.JSON(w, r, sessionResponse{ID: sess.id, View: sess.dash.Reset()})
}

func (s *Server) applyFilters(w http.ResponseWriter, r *http.Request, sess *session) {
	var req filtersRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := sess.dash.Apply(toNames(req.Filters))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse{ID: sess.id, View: view})
}

func (s *Server) setFilter(w http.ResponseWriter, r *http.Request, sess *session) {
	name, err := filter.ParseName(chi.URLParam(r, "filter"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %q", err, chi.URLParam(r, "filter")))
		return
	}
	var req setFilterRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := sess.dash.Set(name, req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse{ID: sess.id, View: view})
}

func (s *Server) setDates(w http.ResponseWriter, r *http.Request, sess *session) {
	var req datesRequest
	if err := s.decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := sess.dash.SetDates(req.Start, req.End)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, sessionResponse{ID: sess.id, View: view})
}

func (s *Server) getOptions(w http.ResponseWriter, r *http.Request, sess *session) {
	name, err := filter.ParseName(chi.URLParam(r, "filter"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %q", err, chi.URLParam(r, "filter")))
		return
	}
	opts, err := sess.dash.Options(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	selected, _ := sess.dash.State().Get(name)
	render.JSON(w, r, optionsResponse{Filter: name, Selected: selected, Options: opts})
}

func (s *Server) getRows(w http.ResponseWriter, r *http.Request, sess *session) {
	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, sess.dash.Subset()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func (s *Server) listCharts(w http.ResponseWriter, r *http.Request, sess *session) {
	render.JSON(w, r, sess.dash.View().Charts)
}

var imageTypes = map[string]string{
	"png": "image/png",
	"svg": "image/svg+xml",
	"pdf": "application/pdf",
}

// getChart serves a chart spec as JSON, or rendered when the id carries an
// image extension (calls_region.png).
func (s *Server) getChart(w http.ResponseWriter, r *http.Request, sess *session) {
	param := chi.URLParam(r, "chart")
	ext := strings.TrimPrefix(path.Ext(param), ".")
	id := strings.TrimSuffix(param, path.Ext(param))

	spec, ok := chart.Find(sess.dash.View().Charts, id)
	if !ok {
		s.fail(w, r, newAPIError(http.StatusNotFound, CodeChartNotFound, "chart not found", id))
		return
	}
	if ext == "" || ext == "json" {
		render.JSON(w, r, spec)
		return
	}
	ctype, ok := imageTypes[ext]
	if !ok {
		s.fail(w, r, newAPIError(http.StatusBadRequest, CodeInvalidRequest, "unsupported image format", ext))
		return
	}

	var buf bytes.Buffer
	if err := chart.WriteImage(&buf, spec, ext, chart.DefaultWidth, chart.DefaultHeight); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(buf.Bytes())
}

func attachment(w http.ResponseWriter, ctype, name string, body []byte) {
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(body)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request, sess *session) {
	view := sess.dash.View()
	var buf bytes.Buffer
	err := export.WriteXLSX(&buf, export.Workbook{
		Source:  view.Source,
		Filters: sess.dash.FilterLines(),
		Summary: view.Summary,
		Tables:  view.Tables,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "incidents.xlsx", buf.Bytes())
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, sess *session) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, sess.dash.Subset()); err != nil {
		s.fail(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", "incidents.csv", buf.Bytes())
}

func (s *Server) reportPDF(w http.ResponseWriter, r *http.Request, sess *session) {
	var buf bytes.Buffer
	if err := chart.WriteReport(&buf, sess.dash.Report()); err != nil {
		s.fail(w, r, err)
		return
	}
	attachment(w, "application/pdf", "incidents-report.pdf", buf.Bytes())
}
