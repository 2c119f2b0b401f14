// Package server exposes dashboards over a JSON HTTP API. Each client works
// in its own session; every session reads the same dataset.
package server

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/geohead/incidentdash/config"
	"github.com/geohead/incidentdash/dashboard"
	"github.com/geohead/incidentdash/incident"
)

//go:embed index.html
var indexHTML embed.FS

const maxBodyBytes = 1 << 20

// Server routes API requests to per-session dashboards.
type Server struct {
	ds       *incident.Dataset
	loc      *time.Location
	logger   *slog.Logger
	sessions *sessions
	metrics  *Metrics
	validate *validator.Validate
	router   chi.Router
}

// New builds a server over ds using the server, rate limit and timezone
// settings of cfg.
func New(ds *incident.Dataset, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ds:       ds,
		loc:      loc,
		logger:   logger.With(slog.String("component", "server")),
		sessions: newSessions(cfg.Server.SessionTTL, cfg.Server.MaxSessions),
		validate: newValidator(),
	}
	s.metrics = newMetrics(s.sessions.len)
	s.router = s.routes(cfg)
	return s, nil
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) routes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metrics.instrument)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(newClientLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, s.logger).Handler)
		}
		r.Get("/", s.index)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.Post("/", s.createSession)
			r.Route("/{session}", func(r chi.Router) {
				r.Get("/", s.withSession(s.getView))
				r.Delete("/", s.deleteSession)
				r.Post("/reset", s.withSession(s.resetFilters))
				r.Patch("/filters", s.withSession(s.applyFilters))
				r.Put("/filters/{filter}", s.withSession(s.setFilter))
				r.Put("/dates", s.withSession(s.setDates))
				r.Get("/options/{filter}", s.withSession(s.getOptions))
				r.Get("/rows", s.withSession(s.getRows))
				r.Get("/charts", s.withSession(s.listCharts))
				r.Get("/charts/{chart}", s.withSession(s.getChart))
				r.Get("/export.xlsx", s.withSession(s.exportXLSX))
				r.Get("/export.csv", s.withSession(s.exportCSV))
				r.Get("/report.pdf", s.withSession(s.reportPDF))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, newAPIError(http.StatusNotFound, "NOT_FOUND", "resource not found", r.URL.Path))
	})
	return r
}

// withSession resolves the {session} parameter and holds the session's
// lock for the duration of h.
func (s *Server) withSession(h func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.get(chi.URLParam(r, "session"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sess.mu.Lock()
		defer sess.mu.Unlock()
		h(w, r, sess)
	}
}

func (s *Server) newDashboard() *dashboard.Dashboard {
	return dashboard.New(s.ds, s.loc, dashboard.WithObserver(s.metrics.observeRecompute))
}

// decode reads a JSON body into v and validates it. An empty body is
// accepted when allowEmpty is set.
func (s *Server) decode(r *http.Request, v any, allowEmpty bool) error {
	if err := render.DecodeJSON(io.LimitReader(r.Body, maxBodyBytes), v); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return newAPIError(http.StatusBadRequest, CodeInvalidRequest, "invalid request body", err.Error())
		}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return newAPIError(http.StatusBadRequest, CodeInvalidRequest, "invalid request body", err.Error())
		}
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		return newAPIError(http.StatusBadRequest, CodeValidationFailed, "request validation failed", details)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "datetime":
		return fmt.Sprintf("must be a date in the form %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	data, err := indexHTML.ReadFile("index.html")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

type healthResponse struct {
	Status   string    `json:"status"`
	Source   string    `json:"source"`
	Rows     int       `json:"rows"`
	Skipped  int       `json:"skipped"`
	LoadedAt time.Time `json:"loaded_at"`
	Sessions int       `json:"sessions"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:   "ok",
		Source:   s.ds.Source,
		Rows:     s.ds.Len(),
		Skipped:  s.ds.Skipped,
		LoadedAt: s.ds.LoadedAt,
		Sessions: s.sessions.len(),
	})
}
