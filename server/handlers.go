package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fairlabs/stms-dashboard/internal/config"
	"github.com/fairlabs/stms-dashboard/internal/dashboard"
	"github.com/fairlabs/stms-dashboard/internal/downloads"
	"github.com/fairlabs/stms-dashboard/internal/history"
	"github.com/fairlabs/stms-dashboard/internal/input"
	"github.com/fairlabs/stms-dashboard/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

type historyReader interface {
	Recent(ctx context.Context, q history.Query) (*history.Result, error)
	Health(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	log       *slog.Logger
	cfg       *config.Server
	dash      *dashboard.Dashboard
	downloads downloads.Store
	history   historyReader
	page      *template.Template
	now       func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

type pageData struct {
	Form        input.Form
	View        dashboard.View
	DownloadURL string
}

func newServer(log *slog.Logger, cfg *config.Server, dash *dashboard.Dashboard, store downloads.Store, hist historyReader) (*server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &server{
		log:       log,
		cfg:       cfg,
		dash:      dash,
		downloads: store,
		history:   hist,
		page:      page,
		now:       time.Now,
	}, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/search", s.handleSearch)
	r.Get("/downloads/{id}", s.handleDownload)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Post("/search", s.handleAPISearch)
		r.Get("/history", s.handleHistory)
	})

	return r
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, input.DefaultForm(s.now()), dashboard.View{Stage: dashboard.StageIdle})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, input.DefaultForm(s.now()), dashboard.View{
			Stage: dashboard.StageIdle,
			Error: "Error: " + err.Error(),
		})
		return
	}

	form := input.FromValues(r.PostForm)
	req, err := form.Request()
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, form, dashboard.View{
			Stage: dashboard.StageIdle,
			Error: "Error: " + err.Error(),
		})
		return
	}

	s.renderPage(w, http.StatusOK, form, s.dash.Handle(r.Context(), req))
}

func (s *server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	var form input.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	req, err := form.Request()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	view := s.dash.Handle(r.Context(), req)
	status := http.StatusOK
	if view.Error != "" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, view)
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, ok, err := s.downloads.Get(r.Context(), id)
	if err != nil {
		s.log.Error("load download", slog.String("id", id), slog.Any("err", err))
		http.Error(w, "download unavailable", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "download expired or not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", render.DownloadContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+render.DownloadFileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "search history is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	result, err := s.history.Recent(ctx, history.Query{
		Text:    strings.TrimSpace(q.Get("q")),
		Outcome: strings.TrimSpace(q.Get("outcome")),
		From:    clampInt(q.Get("from"), 0, 10_000),
		Size:    clampInt(q.Get("size"), s.cfg.HistoryPage, s.cfg.HistoryMaxPage),
		Start:   parseTime(q.Get("start")),
		End:     parseTime(q.Get("end")),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var errs []error
	if s.history != nil {
		if err := s.history.Health(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p, ok := s.downloads.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) renderPage(w http.ResponseWriter, status int, form input.Form, view dashboard.View) {
	data := pageData{Form: form, View: view}
	if view.DownloadID != "" {
		data.DownloadURL = "/downloads/" + view.DownloadID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("render page", slog.Any("err", err))
	}
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
