package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/plastmaid/internal/analytics"
	"github.com/ent0n29/plastmaid/internal/config"
	"github.com/ent0n29/plastmaid/internal/detector"
	"github.com/ent0n29/plastmaid/internal/observability"
	"github.com/ent0n29/plastmaid/internal/pipeline"
	"github.com/ent0n29/plastmaid/internal/session"
	"github.com/ent0n29/plastmaid/internal/workspace"
)

// AnalyzePath is the upload route the web client posts footage to.
const AnalyzePath = "/analyze_underwater_footage"

type Processor interface {
	Process(ctx context.Context, videoPath string, meta session.Metadata) (string, error)
	Discard(sessionID string)
	Admission() pipeline.AdmissionStats
}

type Deps struct {
	Workspaces   *workspace.Manager
	Processor    Processor
	Analytics    *analytics.Store
	Metrics      *observability.Metrics
	Logger       *log.Logger
	DetectorName string
}

type Server struct {
	cfg          config.Config
	workspaces   *workspace.Manager
	processor    Processor
	analytics    *analytics.Store
	metrics      *observability.Metrics
	logger       *log.Logger
	detectorName string
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:          cfg,
		workspaces:   deps.Workspaces,
		processor:    deps.Processor,
		analytics:    deps.Analytics,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		detectorName: deps.DetectorName,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				if cfg.AllowedOrigin != "" && strings.EqualFold(origin, cfg.AllowedOrigin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	cors := allowOrigin(s.cfg.AllowedOrigin)
	r.With(cors).Post(AnalyzePath, s.handleAnalyze)
	r.With(cors).Options(AnalyzePath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/analytics", s.handleAnalyticsSummary)
	r.Get("/v1/analytics/ws", s.handleAnalyticsWS)
	r.Get("/v1/analytics/{id}", s.handleGetAnalytics)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"detector": s.detectorName,
	})
}

// mockFallback reports whether the mock detector is serving although it was
// not asked for. Uploads then come back unannotated.
func (s *Server) mockFallback() bool {
	return s.detectorName == detector.MockName && !strings.EqualFold(strings.TrimSpace(s.cfg.DetectorMode), "mock")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":   "ready",
		"detector": s.detectorName,
	}
	if s.mockFallback() {
		status = http.StatusServiceUnavailable
		body["status"] = "not_ready"
		body["reason"] = "detector CLI or model unavailable, mock detector active"
	}
	if s.processor != nil {
		body["admission"] = s.processor.Admission()
	}
	if s.analytics != nil {
		body["analytics_entries"] = s.analytics.Len()
	}
	respondJSON(w, status, body)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, errorResponse{Error: message, Details: details})
}
