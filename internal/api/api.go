// Package api provides the consultation HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kamilpajak/nourish/internal/auth"
	"github.com/kamilpajak/nourish/internal/consult"
	"github.com/kamilpajak/nourish/internal/knowledge"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 20 << 20

// Server is the API server.
type Server struct {
	service      *consult.Service
	store        consult.Store
	kb           *knowledge.Bank
	authVerifier *auth.Verifier
	log          *logrus.Logger
	mux          *http.ServeMux
	handler      http.Handler
	maxUpload    int64
}

// Config holds API server configuration.
type Config struct {
	Service        *consult.Service
	Knowledge      *knowledge.Bank // optional
	AuthVerifier   *auth.Verifier  // nil serves the API without authentication
	Logger         *logrus.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := newServer(cfg)
	s.registerRoutes()
	return s
}

func newServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		service:      cfg.Service,
		store:        cfg.Service.Store(),
		kb:           cfg.Knowledge,
		authVerifier: cfg.AuthVerifier,
		log:          logger,
		mux:          http.NewServeMux(),
		maxUpload:    maxUpload,
	}

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	s.handler = c.Handler(s.logRequests(s.mux))
	return s
}

func (s *Server) registerRoutes() {
	protect := func(h http.HandlerFunc) http.HandlerFunc { return h }
	writeKB := s.handleAddKnowledge
	indexKB := s.handleBuildIndex
	if s.authVerifier != nil {
		mw := auth.Middleware(s.authVerifier)
		protect = func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(mw, h) }
		writeKB = auth.RequirePermission(auth.PermissionKnowledgeWrite, writeKB)
		indexKB = auth.RequirePermission(auth.PermissionKnowledgeWrite, indexKB)
	}

	// Public endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/rules/recommend", s.handleRecommend)

	s.registerSessionRoutes(protect)

	s.mux.HandleFunc("GET /api/knowledge", protect(s.handleListKnowledge))
	s.mux.HandleFunc("GET /api/knowledge/search", protect(s.handleSearchKnowledge))
	s.mux.HandleFunc("POST /api/knowledge", protect(writeKB))
	s.mux.HandleFunc("POST /api/knowledge/index", protect(indexKB))
}

func (s *Server) registerSessionRoutes(protect func(http.HandlerFunc) http.HandlerFunc) {
	s.mux.HandleFunc("POST /api/sessions", protect(s.handleCreateSession))
	s.mux.HandleFunc("GET /api/sessions", protect(s.handleListSessions))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}", protect(s.handleGetSession))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/progress", protect(s.handleGetProgress))
	s.mux.HandleFunc("POST /api/sessions/{sessionID}/artifacts", protect(s.handleUploadArtifact))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/artifacts", protect(s.handleListArtifacts))
	s.mux.HandleFunc("POST /api/sessions/{sessionID}/questions", protect(s.handleGenerateQuestions))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/questions", protect(s.handleGetQuestions))
	s.mux.HandleFunc("PUT /api/sessions/{sessionID}/answers", protect(s.handleSaveAnswers))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/answers", protect(s.handleGetAnswers))
	s.mux.HandleFunc("POST /api/sessions/{sessionID}/tests", protect(s.handleRecommendTests))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/tests", protect(s.handleGetTests))
	s.mux.HandleFunc("POST /api/sessions/{sessionID}/plan", protect(s.handleGeneratePlan))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/plan", protect(s.handleGetPlan))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/plan.html", protect(s.handlePlanHTML))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/plan.pdf", protect(s.handlePlanPDF))
	s.mux.HandleFunc("GET /api/sessions/{sessionID}/prompts/{kind}", protect(s.handlePreviewPrompt))
}

func (s *Server) withAuth(middleware func(http.Handler) http.Handler, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(http.HandlerFunc(handler)).ServeHTTP(w, r)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
