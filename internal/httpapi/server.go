// Package httpapi exposes the outreach operations as a JSON REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/orchestrator"
	"github.com/Tegath/kaleads/internal/resources"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server routes HTTP requests to an App.
type Server struct {
	app    *app.App
	logger *zap.Logger
	router *chi.Mux
}

// NewServer creates a Server. requestTimeout bounds every request; zero
// disables the bound.
func NewServer(a *app.App, requestTimeout time.Duration) *Server {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{app: a, logger: logger.Named("http")}
	s.setupRoutes(requestTimeout)
	return s
}

func (s *Server) setupRoutes(requestTimeout time.Duration) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/resolvers", s.handleResolvers)

	r.Post("/api/v1/records", s.handleGenerate)
	r.Post("/api/v1/records/{recordID}/feedback", s.handleFeedback)
	r.Post("/api/v1/resolve", s.handleResolve)
	r.Get("/api/v1/compare", s.handleCompare)

	r.Route("/api/v1/contacts", func(r chi.Router) {
		r.Get("/", s.handleContacts)
		r.Get("/{contactID}/history", s.handleHistory)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"resolvers": len(s.app.Orchestrator.Resolvers()),
	})
}

func (s *Server) handleResolvers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, resources.Catalogue(s.app.Orchestrator.Resolvers()))
}

type generateRequest struct {
	ContactID string                   `json:"contact_id"`
	ClientID  string                   `json:"client_id"`
	Company   domain.CompanyDescriptor `json:"company"`
}

type generateResponse struct {
	Record  *domain.EmailGenerationRecord `json:"record"`
	Warning string                        `json:"warning,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ContactID) == "" || strings.TrimSpace(req.ClientID) == "" {
		respondError(w, http.StatusBadRequest, "contact_id and client_id are required", nil)
		return
	}
	if err := req.Company.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid company", err)
		return
	}

	rec, err := s.app.Orchestrator.GenerateFor(r.Context(), req.ContactID, req.ClientID, req.Company)
	if errors.Is(err, orchestrator.ErrLedger) && rec != nil {
		respondJSON(w, http.StatusCreated, generateResponse{Record: rec, Warning: err.Error()})
		return
	}
	if err != nil {
		s.respondFailure(w, "generation failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, generateResponse{Record: rec})
}

type resolveRequest struct {
	Field    domain.FieldID           `json:"field"`
	ClientID string                   `json:"client_id"`
	Company  domain.CompanyDescriptor `json:"company"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := domain.ValidateField(req.Field); err != nil {
		respondError(w, http.StatusBadRequest, "invalid field", err)
		return
	}
	if err := req.Company.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid company", err)
		return
	}

	f, err := s.app.Orchestrator.ResolveFieldFor(r.Context(), req.Field, req.ClientID, req.Company)
	if err != nil {
		s.respondFailure(w, "resolution failed", err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

type feedbackRequest struct {
	// Rating is a label ("bad") or its ordinal, as a string or a number.
	Rating       any      `json:"rating"`
	Issues       []string `json:"issues"`
	Improvements []string `json:"improvements"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rating == nil {
		respondError(w, http.StatusBadRequest, "rating is required", nil)
		return
	}
	rating, err := domain.ParseRating(fmt.Sprint(req.Rating))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rating", err)
		return
	}
	entry, err := domain.NewFeedbackEntry(rating, req.Issues, req.Improvements)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid feedback", err)
		return
	}

	review, err := s.app.Review(r.Context(), recordID, entry)
	if err != nil {
		s.respondFailure(w, "feedback failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.app.History(r.Context(), chi.URLParam(r, "contactID"))
	if err != nil {
		s.respondFailure(w, "failed to read history", err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	contacts, err := s.app.Ledger.RecentContacts(r.Context(), limit)
	if err != nil {
		s.respondFailure(w, "failed to list contacts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"contacts": contacts,
		"count":    len(contacts),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	before, after := r.URL.Query().Get("before"), r.URL.Query().Get("after")
	if before == "" || after == "" {
		respondError(w, http.StatusBadRequest, "before and after are required", nil)
		return
	}
	c, err := s.app.Compare(r.Context(), before, after)
	if err != nil {
		s.respondFailure(w, "comparison failed", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// ─── Responses ──────────────────────────────────────────────────────────────

// respondFailure maps an operation error to its status code.
func (s *Server) respondFailure(w http.ResponseWriter, message string, err error) {
	switch {
	case cascade.IsConfigError(err):
		respondError(w, http.StatusUnprocessableEntity, "configuration error", err)
	case errors.Is(err, app.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case app.IsUserError(err):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		s.logger.Error(message, zap.Error(err))
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
