// Package api is the HTTP boundary: live session lifecycle endpoints, room
// inspection, client ICE configuration, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/auth"
	"liveclass/internal/metrics"
	"liveclass/internal/rooms"
	"liveclass/pkg/types"
)

// Gate is the eligibility surface the HTTP layer calls
type Gate interface {
	AuthorizeMentorStart(ctx context.Context, mentorID, courseID string) (string, error)
	AuthorizeStudentJoin(ctx context.Context, studentID, courseID string) (string, error)
	AuthorizeMentorEnd(ctx context.Context, mentorID, sessionID string) error
	CourseHistory(ctx context.Context, mentorID, courseID string) ([]*types.LiveSession, error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Options carries everything optional about the server
type Options struct {
	AllowedOrigins []string
	ICEServers     []webrtc.ICEServer
	HealthChecks   map[string]HealthCheck
	WebSocket      http.Handler
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components.
// Authorization decisions belong to the gate; this layer maps its errors to status codes
type Server struct {
	gate     Gate
	registry *rooms.Registry
	verifier *auth.Verifier
	options  Options
	router   chi.Router
	logger   zerolog.Logger
}

func NewServer(gate Gate, registry *rooms.Registry, verifier *auth.Verifier, options Options) *Server {
	s := &Server{
		gate:     gate,
		registry: registry,
		verifier: verifier,
		options:  options,
		router:   chi.NewRouter(),
		logger:   log.With().Str("module", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(s.corsHandler())
	r.Use(hlog.NewHandler(s.logger))

	// The upgrade path skips response-wrapping middleware
	if s.options.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", s.options.WebSocket)
	}

	r.Group(func(r chi.Router) {
		r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}))
		r.Use(metrics.Middleware)

		r.Get("/health", s.healthCheck)
		r.Method(http.MethodGet, "/metrics", metrics.Handler())

		r.Route("/live", func(r chi.Router) {
			r.Use(s.authenticate)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(types.RoleMentor))
				r.Post("/start", s.startSession)
				r.Post("/end", s.endSession)
				r.Get("/history", s.courseHistory)
			})

			r.With(requireRole(types.RoleStudent)).Get("/room-id", s.roomID)

			r.Get("/rooms/{sessionId}", s.roomSnapshot)
			r.Get("/ice-config", s.iceConfig)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := s.options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         86400,
	})
}

// Request/Response types for JSON serialization
type StartSessionRequest struct {
	CourseID string `json:"courseId"`
}

type EndSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type SessionIDResponse struct {
	SessionID string `json:"sessionId"`
}

type HistoryResponse struct {
	Sessions []*types.LiveSession `json:"sessions"`
}

type ICEConfigResponse struct {
	ICEServers         []webrtc.ICEServer `json:"iceServers"`
	ICETransportPolicy string             `json:"iceTransportPolicy"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	Rooms      rooms.Stats       `json:"rooms"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /live/start - mentor opens a live session for a course they own
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(req.CourseID) {
		s.sendError(w, "Valid courseId is required", http.StatusBadRequest)
		return
	}

	sessionID, err := s.gate.AuthorizeMentorStart(r.Context(), caller.UserID, req.CourseID)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	hlog.FromRequest(r).Info().
		Str("session_id", sessionID).
		Str("course_id", req.CourseID).
		Str("mentor_id", caller.UserID).
		Msg("live session started")
	s.sendJSON(w, http.StatusOK, SessionIDResponse{SessionID: sessionID})
}

// GET /live/room-id?courseId= - enrolled student looks up the live session
func (s *Server) roomID(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	courseID := r.URL.Query().Get("courseId")
	if !types.IsValidID(courseID) {
		s.sendError(w, "Valid courseId is required", http.StatusBadRequest)
		return
	}

	sessionID, err := s.gate.AuthorizeStudentJoin(r.Context(), caller.UserID, courseID)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, SessionIDResponse{SessionID: sessionID})
}

// POST /live/end - owning mentor ends the session; room members are told
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var req EndSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(req.SessionID) {
		s.sendError(w, "Valid sessionId is required", http.StatusBadRequest)
		return
	}

	if err := s.gate.AuthorizeMentorEnd(r.Context(), caller.UserID, req.SessionID); err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	notified := s.registry.NotifyRoom(req.SessionID, types.SessionEndedMessage{
		Type:      types.MessageTypeSessionEnded,
		SessionID: req.SessionID,
	})
	hlog.FromRequest(r).Info().
		Str("session_id", req.SessionID).
		Int("notified", notified).
		Msg("live session ended")

	s.sendJSON(w, http.StatusOK, SessionIDResponse{SessionID: req.SessionID})
}

// GET /live/history?courseId= - the course's sessions, newest first
func (s *Server) courseHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	courseID := r.URL.Query().Get("courseId")
	if !types.IsValidID(courseID) {
		s.sendError(w, "Valid courseId is required", http.StatusBadRequest)
		return
	}

	sessions, err := s.gate.CourseHistory(r.Context(), caller.UserID, courseID)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, HistoryResponse{Sessions: sessions})
}

// GET /live/rooms/{sessionId} - who is present and who is the mentor
func (s *Server) roomSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if !types.IsValidID(sessionID) {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	snapshot, ok := s.registry.Snapshot(sessionID)
	if !ok {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	s.sendJSON(w, http.StatusOK, snapshot)
}

// GET /live/ice-config - STUN/TURN servers for the browser peer connection
func (s *Server) iceConfig(w http.ResponseWriter, r *http.Request) {
	servers := s.options.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	s.sendJSON(w, http.StatusOK, ICEConfigResponse{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll.String(),
	})
}

// GET /health - dependency checks plus room statistics
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(s.options.HealthChecks))
	for name, check := range s.options.HealthChecks {
		if err := check(ctx); err != nil {
			status = "unhealthy"
			components[name] = "error: " + err.Error()
			continue
		}
		components[name] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, HealthResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Rooms:      s.registry.Stats(),
	})
}

// sendDomainError maps the error taxonomy onto status codes
func (s *Server) sendDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrForbidden):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrNotReady):
		s.sendError(w, "No live session for this course", http.StatusConflict)
	case errors.Is(err, types.ErrNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, types.ErrMalformed):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
