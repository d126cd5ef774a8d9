package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelier-lab/archmentor/internal/checkpoint"
	"github.com/atelier-lab/archmentor/internal/config"
	"github.com/atelier-lab/archmentor/internal/router"
	"github.com/atelier-lab/archmentor/internal/session"
	"github.com/atelier-lab/archmentor/internal/telemetry"
	"github.com/atelier-lab/archmentor/pkg/models"
)

// Server is the HTTP surface over the conversation pipeline
type Server struct {
	cfg         *config.Config
	store       *session.Store
	orch        *router.Orchestrator
	recorder    *telemetry.Recorder
	checkpoints *checkpoint.Manager
	logger      *slog.Logger
	httpServer  *http.Server
}

// New creates the server. checkpoints may be nil to disable persistence.
func New(cfg *config.Config, store *session.Store, orch *router.Orchestrator, recorder *telemetry.Recorder, checkpoints *checkpoint.Manager, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		orch:        orch,
		recorder:    recorder,
		checkpoints: checkpoints,
		logger:      logger.With("component", "server"),
	}
}

// Routes builds the chi router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))
	r.Use(s.cors)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/turns", s.handleTurn)
			r.Post("/reset", s.handleReset)
			r.Get("/transcript", s.handleTranscript)
			r.Get("/phase", s.handlePhase)
			r.Post("/phase/advance", s.handleAdvancePhase)
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains within
// the configured shutdown window
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	window := time.Duration(s.cfg.Server.ShutdownSeconds) * time.Second
	if window <= 0 {
		window = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.cfg.Server.FrontendOrigin; origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	ParticipantID string `json:"participant_id"`
	Arm           string `json:"arm"`
}

type createSessionResponse struct {
	SessionID string       `json:"session_id"`
	Arm       models.Arm   `json:"arm"`
	Phase     models.Phase `json:"phase"`
}

var validArms = map[models.Arm]bool{
	models.ArmMentor:  true,
	models.ArmGeneric: true,
	models.ArmControl: true,
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		respondError(w, http.StatusBadRequest, "participant_id is required")
		return
	}
	arm := models.Arm(req.Arm)
	if !validArms[arm] {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown arm %q", req.Arm))
		return
	}

	sess := s.store.Create(req.ParticipantID, arm)
	s.backupConfig(sess.ID())
	s.saveCheckpoint(sess.ID())

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID(),
		Arm:       sess.Arm(),
		Phase:     sess.CurrentPhase(),
	})
}

// backupConfig copies the effective configuration into the session directory
// so a run's settings stay auditable alongside its artifacts
func (s *Server) backupConfig(sessionID string) {
	data, err := toml.Marshal(s.cfg)
	if err == nil {
		err = os.WriteFile(filepath.Join(s.recorder.SessionDir(sessionID), "config_backup.toml"), data, 0o644)
	}
	if err != nil {
		s.logger.Warn("Config backup failed", "session_id", sessionID, "error", err)
	}
}

type turnRequest struct {
	Text      string `json:"text"`
	ImagePath string `json:"image_path,omitempty"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.ImagePath == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	view, err := s.orch.HandleUserTurn(r.Context(), id, req.Text, req.ImagePath)
	if err != nil {
		if errors.Is(err, session.ErrTerminal) {
			respondError(w, http.StatusConflict, "session is complete; reset to start over")
			return
		}
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	s.saveCheckpoint(id)
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fresh, err := s.orch.Reset(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if s.checkpoints != nil {
		s.checkpoints.Remove(id)
	}
	s.saveCheckpoint(fresh.ID())

	respondJSON(w, http.StatusOK, createSessionResponse{
		SessionID: fresh.ID(),
		Arm:       fresh.Arm(),
		Phase:     fresh.CurrentPhase(),
	})
}

type transcriptResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []session.Turn `json:"turns"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.orch.Transcript(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse{SessionID: id, Turns: turns})
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.orch.PhaseStatus(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type advanceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleAdvancePhase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if sess.Arm() == models.ArmMentor {
		respondError(w, http.StatusConflict, "mentor sessions advance by completing curriculum steps")
		return
	}

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		respondError(w, http.StatusBadRequest, "a reason is required for manual advancement")
		return
	}

	tr, err := s.orch.AdvancePhase(id, req.Reason)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.saveCheckpoint(id)
	respondJSON(w, http.StatusOK, tr)
}

func (s *Server) saveCheckpoint(sessionID string) {
	if s.checkpoints == nil {
		return
	}
	sess, err := s.store.Get(sessionID)
	if err != nil {
		return
	}
	sess.Begin()
	s.checkpoints.Save(sess)
	sess.End()
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, errorResponse{Error: msg})
}
