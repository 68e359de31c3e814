package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/unklstewy/intercept-sim/internal/auth"
	"github.com/unklstewy/intercept-sim/internal/db"
	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

type userStore interface {
	auth.UserStore
	UpdateLastLogin(ctx context.Context, id int) error
}

type engagementStore interface {
	Save(ctx context.Context, result *engagement.Result, batchID *uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*engagement.Result, error)
}

type batchStore interface {
	Save(ctx context.Context, report *batch.Report) error
	Get(ctx context.Context, id uuid.UUID) (*db.BatchRecord, error)
}

type scenarioStore interface {
	Create(ctx context.Context, s *db.Scenario) error
	GetByName(ctx context.Context, name string) (*db.Scenario, error)
	List(ctx context.Context) ([]*db.Scenario, error)
}

// Stores are the persistence dependencies of the server.
type Stores struct {
	Users       userStore
	Engagements engagementStore
	Batches     batchStore
	Scenarios   scenarioStore
	Healthy     func(ctx context.Context) bool
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	ctx     context.Context
	cfg     *config.Config
	stores  Stores
	authSvc *auth.Service
	jobs    *jobTracker
	engage  func(config.ScenarioConfig, guidance.Strategy, ...engagement.Option) (*engagement.Result, error)
	logger  *log.Logger

	// wg tracks background batches so shutdown can wait for them
	wg sync.WaitGroup
}

// NewServer creates a server. ctx bounds background batches.
func NewServer(ctx context.Context, cfg *config.Config, stores Stores, authSvc *auth.Service) *Server {
	return &Server{
		ctx:     ctx,
		cfg:     cfg,
		stores:  stores,
		authSvc: authSvc,
		jobs:    newJobTracker(),
		engage:  engagement.Run,
		logger:  log.Default(),
	}
}

// Wait blocks until background batches have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Compress(5)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// The stream hijacks the connection, so it stays outside Compress
			r.With(requireRole(auth.RoleAnalyst)).Get("/engagements/stream", s.handleStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Compress(5))

				r.Get("/auth/me", s.handleGetCurrentUser)

				r.Group(func(r chi.Router) {
					r.Use(requireRole(auth.RoleViewer))
					r.Get("/engagements/{id}", s.handleGetEngagement)
					r.Get("/batches/{id}", s.handleGetBatch)
					r.Get("/scenarios", s.handleListScenarios)
					r.Get("/scenarios/{name}", s.handleGetScenario)
				})

				r.Group(func(r chi.Router) {
					r.Use(requireRole(auth.RoleAnalyst))
					r.Post("/engagements", s.handleRunEngagement)
					r.Post("/batches", s.handleStartBatch)
					r.Post("/scenarios", s.handleCreateScenario)
				})
			})
		})
	})

	return r
}

// authMiddleware accepts "Authorization: Bearer <token>" or, for browser
// WebSocket clients that cannot set headers, a token query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if header := r.Header.Get("Authorization"); header != "" {
			var ok bool
			token, ok = strings.CutPrefix(header, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Missing authorization")
			return
		}

		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), claims)))
	})
}

// requireRole rejects requests whose token role is below role.
func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok || !auth.HasRole(claims.Role, role) {
				respondError(w, http.StatusForbidden, auth.ErrUnauthorized.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.stores.Healthy == nil || s.stores.Healthy(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"status":   map[bool]string{true: "ok", false: "degraded"}[healthy],
		"database": healthy,
		"batches":  s.jobs.running(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := s.authSvc.Login(r.Context(), s.stores.Users, req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.logger.Printf("Login error: %v", err)
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if err := s.stores.Users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		s.logger.Printf("Failed to record login for %s: %v", user.Username, err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

// runRequest selects a scenario for an engagement or batch. Config fields
// overlay the named scenario (or the server default).
type runRequest struct {
	Scenario string          `json:"scenario"`
	Config   json.RawMessage `json:"config"`
	Strategy string          `json:"strategy"`
	Record   bool            `json:"record"`
	Runs     int             `json:"runs"`
}

// resolve returns the validated scenario and strategy for req.
func (s *Server) resolve(ctx context.Context, req runRequest) (config.ScenarioConfig, guidance.Strategy, error) {
	sc := s.cfg.Scenario
	if req.Scenario != "" {
		saved, err := s.stores.Scenarios.GetByName(ctx, req.Scenario)
		if err != nil {
			return sc, 0, err
		}
		sc = saved.Config
	}
	// Slices would be shared with the base after an overlay
	sc.Salvo.LaunchOffsets = append([]float64(nil), sc.Salvo.LaunchOffsets...)
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &sc); err != nil {
			return sc, 0, errors.Join(config.ErrInvalidScenario, err)
		}
	}
	if err := sc.Validate(); err != nil {
		return sc, 0, err
	}

	strategy := guidance.StrategyPhaseBased
	if req.Strategy != "" {
		st, err := guidance.ParseStrategy(strings.ToLower(req.Strategy))
		if err != nil {
			return sc, 0, errors.Join(config.ErrInvalidScenario, err)
		}
		strategy = st
	}
	return sc, strategy, nil
}

// respondResolveError maps scenario resolution failures to status codes.
func respondResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrScenarioNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrInvalidScenario):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Failed to load scenario")
	}
}

func (s *Server) handleRunEngagement(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sc, strategy, err := s.resolve(r.Context(), req)
	if err != nil {
		respondResolveError(w, err)
		return
	}
	sc.Recording = req.Record

	result, err := s.engage(sc, strategy)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.stores.Engagements.Save(r.Context(), result, nil); err != nil {
		s.logger.Printf("Failed to store engagement %s: %v", result.ID, err)
	}
	respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid engagement ID")
		return
	}
	result, err := s.stores.Engagements.Get(r.Context(), id)
	if errors.Is(err, db.ErrEngagementNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Printf("Error loading engagement %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load engagement")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := s.stores.Scenarios.List(r.Context())
	if err != nil {
		s.logger.Printf("Error listing scenarios: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list scenarios")
		return
	}
	if list == nil {
		list = []*db.Scenario{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.stores.Scenarios.GetByName(r.Context(), chi.URLParam(r, "name"))
	if errors.Is(err, db.ErrScenarioNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load scenario")
		return
	}
	respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Config      json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "Scenario name is required")
		return
	}

	sc, _, err := s.resolve(r.Context(), runRequest{Config: req.Config})
	if err != nil {
		respondResolveError(w, err)
		return
	}

	claims, _ := auth.FromContext(r.Context())
	scenario := &db.Scenario{
		Name:        req.Name,
		Description: req.Description,
		Config:      sc,
		CreatedBy:   &claims.UserID,
	}
	err = s.stores.Scenarios.Create(r.Context(), scenario)
	if errors.Is(err, db.ErrScenarioExists) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Printf("Error creating scenario: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create scenario")
		return
	}
	respondJSON(w, http.StatusCreated, scenario)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
