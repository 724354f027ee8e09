package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/ruleset-engine/internal/config"
	"github.com/terra-clan/ruleset-engine/internal/grading"
	"github.com/terra-clan/ruleset-engine/internal/health"
	"github.com/terra-clan/ruleset-engine/internal/placement"
	"github.com/terra-clan/ruleset-engine/internal/registry"
	"github.com/terra-clan/ruleset-engine/internal/rewards"
	"github.com/terra-clan/ruleset-engine/internal/scoring"
)

// Dependencies are the services the HTTP surface exposes
type Dependencies struct {
	Registry  *registry.Registry
	Scoring   *scoring.Resolver
	Rewards   *rewards.Resolver
	Grader    *grading.Grader
	Placement *placement.Service
	Health    *health.Registry
}

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	registry  *registry.Registry
	scoring   *scoring.Resolver
	rewards   *rewards.Resolver
	grader    *grading.Grader
	placement *placement.Service
	health    *health.Registry
	now       func() time.Time
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		config:    cfg,
		registry:  deps.Registry,
		scoring:   deps.Scoring,
		rewards:   deps.Rewards,
		grader:    deps.Grader,
		placement: deps.Placement,
		health:    deps.Health,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.health == nil {
		s.health = health.NewRegistry()
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/placement/sessions", func(r chi.Router) {
			// The websocket stays open past the request timeout
			r.Get("/{id}/ws", s.handlePlacementWS)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Use(limitBody(maxBodyBytes))
				r.Post("/", s.handleStartPlacement)
				r.Get("/{id}", s.handleGetPlacement)
				r.Post("/{id}/advance", s.handleAdvancePlacement)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(limitBody(maxBodyBytes))

			r.Route("/rulesets", func(r chi.Router) {
				r.Get("/status", s.handleRuleSetStatus)

				r.Route("/{domain}", func(r chi.Router) {
					r.Get("/", s.handleListRuleSets)
					r.Post("/", s.handleCreateRuleSet)
					r.Get("/active", s.handleGetActiveRuleSet)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetRuleSet)
						r.Put("/", s.handleUpdateRuleSet)
						r.Delete("/", s.handleDeleteRuleSet)
						r.Post("/activate", s.handleActivateRuleSet)
					})
				})
			})

			r.Post("/scoring/resolve", s.handleResolvePoints)
			r.Post("/rewards/resolve", s.handleResolveCoins)
			r.Post("/competitions/grade", s.handleGrade)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
