// Пакет server — HTTP-сервер HalamangGaling API с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Queas/HGPH-4.0/internal/api/handlers"
	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/config"
	"github.com/Queas/HGPH-4.0/internal/domain/rbac"
	"github.com/Queas/HGPH-4.0/internal/ratelimit"
)

// corsMaxAge — время кэширования preflight-ответа браузером, секунды.
const corsMaxAge = 600

// Server — HTTP-сервер HalamangGaling API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// limiter — nil, если ограничение частоты запросов отключено.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	limiter ratelimit.Limiter,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, handler, jwtAuth, limiter),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор API.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	limiter ratelimit.Limiter,
) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           corsMaxAge,
		}))
	}

	// Служебные endpoints — без аутентификации и лимита
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	requireAuth := jwtAuth.Middleware()
	optionalAuth := jwtAuth.Optional()

	router.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, cfg.RateLimitRequests, cfg.RateLimitWindow, jwtAuth.Subject, logger))
		}

		r.Get("/health", handler.APIHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handler.Register)
			r.Post("/login", handler.Login)
			r.With(requireAuth).Get("/profile", handler.Profile)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth, middleware.RequireRole(rbac.RoleAdmin))
			r.Get("/", handler.ListUsers)
			r.Patch("/{id}", handler.UpdateUserAccess)
		})

		r.Route("/indigenous-knowledge", func(r chi.Router) {
			r.Get("/public", handler.ListPublicKnowledge)

			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/", handler.ListKnowledge)
				r.Get("/{id}", handler.GetKnowledge)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/pending/ipr-review", handler.PendingIPRReview)
				r.Get("/community/{name}", handler.ListCommunityKnowledge)
				r.Post("/", handler.CreateKnowledge)
				r.Put("/{id}", handler.UpdateKnowledge)
				r.With(middleware.RequireRole(rbac.RoleAdmin)).Delete("/{id}", handler.ArchiveKnowledge)
				r.Post("/{id}/revoke-consent", handler.RevokeConsent)
				r.Get("/{id}/access-log", handler.GetAccessLog)
				r.Post("/{id}/approve-ipr", handler.ApproveIPR)
			})
		})

		r.Route("/medicinal-plants", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/", handler.ListPlants)
				r.Get("/search", handler.SearchPlants)
				r.Get("/{id}", handler.GetPlant)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", handler.CreatePlant)
				r.Put("/{id}", handler.UpdatePlant)
				r.Post("/{id}/review", handler.ReviewPlant)
				r.With(middleware.RequireRole(rbac.RoleAdmin)).Delete("/{id}", handler.ArchivePlant)
				r.Get("/{id}/versions", handler.GetPlantVersions)
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
