// main.go — точка входа HalamangGaling API.
// Инициализация: config, logger, PostgreSQL, миграции, сервисы,
// rate limiter (Redis), мониторинг зависимостей, HTTP-сервер.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Queas/HGPH-4.0/internal/api/handlers"
	"github.com/Queas/HGPH-4.0/internal/api/middleware"
	"github.com/Queas/HGPH-4.0/internal/auth"
	"github.com/Queas/HGPH-4.0/internal/config"
	"github.com/Queas/HGPH-4.0/internal/database"
	"github.com/Queas/HGPH-4.0/internal/ratelimit"
	"github.com/Queas/HGPH-4.0/internal/repository"
	"github.com/Queas/HGPH-4.0/internal/server"
	"github.com/Queas/HGPH-4.0/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("HalamangGaling API запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	plantRepo := repository.NewPlantRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 6. Токены: собственные HS256 и, опционально, RS256 внешнего IdP
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if cfg.JWTJWKSURL != "" {
		if err := tokens.WithJWKS(cfg.JWTJWKSURL, logger); err != nil {
			logger.Error("Ошибка инициализации JWKS", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Включена проверка токенов внешнего IdP", slog.String("jwks_url", cfg.JWTJWKSURL))
	}

	// 7. Services
	publicCache := service.NewPublicCache(cfg.PublicCacheSize, cfg.PublicCacheTTL)
	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, publicCache, cfg.PageSize, cfg.PublicLimit, logger)
	authSvc := service.NewAuthService(userRepo, tokens, logger)
	userSvc := service.NewUserService(userRepo, cfg.PageSize, logger)
	plantSvc := service.NewPlantService(plantRepo, cfg.PageSize, logger)

	// 8. Администратор по умолчанию
	if cfg.BootstrapAdminEmail != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			logger.Error("Ошибка создания администратора", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Администратор проверен", slog.String("email", cfg.BootstrapAdminEmail))
	}

	// 9. Rate limiter (Redis), если задан HG_REDIS_ADDR
	var limiter ratelimit.Limiter
	var redisChecker handlers.ReadinessChecker
	if cfg.RateLimitEnabled() {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("Ошибка инициализации rate limiter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		redisChecker = redisLimiter
		logger.Info("Ограничение частоты запросов включено",
			slog.String("redis_addr", cfg.RedisAddr),
			slog.Int("requests", cfg.RateLimitRequests),
			slog.String("window", cfg.RateLimitWindow.String()),
		)
	} else {
		logger.Warn("HG_REDIS_ADDR не задан, ограничение частоты запросов выключено")
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"halamanggaling-api",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. API handler и JWT middleware
	pgChecker, err := database.NewReadinessChecker(pool, cfg)
	if err != nil {
		logger.Error("Ошибка проверки готовности PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, redisChecker)
	if dephealthSvc != nil {
		healthHandler.WithDependencies(dephealthSvc)
	}
	apiHandler := handlers.NewAPIHandler(healthHandler, knowledgeSvc, plantSvc, authSvc, userSvc, logger)
	jwtAuth := middleware.NewJWTAuth(tokens, authSvc, logger)

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, limiter)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("HalamangGaling API остановлен")
}
