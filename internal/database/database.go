// Пакет database — пул подключений каталога к PostgreSQL, миграции схемы
// (golang-migrate, embedded FS) и проверка готовности с учётом версии схемы.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Queas/HGPH-4.0/internal/config"
)

// applicationName видно в pg_stat_activity.
const applicationName = "halamanggaling-api"

const defaultReadyTimeout = 3 * time.Second

//go:embed migrations/*.sql
var migrationsFS embed.FS

// poolConfig строит конфигурацию пула из настроек HG_DB_*.
// Нулевые значения оставляют умолчания pgxpool.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DBMaxConns)
	}
	if cfg.DBMinConns > 0 {
		poolCfg.MinConns = int32(cfg.DBMinConns)
	}
	if cfg.DBMaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.DBMaxConnLifetime
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	return poolCfg, nil
}

// Connect создаёт пул подключений и проверяет доступность базы.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
		slog.Duration("max_conn_lifetime", poolCfg.MaxConnLifetime),
	)

	return pool, nil
}

// migrationURL возвращает URL драйвера pgx5 с экранированным паролем.
func migrationURL(cfg *config.Config) string {
	return fmt.Sprintf(
		"pgx5://%s@%s:%d/%s?sslmode=%s",
		url.UserPassword(cfg.DBUser, cfg.DBPassword).String(),
		cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode,
	)
}

// Migrate применяет миграции каталога (пользователи, записи знаний,
// справочник растений) до последней встроенной версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// LatestMigration возвращает номер последней встроенной миграции.
func LatestMigration() (uint, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("ошибка создания источника миграций: %w", err)
	}
	defer source.Close()

	version, err := source.First()
	if err != nil {
		return 0, fmt.Errorf("нет встроенных миграций: %w", err)
	}
	for {
		next, err := source.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("ошибка чтения миграций: %w", err)
		}
		version = next
	}
}

// ReadinessChecker — готовность PostgreSQL для /health/ready.
// Помимо ping сверяет версию схемы с последней встроенной миграцией.
type ReadinessChecker struct {
	pool        *pgxpool.Pool
	timeout     time.Duration
	wantVersion uint
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool, cfg *config.Config) (*ReadinessChecker, error) {
	want, err := LatestMigration()
	if err != nil {
		return nil, err
	}
	timeout := cfg.DBReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	return &ReadinessChecker{pool: pool, timeout: timeout, wantVersion: want}, nil
}

// CheckReady возвращает "ok", "degraded" (схема отстаёт) или "fail".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	var (
		version int64
		dirty   bool
	)
	if err := c.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty); err != nil {
		return "fail", fmt.Sprintf("версия схемы недоступна: %v", err)
	}

	status, message = schemaStatus(version, dirty, c.wantVersion)
	if status != "ok" {
		return status, message
	}
	stat := c.pool.Stat()
	return status, fmt.Sprintf("%s, подключений %d/%d, занято %d",
		message, stat.TotalConns(), stat.MaxConns(), stat.AcquiredConns())
}

// schemaStatus сравнивает версию схемы в базе с ожидаемой.
// Незавершённая миграция (dirty) означает отказ.
func schemaStatus(version int64, dirty bool, want uint) (status, message string) {
	switch {
	case dirty:
		return "fail", fmt.Sprintf("миграция %d не завершена (dirty)", version)
	case version < int64(want):
		return "degraded", fmt.Sprintf("схема %d отстаёт от %d", version, want)
	default:
		return "ok", fmt.Sprintf("схема %d", version)
	}
}
