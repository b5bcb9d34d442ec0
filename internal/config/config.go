// Пакет config — загрузка и валидация конфигурации HalamangGaling API
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// minJWTSecretLen — минимальная длина HMAC-секрета для подписи токенов.
const minJWTSecretLen = 32

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения запроса
	ReadTimeout time.Duration
	// Таймаут записи ответа
	WriteTimeout time.Duration
	// Разрешённые источники CORS (через запятую, пусто — CORS выключен)
	CORSOrigins []string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула подключений
	DBMaxConns int
	DBMinConns int
	// Максимальное время жизни подключения в пуле
	DBMaxConnLifetime time.Duration
	// Таймаут проверки готовности PostgreSQL
	DBReadyTimeout time.Duration

	// --- JWT ---

	// Секрет HS256 для выпуска и проверки собственных токенов
	JWTSecret string
	// Issuer собственных токенов
	JWTIssuer string
	// Время жизни токена
	JWTTTL time.Duration
	// URL JWKS внешнего IdP (опционально, RS256)
	JWTJWKSURL string

	// --- Redis (rate limiting) ---

	// Адрес Redis (host:port). Пусто — ограничение частоты выключено.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Лимит запросов на идентичность за окно
	RateLimitRequests int
	// Длительность окна
	RateLimitWindow time.Duration

	// --- Каталог ---

	// Фиксированный размер страницы для списков
	PageSize int
	// Максимальный размер публичной коллекции
	PublicLimit int
	// Размер LRU-кэша публичной коллекции
	PublicCacheSize int
	// TTL записей кэша публичной коллекции
	PublicCacheTTL time.Duration

	// --- Bootstrap ---

	// Учётная запись администратора, создаваемая при старте (опционально)
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	// --- Мониторинг ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// HG_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("HG_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("HG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("HG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("HG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("HG_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("HG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("HG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ReadTimeout, err = getEnvDuration("HG_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_READ_TIMEOUT: %w", err)
	}
	cfg.WriteTimeout, err = getEnvDuration("HG_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_WRITE_TIMEOUT: %w", err)
	}

	cfg.CORSOrigins = parseCSV(getEnvDefault("HG_CORS_ORIGINS", ""))

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("HG_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("HG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("HG_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("HG_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("HG_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("HG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("HG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("HG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("HG_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("HG_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("HG_DB_MAX_CONNS: должно быть не меньше 1, получено %d", cfg.DBMaxConns)
	}
	cfg.DBMinConns, err = getEnvInt("HG_DB_MIN_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("HG_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("HG_DB_MIN_CONNS: должно быть в диапазоне 0..%d, получено %d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	cfg.DBMaxConnLifetime, err = getEnvDuration("HG_DB_MAX_CONN_LIFETIME", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("HG_DB_MAX_CONN_LIFETIME: %w", err)
	}
	cfg.DBReadyTimeout, err = getEnvDuration("HG_DB_READY_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_DB_READY_TIMEOUT: %w", err)
	}

	// --- JWT ---

	cfg.JWTSecret, err = getEnvRequired("HG_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return nil, fmt.Errorf("HG_JWT_SECRET: длина секрета должна быть не меньше %d символов", minJWTSecretLen)
	}

	cfg.JWTIssuer = getEnvDefault("HG_JWT_ISSUER", "halamanggaling-ph")

	// HG_JWT_TTL — время жизни токена (по умолчанию 7 дней)
	cfg.JWTTTL, err = getEnvDuration("HG_JWT_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("HG_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL <= 0 {
		return nil, fmt.Errorf("HG_JWT_TTL: значение должно быть положительным")
	}

	cfg.JWTJWKSURL = strings.TrimRight(getEnvDefault("HG_JWT_JWKS_URL", ""), "/")

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("HG_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("HG_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("HG_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("HG_REDIS_DB: %w", err)
	}

	// HG_RATE_LIMIT_REQUESTS — лимит запросов за окно (по умолчанию 100)
	cfg.RateLimitRequests, err = getEnvInt("HG_RATE_LIMIT_REQUESTS", 100)
	if err != nil {
		return nil, fmt.Errorf("HG_RATE_LIMIT_REQUESTS: %w", err)
	}
	if cfg.RateLimitRequests < 1 {
		return nil, fmt.Errorf("HG_RATE_LIMIT_REQUESTS: значение %d должно быть не меньше 1", cfg.RateLimitRequests)
	}

	// HG_RATE_LIMIT_WINDOW — окно (по умолчанию 15m)
	cfg.RateLimitWindow, err = getEnvDuration("HG_RATE_LIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("HG_RATE_LIMIT_WINDOW: %w", err)
	}
	if cfg.RateLimitWindow < time.Second {
		return nil, fmt.Errorf("HG_RATE_LIMIT_WINDOW: окно должно быть не меньше 1s")
	}

	// --- Каталог ---

	cfg.PageSize, err = getEnvInt("HG_PAGE_SIZE", 20)
	if err != nil {
		return nil, fmt.Errorf("HG_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 500 {
		return nil, fmt.Errorf("HG_PAGE_SIZE: значение %d вне допустимого диапазона 1-500", cfg.PageSize)
	}

	cfg.PublicLimit, err = getEnvInt("HG_PUBLIC_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("HG_PUBLIC_LIMIT: %w", err)
	}
	if cfg.PublicLimit < 1 {
		return nil, fmt.Errorf("HG_PUBLIC_LIMIT: значение %d должно быть не меньше 1", cfg.PublicLimit)
	}

	cfg.PublicCacheSize, err = getEnvInt("HG_PUBLIC_CACHE_SIZE", 16)
	if err != nil {
		return nil, fmt.Errorf("HG_PUBLIC_CACHE_SIZE: %w", err)
	}

	cfg.PublicCacheTTL, err = getEnvDuration("HG_PUBLIC_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_PUBLIC_CACHE_TTL: %w", err)
	}

	// --- Bootstrap ---

	cfg.BootstrapAdminEmail = strings.ToLower(getEnvDefault("HG_BOOTSTRAP_ADMIN_EMAIL", ""))
	cfg.BootstrapAdminPassword = getEnvDefault("HG_BOOTSTRAP_ADMIN_PASSWORD", "")
	if cfg.BootstrapAdminEmail != "" && !strings.Contains(strings.TrimPrefix(cfg.BootstrapAdminEmail, "@"), "@") {
		return nil, fmt.Errorf("HG_BOOTSTRAP_ADMIN_EMAIL: некорректный e-mail %q", cfg.BootstrapAdminEmail)
	}
	if cfg.BootstrapAdminEmail != "" && len(cfg.BootstrapAdminPassword) < 8 {
		return nil, fmt.Errorf("HG_BOOTSTRAP_ADMIN_PASSWORD: обязателен при заданном HG_BOOTSTRAP_ADMIN_EMAIL (минимум 8 символов)")
	}

	// --- Мониторинг ---

	cfg.DephealthGroup = getEnvDefault("HG_DEPHEALTH_GROUP", "halamanggaling")

	cfg.DephealthCheckInterval, err = getEnvDuration("HG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("HG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("HG_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL (формат key=value).
// Строковые значения берутся в кавычки, чтобы пробелы и апострофы
// в пароле не ломали разбор.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		dsnQuote(c.DBHost), c.DBPort, dsnQuote(c.DBName), dsnQuote(c.DBUser),
		dsnQuote(c.DBPassword), dsnQuote(c.DBSSLMode),
	)
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func dsnQuote(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// RateLimitEnabled сообщает, включено ли ограничение частоты запросов.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
