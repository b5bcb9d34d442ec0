package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"HG_DB_HOST":     "localhost",
		"HG_DB_NAME":     "halamanggaling",
		"HG_DB_USER":     "hg",
		"HG_DB_PASSWORD": "secret",
		"HG_JWT_SECRET":  testSecret,
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.JWTTTL != 7*24*time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 168h", cfg.JWTTTL)
	}
	if cfg.JWTIssuer != "halamanggaling-ph" {
		t.Errorf("JWTIssuer = %q, ожидается halamanggaling-ph", cfg.JWTIssuer)
	}
	if cfg.RateLimitEnabled() {
		t.Error("RateLimitEnabled() = true без HG_REDIS_ADDR")
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != 15*time.Minute {
		t.Errorf("rate limit = %d/%v, ожидается 100/15m", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.PageSize != 20 {
		t.Errorf("PageSize = %d, ожидается 20", cfg.PageSize)
	}
	if cfg.PublicLimit != 50 {
		t.Errorf("PublicLimit = %d, ожидается 50", cfg.PublicLimit)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
	if cfg.CORSOrigins != nil {
		t.Errorf("CORSOrigins = %v, ожидается nil", cfg.CORSOrigins)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 0 {
		t.Errorf("пул = %d..%d, ожидается 0..10", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if cfg.DBMaxConnLifetime != time.Hour || cfg.DBReadyTimeout != 3*time.Second {
		t.Errorf("DBMaxConnLifetime = %v, DBReadyTimeout = %v", cfg.DBMaxConnLifetime, cfg.DBReadyTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["HG_PORT"] = "9090"
	envs["HG_LOG_LEVEL"] = "debug"
	envs["HG_LOG_FORMAT"] = "text"
	envs["HG_REDIS_ADDR"] = "redis:6379"
	envs["HG_RATE_LIMIT_REQUESTS"] = "10"
	envs["HG_RATE_LIMIT_WINDOW"] = "1m"
	envs["HG_JWT_JWKS_URL"] = "https://idp.example.ph/certs/"
	envs["HG_CORS_ORIGINS"] = "https://a.ph, https://b.ph"
	envs["HG_BOOTSTRAP_ADMIN_EMAIL"] = "Admin@Example.PH"
	envs["HG_BOOTSTRAP_ADMIN_PASSWORD"] = "supersecret"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if !cfg.RateLimitEnabled() {
		t.Error("RateLimitEnabled() = false при заданном HG_REDIS_ADDR")
	}
	if cfg.RateLimitRequests != 10 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d/%v, ожидается 10/1m", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.JWTJWKSURL != "https://idp.example.ph/certs" {
		t.Errorf("JWTJWKSURL = %q, trailing slash не удалён", cfg.JWTJWKSURL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.ph" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.BootstrapAdminEmail != "admin@example.ph" {
		t.Errorf("BootstrapAdminEmail = %q, ожидается нижний регистр", cfg.BootstrapAdminEmail)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"нет хоста БД", "HG_DB_HOST", "", "HG_DB_HOST"},
		{"нет секрета", "HG_JWT_SECRET", "", "HG_JWT_SECRET"},
		{"короткий секрет", "HG_JWT_SECRET", "short", "HG_JWT_SECRET"},
		{"порт вне диапазона", "HG_PORT", "70000", "HG_PORT"},
		{"порт не число", "HG_PORT", "abc", "HG_PORT"},
		{"плохой уровень", "HG_LOG_LEVEL", "verbose", "HG_LOG_LEVEL"},
		{"плохой формат", "HG_LOG_FORMAT", "xml", "HG_LOG_FORMAT"},
		{"плохой ssl", "HG_DB_SSL_MODE", "prefer", "HG_DB_SSL_MODE"},
		{"пустой пул", "HG_DB_MAX_CONNS", "0", "HG_DB_MAX_CONNS"},
		{"min больше max", "HG_DB_MIN_CONNS", "11", "HG_DB_MIN_CONNS"},
		{"плохое время жизни", "HG_DB_MAX_CONN_LIFETIME", "forever", "HG_DB_MAX_CONN_LIFETIME"},
		{"плохая длительность", "HG_JWT_TTL", "7days", "HG_JWT_TTL"},
		{"нулевой лимит", "HG_RATE_LIMIT_REQUESTS", "0", "HG_RATE_LIMIT_REQUESTS"},
		{"короткое окно", "HG_RATE_LIMIT_WINDOW", "10ms", "HG_RATE_LIMIT_WINDOW"},
		{"большая страница", "HG_PAGE_SIZE", "1000", "HG_PAGE_SIZE"},
		{"admin без пароля", "HG_BOOTSTRAP_ADMIN_EMAIL", "admin@example.ph", "HG_BOOTSTRAP_ADMIN_PASSWORD"},
		{"admin без домена", "HG_BOOTSTRAP_ADMIN_EMAIL", "admin", "HG_BOOTSTRAP_ADMIN_EMAIL"},
		{"admin без локальной части", "HG_BOOTSTRAP_ADMIN_EMAIL", "@example.ph", "HG_BOOTSTRAP_ADMIN_EMAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не содержит %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5433, DBName: "hg", DBUser: "u", DBPassword: "p", DBSSLMode: "require",
	}
	want := "host='db' port=5433 dbname='hg' user='u' password='p' sslmode='require'"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}

	cfg.DBPassword = `it's a \secret`
	want = `host='db' port=5433 dbname='hg' user='u' password='it\'s a \\secret' sslmode='require'`
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	if got := cfg.DatabaseURL(); got != "postgres://db:5433/hg" {
		t.Errorf("DatabaseURL() = %q", got)
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a, b ,,c", 3},
		{" , ", 0},
	}
	for _, tt := range tests {
		if got := parseCSV(tt.in); len(got) != tt.want {
			t.Errorf("parseCSV(%q) = %v, ожидается %d элементов", tt.in, got, tt.want)
		}
	}
}
