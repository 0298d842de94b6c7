// Пакет config - загрузка и валидация конфигурации Document Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища файлов.
const (
	BlobBackendSE    = "se"
	BlobBackendLocal = "local"
)

// Config содержит все параметры конфигурации Document Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8010-8019)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.kryukov.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для client credentials (обращения к Storage Element)
	KeycloakClientID string
	// Client Secret для client credentials
	KeycloakClientSecret string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Интервал фонового обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Маппинг групп → ролей ---

	RoleAdminGroups    []string
	RoleReadonlyGroups []string

	// --- Хранилище файлов ---

	// Бэкенд: se (Storage Element) или local (каталог на диске)
	BlobBackend string
	// URL Storage Element (для se)
	SEURL string
	// Путь к CA-сертификату для TLS-соединений с SE (опционально)
	SECACertPath string
	// Каталог для файлов (для local)
	BlobDataDir string
	// Публичный базовый URL файлов (для local)
	BlobPublicURL string

	// --- Генерация документов ---

	// URL сервиса рендеринга PDF
	RendererURL string
	// Таймаут рендеринга одного документа
	RenderTimeout time.Duration
	// Таймаут загрузки одного документа
	UploadTimeout time.Duration
	// Префикс номера бланка (SF)
	FormPrefix string
	// Срок действия бланка
	FormValidity time.Duration
	// TTL кэша настроек лаборатории
	FacilityCacheTTL time.Duration
	// Название лаборатории по умолчанию (если не задано в facility_settings)
	FacilityName string

	// --- Уведомления ---

	// URL RabbitMQ (опционально, пусто - только уведомления в БД)
	AMQPURL string
	// Exchange для событий документов
	AMQPExchange string

	// --- Фоновые задачи ---

	// Интервал очистки отложенных удалений файлов
	CleanupInterval time.Duration
	// Минимальный возраст записи об удалении перед повторной попыткой
	CleanupGrace time.Duration
	// Группа сервиса для topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("DM_PORT: %w", err)
	}
	if cfg.Port < 8010 || cfg.Port > 8019 {
		return nil, fmt.Errorf("DM_PORT: значение %d вне допустимого диапазона 8010-8019", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DM_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DM_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DM_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DM_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DM_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DM_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak / JWT ---

	if cfg.KeycloakURL, err = getEnvRequired("DM_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")
	cfg.KeycloakRealm = getEnvDefault("DM_KEYCLOAK_REALM", "labbooking")
	cfg.KeycloakClientID = getEnvDefault("DM_KEYCLOAK_CLIENT_ID", "")
	cfg.KeycloakClientSecret = getEnvDefault("DM_KEYCLOAK_CLIENT_SECRET", "")

	cfg.JWTIssuer = getEnvDefault("DM_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("DM_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	if cfg.JWKSRefreshInterval, err = getEnvDuration("DM_JWKS_REFRESH_INTERVAL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("DM_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTLeeway, err = getEnvDuration("DM_JWT_LEEWAY", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DM_JWT_LEEWAY: %w", err)
	}

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("DM_ROLE_ADMIN_GROUPS", "lab-staff"))
	cfg.RoleReadonlyGroups = parseCSV(getEnvDefault("DM_ROLE_READONLY_GROUPS", "lab-viewers"))

	// --- Хранилище файлов ---

	cfg.BlobBackend = getEnvDefault("DM_BLOB_BACKEND", BlobBackendSE)
	switch cfg.BlobBackend {
	case BlobBackendSE:
		if cfg.SEURL, err = getEnvRequired("DM_SE_URL"); err != nil {
			return nil, err
		}
		cfg.SEURL = strings.TrimRight(cfg.SEURL, "/")
		if cfg.KeycloakClientID == "" || cfg.KeycloakClientSecret == "" {
			return nil, fmt.Errorf("DM_KEYCLOAK_CLIENT_ID и DM_KEYCLOAK_CLIENT_SECRET обязательны для DM_BLOB_BACKEND=se")
		}
		cfg.SECACertPath = getEnvDefault("DM_SE_CA_CERT_PATH", "")
	case BlobBackendLocal:
		if cfg.BlobDataDir, err = getEnvRequired("DM_BLOB_DATA_DIR"); err != nil {
			return nil, err
		}
		if cfg.BlobPublicURL, err = getEnvRequired("DM_BLOB_PUBLIC_URL"); err != nil {
			return nil, err
		}
		cfg.BlobPublicURL = strings.TrimRight(cfg.BlobPublicURL, "/")
	default:
		return nil, fmt.Errorf("DM_BLOB_BACKEND: недопустимое значение %q, допустимые: se, local", cfg.BlobBackend)
	}

	// --- Генерация документов ---

	if cfg.RendererURL, err = getEnvRequired("DM_RENDERER_URL"); err != nil {
		return nil, err
	}
	cfg.RendererURL = strings.TrimRight(cfg.RendererURL, "/")

	if cfg.RenderTimeout, err = getEnvDuration("DM_RENDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DM_RENDER_TIMEOUT: %w", err)
	}
	if cfg.UploadTimeout, err = getEnvDuration("DM_UPLOAD_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("DM_UPLOAD_TIMEOUT: %w", err)
	}

	cfg.FormPrefix = getEnvDefault("DM_FORM_PREFIX", "SF")
	if strings.Contains(cfg.FormPrefix, "-") {
		return nil, fmt.Errorf("DM_FORM_PREFIX: префикс %q не должен содержать дефис", cfg.FormPrefix)
	}

	if cfg.FormValidity, err = getEnvDuration("DM_FORM_VALIDITY", 720*time.Hour); err != nil {
		return nil, fmt.Errorf("DM_FORM_VALIDITY: %w", err)
	}
	if cfg.FacilityCacheTTL, err = getEnvDuration("DM_FACILITY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("DM_FACILITY_CACHE_TTL: %w", err)
	}
	cfg.FacilityName = getEnvDefault("DM_FACILITY_NAME", "")

	// --- Уведомления ---

	cfg.AMQPURL = getEnvDefault("DM_AMQP_URL", "")
	cfg.AMQPExchange = getEnvDefault("DM_AMQP_EXCHANGE", "labbooking.documents")

	// --- Фоновые задачи ---

	if cfg.CleanupInterval, err = getEnvDuration("DM_CLEANUP_INTERVAL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("DM_CLEANUP_INTERVAL: %w", err)
	}
	if cfg.CleanupGrace, err = getEnvDuration("DM_CLEANUP_GRACE", time.Minute); err != nil {
		return nil, fmt.Errorf("DM_CLEANUP_GRACE: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("DM_DEPHEALTH_GROUP", "labbooking")
	if cfg.DephealthCheckInterval, err = getEnvDuration("DM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("DM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	if cfg.ShutdownTimeout, err = getEnvDuration("DM_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("DM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL для меток topologymetrics (без пароля).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// TokenURL возвращает endpoint выдачи токенов Keycloak.
func (c *Config) TokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.KeycloakURL, c.KeycloakRealm)
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

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
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
// Пустые элементы игнорируются.
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
