// dephealth.go - мониторинг зависимостей через topologymetrics SDK.
//
// Document Module мониторит:
//   - PostgreSQL - SQL checker через существующий pgxpool (critical)
//   - renderer - HTTP checker к /health сервиса рендеринга (critical)
//   - storage-element - HTTP checker к /health/ready (только backend se, critical)
//   - keycloak-jwks - HTTP checker к JWKS endpoint (не critical: проверка JWT использует кэш ключей)
//
// Метрики app_dependency_* доступны на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthTargets - адреса зависимостей.
type DephealthTargets struct {
	// PostgresURL - URL для меток метрик, не для подключения
	PostgresURL string
	RendererURL string
	// StorageElementURL пуст для backend local
	StorageElementURL string
	KeycloakJWKSURL   string
}

// DephealthService - сервис мониторинга зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, targets, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, db, targets, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	db *sql.DB,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(db)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("renderer",
			httpDepOptions(targets.RendererURL, "/health", checkInterval, true)...),
	}

	if targets.StorageElementURL != "" {
		opts = append(opts, dephealth.HTTP("storage-element",
			httpDepOptions(targets.StorageElementURL, "/health/ready", checkInterval, true)...))
	}

	if targets.KeycloakJWKSURL != "" {
		// Keycloak отдаёт /health только на management порту, проверяем сам JWKS
		opts = append(opts, dephealth.HTTP("keycloak-jwks",
			httpDepOptions(targets.KeycloakJWKSURL, healthPath(targets.KeycloakJWKSURL, "/health"), checkInterval, false)...))
	}

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// httpDepOptions собирает опции HTTP-зависимости.
func httpDepOptions(rawURL, path string, interval time.Duration, critical bool) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(rawURL),
		dephealth.WithHTTPHealthPath(path),
		dephealth.CheckInterval(interval),
		dephealth.Critical(critical),
	}
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Scheme == "https" {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// healthPath возвращает path из URL или fallback, если path пуст.
func healthPath(rawURL, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return fallback
	}
	return parsed.Path
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ - имя зависимости, значение - true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
