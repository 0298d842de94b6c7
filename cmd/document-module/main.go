// Точка входа модуля документов лабораторного портала бронирования.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает клиенты рендерера и хранилища, сервисный слой и API,
// запускает фоновую очистку хранилища, topologymetrics и HTTP-сервер.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/labbooking/document-module/internal/api/handlers"
	"github.com/bigkaa/labbooking/document-module/internal/api/middleware"
	"github.com/bigkaa/labbooking/document-module/internal/api/openapi"
	"github.com/bigkaa/labbooking/document-module/internal/blobstore"
	"github.com/bigkaa/labbooking/document-module/internal/config"
	"github.com/bigkaa/labbooking/document-module/internal/database"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/facility"
	"github.com/bigkaa/labbooking/document-module/internal/keycloak"
	"github.com/bigkaa/labbooking/document-module/internal/notify"
	"github.com/bigkaa/labbooking/document-module/internal/renderer"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
	"github.com/bigkaa/labbooking/document-module/internal/server"
	"github.com/bigkaa/labbooking/document-module/internal/service"
)

const (
	// notifyTimeout - таймаут отправки уведомления о готовности документов
	notifyTimeout = 10 * time.Second
	// readinessTimeout - таймаут проверки JWKS в readiness probe
	readinessTimeout = 5 * time.Second
)

func main() {
	// 0. .env для локального запуска (в кластере файла нет)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Ошибка чтения .env", slog.String("error", err.Error()))
	}

	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("Document Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	// 3. Миграции
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт через общий пул.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	repos := repository.NewRepos(pool)
	txRunner := repository.NewTxRunner(pool)

	// 5. Хранилище документов
	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Error("Ошибка создания хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Рендерер, конфигурация лаборатории, уведомления
	render := renderer.New(cfg.RendererURL, logger)
	facilityProvider := facility.NewProvider(repos.Facility,
		model.FacilityConfig{FacilityName: cfg.FacilityName},
		cfg.FacilityCacheTTL, logger)

	dispatchers := notify.Multi{notify.NewDBDispatcher(repos.Notifications)}
	var amqpDispatcher *notify.AMQPDispatcher
	if cfg.AMQPURL != "" {
		amqpDispatcher = notify.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		dispatchers = append(dispatchers, amqpDispatcher)
		logger.Info("Публикация событий в RabbitMQ включена",
			slog.String("exchange", cfg.AMQPExchange),
		)
	}

	// 7. Сервисы
	producer := service.NewArtifactProducer(render, store, cfg.RenderTimeout, cfg.UploadTimeout, logger)
	documentSvc := service.NewDocumentService(
		repos, txRunner, facilityProvider, producer, store, dispatchers,
		service.DocumentServiceConfig{
			FormPrefix:    cfg.FormPrefix,
			FormValidity:  cfg.FormValidity,
			StoreTimeout:  cfg.UploadTimeout,
			NotifyTimeout: notifyTimeout,
		},
		logger,
	)
	cleanupSvc := service.NewCleanupService(
		repos.Deletions, store,
		cfg.CleanupInterval, cfg.CleanupGrace, cfg.UploadTimeout,
		logger,
	)

	// 8. topologymetrics
	targets := service.DephealthTargets{
		PostgresURL:     cfg.DatabaseURL(),
		RendererURL:     cfg.RendererURL,
		KeycloakJWKSURL: cfg.JWTJWKSURL,
	}
	if cfg.BlobBackend == config.BlobBackendSE {
		targets.StorageElementURL = cfg.SEURL
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"document-module", cfg.DephealthGroup, pgDB, targets,
		cfg.DephealthCheckInterval, logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	}

	// 9. API
	var deps handlers.DependencyReporter
	if dephealthSvc != nil {
		deps = dephealthSvc
	}
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, readinessTimeout),
		deps,
	)
	apiHandler := handlers.NewAPIHandler(healthHandler, documentSvc, logger)

	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.RoleAdminGroups,
		cfg.RoleReadonlyGroups,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.NewValidator(doc, logger)
	if err != nil {
		logger.Error("Ошибка создания OpenAPI валидатора", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Фоновая очистка хранилища
	cleanupSvc.Start(ctx)

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validator)
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	cleanupSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if amqpDispatcher != nil {
		if err := amqpDispatcher.Close(); err != nil {
			logger.Warn("Ошибка закрытия соединения RabbitMQ", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Document Module остановлен")
}

// newStore создаёт хранилище по DM_BLOB_BACKEND.
func newStore(cfg *config.Config, logger *slog.Logger) (blobstore.Store, error) {
	if cfg.BlobBackend == config.BlobBackendLocal {
		logger.Info("Документы сохраняются локально", slog.String("dir", cfg.BlobDataDir))
		return blobstore.NewLocalStore(cfg.BlobDataDir, cfg.BlobPublicURL, logger)
	}
	tokens := keycloak.NewTokenSource(cfg.TokenURL(), cfg.KeycloakClientID, cfg.KeycloakClientSecret, logger)
	return blobstore.NewSEStore(cfg.SEURL, cfg.SECACertPath, tokens.Token, logger)
}
