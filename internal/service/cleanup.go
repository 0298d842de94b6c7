// cleanup.go - фоновая очистка объектов заменённых документов.
//
// Координатор ставит ключи в pending_blob_deletions внутри транзакции
// перегенерации и удаляет объекты сразу после коммита. Если удаление
// не удалось, ключ остаётся в очереди: CleanupService периодически
// (DM_CLEANUP_INTERVAL) повторяет удаление для записей старше grace-периода.
// Повторное удаление отсутствующего объекта ошибкой не считается.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/labbooking/document-module/internal/blobstore"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
)

// cleanupBatchSize - максимум записей очереди за один проход.
const cleanupBatchSize = 100

var (
	cleanupRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_cleanup_runs_total",
		Help: "Общее количество запусков очистки",
	})

	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_cleanup_objects_deleted_total",
		Help: "Общее количество объектов, удалённых очисткой",
	})

	cleanupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_cleanup_errors_total",
		Help: "Общее количество ошибок удаления при очистке",
	})

	cleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dm_cleanup_duration_seconds",
		Help:    "Длительность выполнения очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// CleanupResult - результат одного запуска очистки.
type CleanupResult struct {
	// Processed - количество записей очереди, взятых в работу
	Processed int
	// Deleted - количество удалённых объектов
	Deleted int
	// Errors - количество ошибок
	Errors   int
	Duration time.Duration
}

// CleanupService - сервис фоновой очистки хранилища.
type CleanupService struct {
	deletions repository.PendingDeletionRepository
	store     blobstore.Store
	interval  time.Duration
	grace     time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupService создаёт сервис очистки.
func NewCleanupService(
	deletions repository.PendingDeletionRepository,
	store blobstore.Store,
	interval time.Duration,
	grace time.Duration,
	timeout time.Duration,
	logger *slog.Logger,
) *CleanupService {
	return &CleanupService{
		deletions: deletions,
		store:     store,
		interval:  interval,
		grace:     grace,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "cleanup")),
	}
}

// Start запускает фоновую горутину очистки.
func (c *CleanupService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(runCtx)

	c.logger.Info("Очистка запущена",
		slog.String("interval", c.interval.String()),
		slog.String("grace", c.grace.String()),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения текущего прохода.
func (c *CleanupService) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.logger.Info("Очистка остановлена")
}

func (c *CleanupService) run(ctx context.Context) {
	defer close(c.done)

	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки.
// Записи удаляются из очереди только после успешного удаления объекта.
func (c *CleanupService) RunOnce(ctx context.Context) *CleanupResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := &CleanupResult{}

	due, err := c.deletions.ListDue(ctx, c.now().UTC().Add(-c.grace), cleanupBatchSize)
	if err != nil {
		c.logger.Error("Ошибка чтения очереди удаления", slog.String("error", err.Error()))
		result.Errors++
		cleanupErrorsTotal.Inc()
		return result
	}
	result.Processed = len(due)

	for _, d := range due {
		if ctx.Err() != nil {
			break
		}

		delCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.store.Delete(delCtx, []string{d.StorageKey})
		cancel()
		if err != nil {
			result.Errors++
			if markErr := c.deletions.MarkFailed(ctx, d.ID, err.Error()); markErr != nil {
				c.logger.Error("Ошибка обновления записи очереди",
					slog.String("id", d.ID),
					slog.String("error", markErr.Error()),
				)
			}
			c.logger.Warn("Объект не удалён",
				slog.String("key", d.StorageKey),
				slog.Int("attempts", d.Attempts+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := c.deletions.Remove(ctx, []string{d.StorageKey}); err != nil {
			result.Errors++
			c.logger.Error("Ошибка удаления записи очереди",
				slog.String("key", d.StorageKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Deleted++
	}

	result.Duration = time.Since(start)

	cleanupRunsTotal.Inc()
	cleanupDeletedTotal.Add(float64(result.Deleted))
	cleanupErrorsTotal.Add(float64(result.Errors))
	cleanupDurationSeconds.Observe(result.Duration.Seconds())

	if result.Processed > 0 {
		c.logger.Info("Очистка завершена",
			slog.Int("processed", result.Processed),
			slog.Int("deleted", result.Deleted),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}
	return result
}
