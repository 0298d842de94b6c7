// Пакет testutil - общие помощники интеграционных тестов:
// PostgreSQL в testcontainers и наполнение данными портала.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/labbooking/document-module/internal/config"
	"github.com/bigkaa/labbooking/document-module/internal/database"
)

// Logger возвращает текстовый логгер уровня debug для тестов.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SetupTestDB запускает PostgreSQL контейнер, применяет миграции и возвращает пул.
// Пропускает тест, если TEST_INTEGRATION не установлена.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("labbooking_test"),
		postgres.WithUsername("labbooking"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port.Int(),
		DBName:     "labbooking_test",
		DBUser:     "labbooking",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}

	logger := Logger()
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// Fixture - идентификаторы данных портала, созданных SeedBooking.
type Fixture struct {
	UserID        string
	BookingID     string
	WorkspaceID   string
	ReservationID string
}

// SeedOptions управляет содержимым тестового бронирования.
type SeedOptions struct {
	Status string
	// WithWorkspace добавляет аренду рабочего места (1–10 марта 2025, 5 дней по 100.00)
	WithWorkspace bool
	// StoredPricing - сохранить тариф в аренде; иначе используется прайс
	StoredPricing bool
}

// SeedBooking создаёт пользователя, бронирование с двумя аналитическими позициями
// и, при необходимости, аренду рабочего места.
func SeedBooking(t *testing.T, pool *pgxpool.Pool, opts SeedOptions) Fixture {
	t.Helper()
	ctx := context.Background()

	if opts.Status == "" {
		opts.Status = "approved"
	}

	f := Fixture{
		UserID:    uuid.New().String(),
		BookingID: uuid.New().String(),
	}

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	exec := func(sql string, args ...any) {
		t.Helper()
		if _, err := pool.Exec(ctx, sql, args...); err != nil {
			t.Fatalf("Ошибка наполнения БД: %v\n%s", err, sql)
		}
	}

	exec(`INSERT INTO users (id, full_name, email, institution, user_type)
		VALUES ($1, 'Ирина Смирнова', $2, 'НИИ Химии', 'external')`,
		f.UserID, f.UserID+"@example.com")

	exec(`INSERT INTO bookings (id, booking_number, user_id, status, has_workspace, purpose, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, 'Анализ образцов', $6, $7)`,
		f.BookingID, "BK-"+f.BookingID[:8], f.UserID, opts.Status, opts.WithWorkspace, start, end)

	exec(`INSERT INTO booking_items (booking_id, service_name, sample_type, quantity, unit, unit_price, total_price, position)
		VALUES ($1, 'XRD', 'порошок', 2, 'sample', $2, $3, 1),
		       ($1, 'SEM', 'плёнка', 1, 'sample', $4, $4, 2)`,
		f.BookingID, decimal.RequireFromString("100.25"), decimal.RequireFromString("200.50"),
		decimal.RequireFromString("140.00"))

	if !opts.WithWorkspace {
		return f
	}

	f.WorkspaceID = uuid.New().String()
	f.ReservationID = uuid.New().String()

	exec(`INSERT INTO workspaces (id, name) VALUES ($1, $2)`, f.WorkspaceID, "Бокс "+f.WorkspaceID[:4])

	resStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	resEnd := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if opts.StoredPricing {
		exec(`INSERT INTO workspace_reservations (id, booking_id, workspace_id, start_date, end_date, billing_unit, unit_rate)
			VALUES ($1, $2, $3, $4, $5, 'day', $6)`,
			f.ReservationID, f.BookingID, f.WorkspaceID, resStart, resEnd, decimal.RequireFromString("100.00"))
	} else {
		exec(`INSERT INTO workspace_reservations (id, booking_id, workspace_id, start_date, end_date)
			VALUES ($1, $2, $3, $4, $5)`,
			f.ReservationID, f.BookingID, f.WorkspaceID, resStart, resEnd)
	}
	return f
}

// SeedPricing добавляет строку прайса рабочего места.
func SeedPricing(t *testing.T, pool *pgxpool.Pool, workspaceID, userType, unit, rate string, validFrom time.Time) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO workspace_pricing (workspace_id, user_type, billing_unit, rate, valid_from)
		VALUES ($1, $2, $3, $4, $5)`,
		workspaceID, userType, unit, decimal.RequireFromString(rate), validFrom)
	if err != nil {
		t.Fatalf("Ошибка добавления прайса: %v", err)
	}
}
