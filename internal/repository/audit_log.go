package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// AuditLogRepository - журнал аудита (только добавление и чтение).
type AuditLogRepository interface {
	Create(ctx context.Context, a *model.AuditLog) error
	ListByBooking(ctx context.Context, bookingID string) ([]*model.AuditLog, error)
}

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт репозиторий журнала аудита.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, a *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, action, actor, booking_id, entity_id, old_number, new_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Action, a.Actor, a.BookingID, a.EntityID, a.OldNumber, a.NewNumber,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}

func (r *auditLogRepo) ListByBooking(ctx context.Context, bookingID string) ([]*model.AuditLog, error) {
	query := `
		SELECT id, action, actor, booking_id, entity_id, old_number, new_number, created_at
		FROM audit_logs
		WHERE booking_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditLog
	for rows.Next() {
		a := &model.AuditLog{}
		if err := rows.Scan(
			&a.ID, &a.Action, &a.Actor, &a.BookingID, &a.EntityID, &a.OldNumber, &a.NewNumber, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
