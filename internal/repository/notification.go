package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// NotificationRepository - in-app уведомления портала.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

type notificationRepo struct {
	db DBTX
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, kind, title, message, booking_id, link)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, n.BookingID, n.Link,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания уведомления: %w", err)
	}
	return nil
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	query := `
		SELECT id, user_id, kind, title, message, booking_id, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения уведомлений: %w", err)
	}
	defer rows.Close()

	var result []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.BookingID, &n.Link, &n.IsRead, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
