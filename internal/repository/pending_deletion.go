package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// PendingDeletionRepository - outbox удалений объектов хранилища.
type PendingDeletionRepository interface {
	// Enqueue добавляет ключи; уже стоящие в очереди пропускаются.
	Enqueue(ctx context.Context, keys []string, reason string) error
	// Remove удаляет ключи из очереди.
	Remove(ctx context.Context, keys []string) error
	// ListDue возвращает записи, созданные раньше before.
	ListDue(ctx context.Context, before time.Time, limit int) ([]*model.PendingDeletion, error)
	// MarkFailed увеличивает счётчик попыток и сохраняет ошибку.
	MarkFailed(ctx context.Context, id, lastError string) error
}

type pendingDeletionRepo struct {
	db DBTX
}

// NewPendingDeletionRepository создаёт репозиторий отложенных удалений.
func NewPendingDeletionRepository(db DBTX) PendingDeletionRepository {
	return &pendingDeletionRepo{db: db}
}

func (r *pendingDeletionRepo) Enqueue(ctx context.Context, keys []string, reason string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `
		INSERT INTO pending_blob_deletions (storage_key, reason)
		SELECT k, $2 FROM unnest($1::text[]) AS k
		ON CONFLICT (storage_key) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, keys, reason); err != nil {
		return fmt.Errorf("ошибка постановки удалений в очередь: %w", err)
	}
	return nil
}

func (r *pendingDeletionRepo) Remove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM pending_blob_deletions WHERE storage_key = ANY($1::text[])`, keys); err != nil {
		return fmt.Errorf("ошибка удаления из очереди: %w", err)
	}
	return nil
}

func (r *pendingDeletionRepo) ListDue(ctx context.Context, before time.Time, limit int) ([]*model.PendingDeletion, error) {
	query := `
		SELECT id, storage_key, reason, attempts, last_error, created_at
		FROM pending_blob_deletions
		WHERE created_at < $1
		ORDER BY attempts, created_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения очереди удалений: %w", err)
	}
	defer rows.Close()

	var result []*model.PendingDeletion
	for rows.Next() {
		p := &model.PendingDeletion{}
		if err := rows.Scan(&p.ID, &p.StorageKey, &p.Reason, &p.Attempts, &p.LastError, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи очереди: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *pendingDeletionRepo) MarkFailed(ctx context.Context, id, lastError string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE pending_blob_deletions SET attempts = attempts + 1, last_error = $2 WHERE id = $1`,
		id, lastError)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи очереди: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
