package repository

import (
	"context"
	"fmt"
)

// CounterRepository - монотонные счётчики номеров документов.
type CounterRepository interface {
	// Next атомарно увеличивает счётчик scope и возвращает новое значение.
	// seed - наибольшее уже занятое значение; счётчик никогда не опускается ниже него.
	Next(ctx context.Context, scope string, seed int) (int, error)
}

type counterRepo struct {
	db DBTX
}

// NewCounterRepository создаёт репозиторий счётчиков.
func NewCounterRepository(db DBTX) CounterRepository {
	return &counterRepo{db: db}
}

func (r *counterRepo) Next(ctx context.Context, scope string, seed int) (int, error) {
	// Строка счётчика блокируется на время UPDATE, конкурентные вызовы сериализуются
	query := `
		INSERT INTO document_counters (scope, value)
		VALUES ($1, $2 + 1)
		ON CONFLICT (scope) DO UPDATE
		SET value = GREATEST(document_counters.value, $2) + 1, updated_at = now()
		RETURNING value`

	var value int
	if err := r.db.QueryRow(ctx, query, scope, seed).Scan(&value); err != nil {
		return 0, fmt.Errorf("ошибка выделения номера %s: %w", scope, err)
	}
	return value, nil
}
