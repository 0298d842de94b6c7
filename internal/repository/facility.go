package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// FacilityRepository - настройки лаборатории (единственная строка).
type FacilityRepository interface {
	Get(ctx context.Context) (*model.FacilityConfig, error)
	Save(ctx context.Context, cfg *model.FacilityConfig) error
}

type facilityRepo struct {
	db DBTX
}

// NewFacilityRepository создаёт репозиторий настроек лаборатории.
func NewFacilityRepository(db DBTX) FacilityRepository {
	return &facilityRepo{db: db}
}

func (r *facilityRepo) Get(ctx context.Context) (*model.FacilityConfig, error) {
	var raw []byte
	if err := r.db.QueryRow(ctx, `SELECT config FROM facility_settings WHERE id = 1`).Scan(&raw); err != nil {
		return nil, notFoundOr(err, "ошибка чтения настроек лаборатории")
	}

	cfg := &model.FacilityConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("некорректные настройки лаборатории: %w", err)
	}
	return cfg, nil
}

func (r *facilityRepo) Save(ctx context.Context, cfg *model.FacilityConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("ошибка сериализации настроек лаборатории: %w", err)
	}
	query := `
		INSERT INTO facility_settings (id, config) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`
	if _, err := r.db.Exec(ctx, query, raw); err != nil {
		return fmt.Errorf("ошибка сохранения настроек лаборатории: %w", err)
	}
	return nil
}
