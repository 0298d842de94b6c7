// Пакет facility - провайдер действующей конфигурации лаборатории
// для заполнения документов. Читает facility_settings через
// LRU-кэш с TTL (hashicorp/golang-lru/v2/expirable).
package facility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
)

const effectiveKey = "effective"

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_facility_cache_hits_total",
		Help: "Количество попаданий в кэш конфигурации лаборатории.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dm_facility_cache_misses_total",
		Help: "Количество промахов кэша конфигурации лаборатории.",
	})
)

// Provider - источник действующей конфигурации лаборатории.
type Provider struct {
	repo     repository.FacilityRepository
	defaults model.FacilityConfig
	cache    *expirable.LRU[string, *model.FacilityConfig]
	logger   *slog.Logger
}

// NewProvider создаёт провайдер. defaults используются для полей,
// не заданных в facility_settings, и целиком - если строки нет.
func NewProvider(repo repository.FacilityRepository, defaults model.FacilityConfig, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		repo:     repo,
		defaults: defaults,
		cache:    expirable.NewLRU[string, *model.FacilityConfig](1, nil, ttl),
		logger:   logger.With(slog.String("component", "facility")),
	}
}

// GetEffectiveConfig возвращает действующую конфигурацию.
// Возвращается копия: вызывающий код может её изменять.
func (p *Provider) GetEffectiveConfig(ctx context.Context) (*model.FacilityConfig, error) {
	if cfg, ok := p.cache.Get(effectiveKey); ok {
		cacheHitsTotal.Inc()
		return clone(cfg), nil
	}
	cacheMissesTotal.Inc()

	stored, err := p.repo.Get(ctx)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		p.logger.Warn("Настройки лаборатории не заданы, используются значения по умолчанию")
		stored = &model.FacilityConfig{}
	case err != nil:
		return nil, fmt.Errorf("чтение настроек лаборатории: %w", err)
	}

	effective := merge(p.defaults, *stored)
	if effective.FacilityName == "" {
		return nil, fmt.Errorf("не задано название лаборатории")
	}

	p.cache.Add(effectiveKey, effective)
	return clone(effective), nil
}

// merge накладывает непустые поля override на base.
func merge(base, override model.FacilityConfig) *model.FacilityConfig {
	out := base
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.FacilityName, override.FacilityName)
	pick(&out.Department, override.Department)
	pick(&out.Institution, override.Institution)
	pick(&out.Address, override.Address)
	pick(&out.Phone, override.Phone)
	pick(&out.Email, override.Email)
	pick(&out.LogoURL, override.LogoURL)
	if len(override.Signatories) > 0 {
		out.Signatories = override.Signatories
	}
	return clone(&out)
}

func clone(cfg *model.FacilityConfig) *model.FacilityConfig {
	out := *cfg
	out.Signatories = append([]model.Signatory(nil), cfg.Signatories...)
	return &out
}
