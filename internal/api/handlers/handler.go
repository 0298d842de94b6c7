// handler.go - обработчик API модуля документов.
// Делегирует запросы в сервисный слой и сопоставляет ошибки с HTTP-ответами.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/labbooking/document-module/internal/api/errors"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/service"
)

// DocumentService - операции генерации, используемые API.
// Реализуется service.DocumentService.
type DocumentService interface {
	Generate(ctx context.Context, actor, bookingID string) (*service.GenerationResult, error)
	Regenerate(ctx context.Context, actor, formID string) (*service.GenerationResult, error)
	RetryWorkingArea(ctx context.Context, actor, formID string) (*service.GenerationResult, error)
	ListCurrentDocuments(ctx context.Context, bookingID string) ([]*model.BookingDocument, error)
}

// APIHandler - обработчик API.
type APIHandler struct {
	health    *HealthHandler
	documents DocumentService
	logger    *slog.Logger
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(health *HealthHandler, documents DocumentService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:    health,
		documents: documents,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive делегируется в HealthHandler.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady делегируется в HealthHandler.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics делегируется в HealthHandler.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError сопоставляет ошибку сервиса с кодом ответа.
// Необработанные ошибки логируются и отдаются как 500 без деталей.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrPrecondition):
		apierrors.PreconditionFailed(w, err.Error())
	case errors.Is(err, service.ErrComposition):
		apierrors.CompositionError(w, err.Error())
	case errors.Is(err, service.ErrArtifact):
		h.logger.Warn("Документ не сформирован",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.ArtifactFailed(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервиса документов")
	}
}
