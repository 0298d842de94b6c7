// routes.go - регистрация маршрутов API на chi router.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/labbooking/document-module/internal/api/errors"
)

// Пути API.
const (
	PathGenerate         = "/api/v1/bookings/{booking_id}/service-forms"
	PathRegenerate       = "/api/v1/service-forms/{form_id}/regenerate"
	PathRetryWorkingArea = "/api/v1/service-forms/{form_id}/working-area-agreement"
	PathDocuments        = "/api/v1/bookings/{booking_id}/documents"
)

// RouteGuards - middleware авторизации для групп маршрутов.
type RouteGuards struct {
	// Write - генерация, перегенерация и повтор соглашения
	Write func(http.Handler) http.Handler
	// Read - чтение списка документов
	Read func(http.Handler) http.Handler
}

// RegisterRoutes регистрирует маршруты API и health endpoints.
func (h *APIHandler) RegisterRoutes(r chi.Router, guards RouteGuards) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.With(guards.Write).Post(PathGenerate, withUUIDParam("booking_id", h.GenerateServiceForm))
	r.With(guards.Write).Post(PathRegenerate, withUUIDParam("form_id", h.RegenerateServiceForm))
	r.With(guards.Write).Post(PathRetryWorkingArea, withUUIDParam("form_id", h.RetryWorkingAreaAgreement))
	r.With(guards.Read).Get(PathDocuments, withUUIDParam("booking_id", h.ListBookingDocuments))
}

// withUUIDParam привязывает path-параметр name к UUID и вызывает fn.
func withUUIDParam(
	name string,
	fn func(w http.ResponseWriter, r *http.Request, id openapi_types.UUID),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id openapi_types.UUID
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
			runtime.BindStyledParameterOptions{
				ParamLocation: runtime.ParamLocationPath,
				Explode:       false,
				Required:      true,
			})
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %v", name, err))
			return
		}
		fn(w, r, id)
	}
}
