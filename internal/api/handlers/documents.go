// documents.go - обработчики документов бронирования.
package handlers

import (
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/labbooking/document-module/internal/api/errors"
	"github.com/bigkaa/labbooking/document-module/internal/api/middleware"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// DocumentResponse - текущий документ бронирования.
type DocumentResponse struct {
	ID           string             `json:"id"`
	DocumentType model.DocumentType `json:"documentType"`
	FileID       string             `json:"fileId"`
	FileName     string             `json:"fileName,omitempty"`
	URL          string             `json:"url,omitempty"`
	ContentType  string             `json:"contentType,omitempty"`
	Size         int64              `json:"size,omitempty"`
	CreatedBy    string             `json:"createdBy,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// DocumentListResponse - ответ списка документов.
type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
}

// GenerateServiceForm - POST /api/v1/bookings/{booking_id}/service-forms.
func (h *APIHandler) GenerateServiceForm(w http.ResponseWriter, r *http.Request, bookingID openapi_types.UUID) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == "" {
		apierrors.Unauthorized(w, "Не удалось определить инициатора")
		return
	}

	result, err := h.documents.Generate(r.Context(), actor, bookingID.String())
	if err != nil {
		h.writeServiceError(w, "generate", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RegenerateServiceForm - POST /api/v1/service-forms/{form_id}/regenerate.
func (h *APIHandler) RegenerateServiceForm(w http.ResponseWriter, r *http.Request, formID openapi_types.UUID) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == "" {
		apierrors.Unauthorized(w, "Не удалось определить инициатора")
		return
	}

	result, err := h.documents.Regenerate(r.Context(), actor, formID.String())
	if err != nil {
		h.writeServiceError(w, "regenerate", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RetryWorkingAreaAgreement - POST /api/v1/service-forms/{form_id}/working-area-agreement.
func (h *APIHandler) RetryWorkingAreaAgreement(w http.ResponseWriter, r *http.Request, formID openapi_types.UUID) {
	actor := middleware.ActorFromContext(r.Context())
	if actor == "" {
		apierrors.Unauthorized(w, "Не удалось определить инициатора")
		return
	}

	result, err := h.documents.RetryWorkingArea(r.Context(), actor, formID.String())
	if err != nil {
		h.writeServiceError(w, "retry_working_area", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ListBookingDocuments - GET /api/v1/bookings/{booking_id}/documents.
func (h *APIHandler) ListBookingDocuments(w http.ResponseWriter, r *http.Request, bookingID openapi_types.UUID) {
	docs, err := h.documents.ListCurrentDocuments(r.Context(), bookingID.String())
	if err != nil {
		h.writeServiceError(w, "list_documents", err)
		return
	}

	resp := DocumentListResponse{Items: make([]DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Items = append(resp.Items, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toDocumentResponse(d *model.BookingDocument) DocumentResponse {
	out := DocumentResponse{
		ID:           d.ID,
		DocumentType: d.DocumentType,
		FileID:       d.FileID,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
	}
	if d.File != nil {
		out.FileName = d.File.FileName
		out.URL = d.File.URL
		out.ContentType = d.File.ContentType
		out.Size = d.File.Size
	}
	return out
}
