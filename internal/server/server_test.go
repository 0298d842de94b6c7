package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/labbooking/document-module/internal/api/handlers"
	"github.com/bigkaa/labbooking/document-module/internal/api/openapi"
	"github.com/bigkaa/labbooking/document-module/internal/config"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/service"
)

type nopDocuments struct{ calls int }

func (n *nopDocuments) Generate(context.Context, string, string) (*service.GenerationResult, error) {
	n.calls++
	return &service.GenerationResult{}, nil
}

func (n *nopDocuments) Regenerate(context.Context, string, string) (*service.GenerationResult, error) {
	n.calls++
	return &service.GenerationResult{}, nil
}

func (n *nopDocuments) RetryWorkingArea(context.Context, string, string) (*service.GenerationResult, error) {
	n.calls++
	return &service.GenerationResult{}, nil
}

func (n *nopDocuments) ListCurrentDocuments(context.Context, string) ([]*model.BookingDocument, error) {
	n.calls++
	return nil, nil
}

func newTestServer(t *testing.T, docs handlers.DocumentService) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	doc, err := openapi.Load()
	if err != nil {
		t.Fatal(err)
	}
	validator, err := openapi.NewValidator(doc, logger)
	if err != nil {
		t.Fatal(err)
	}
	h := handlers.NewAPIHandler(handlers.NewHealthHandler(nil, nil, nil), docs, logger)
	return New(&config.Config{Port: 0}, logger, h, nil, validator).Handler()
}

func TestServer_RoutesWithoutClaimsAreRejected(t *testing.T) {
	docs := &nopDocuments{}
	srv := newTestServer(t, docs)

	const id = "3f1c2a4e-5b6d-4e7f-8a9b-0c1d2e3f4a5b"
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/bookings/" + id + "/service-forms"},
		{http.MethodPost, "/api/v1/service-forms/" + id + "/regenerate"},
		{http.MethodPost, "/api/v1/service-forms/" + id + "/working-area-agreement"},
		{http.MethodGet, "/api/v1/bookings/" + id + "/documents"},
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: статус = %d, ожидался 401", tc.method, tc.path, rec.Code)
		}
	}
	if docs.calls != 0 {
		t.Errorf("сервис вызван %d раз", docs.calls)
	}
}

func TestServer_HealthIsPublic(t *testing.T) {
	srv := newTestServer(t, &nopDocuments{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health/live: статус = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics: статус = %d", rec.Code)
	}
}

func TestServer_ContractValidation(t *testing.T) {
	srv := newTestServer(t, &nopDocuments{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/nope/service-forms", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус = %d, ожидался 400", rec.Code)
	}
}
