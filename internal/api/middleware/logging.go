// logging.go - логирование входящих HTTP-запросов через slog.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// contextKeyRequestActor - ячейка инициатора, которую заполняет аутентификация
// ниже по цепочке middleware.
const contextKeyRequestActor contextKey = "request_actor"

type actorSlot struct {
	actor string
}

// noteActor сохраняет инициатора для журнала запросов, если ячейка есть.
func noteActor(ctx context.Context, claims *AuthClaims) {
	if slot, ok := ctx.Value(contextKeyRequestActor).(*actorSlot); ok && claims != nil {
		slot.actor = claims.Actor()
	}
}

// loggedParams - path-параметры, попадающие в журнал.
var loggedParams = []string{"booking_id", "form_id"}

// responseWriter перехватывает статус-код и размер ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger логирует каждый запрос. Уровень зависит от статуса:
// INFO до 4xx, WARN для 4xx, ERROR для 5xx.
// Для маршрутов API добавляются шаблон маршрута, booking_id/form_id и инициатор.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			slot := &actorSlot{}
			r = r.WithContext(context.WithValue(r.Context(), contextKeyRequestActor, slot))

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			// RouteContext заполняется роутером по ходу обработки
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
				for _, name := range loggedParams {
					if v := rctx.URLParam(name); v != "" {
						attrs = append(attrs, slog.String(name, v))
					}
				}
			}
			if slot.actor != "" {
				attrs = append(attrs, slog.String("actor", slot.actor))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
