// Пакет renderer - HTTP-клиент внешнего сервиса рендеринга PDF.
// Запрос: POST {baseURL}/api/v1/render/{kind} с JSON-описанием документа,
// ответ: application/pdf.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Kind - вид документа для рендеринга.
type Kind string

const (
	KindServiceForm          Kind = "service_form"
	KindWorkingAreaAgreement Kind = "working_area_agreement"
)

// maxDocumentSize - верхняя граница размера PDF.
const maxDocumentSize = 32 << 20

// Client - клиент сервиса рендеринга.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. Таймаут отдельного рендеринга задаёт контекст вызывающего.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger.With(slog.String("component", "renderer")),
	}
}

// BaseURL возвращает базовый URL сервиса (для dephealth).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Render отправляет input на рендеринг и возвращает байты PDF.
func (c *Client) Render(ctx context.Context, kind Kind, input any) ([]byte, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("сериализация входных данных %s: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/v1/render/%s", c.baseURL, kind), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса Render: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос Render %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("рендерер вернул статус %d для %s: %s", resp.StatusCode, kind, string(msg))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "application/pdf" {
			return nil, fmt.Errorf("рендерер вернул %q вместо application/pdf для %s", ct, kind)
		}
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа Render %s: %w", kind, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("рендерер вернул пустой документ %s", kind)
	}
	if len(pdf) > maxDocumentSize {
		return nil, fmt.Errorf("документ %s превышает %d байт", kind, maxDocumentSize)
	}

	c.logger.Debug("Документ отрендерен",
		slog.String("kind", string(kind)),
		slog.Int("size", len(pdf)),
		slog.Duration("duration", time.Since(start)),
	)
	return pdf, nil
}
