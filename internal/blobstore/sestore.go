package blobstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

// TokenProvider - функция, возвращающая SA-токен для авторизации запросов к SE.
type TokenProvider func(ctx context.Context) (string, error)

// seFileMetadata - подмножество ответа SE с метаданными файла.
type seFileMetadata struct {
	FileID   string `json:"file_id"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Status   string `json:"status"`
}

// SEStore - хранилище на базе Storage Element.
type SEStore struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// NewSEStore создаёт клиент Storage Element.
// caCertPath - путь к CA-сертификату для TLS (пустая строка - стандартный пул).
func NewSEStore(baseURL, caCertPath string, tokenProvider TokenProvider, logger *slog.Logger) (*SEStore, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата SE: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат SE добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &SEStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Общий потолок; таймаут отдельной загрузки задаёт контекст вызывающего
		httpClient:    &http.Client{Timeout: 2 * time.Minute, Transport: transport},
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "se_store")),
	}, nil
}

// Upload загружает объект: POST /api/v1/files/upload (multipart, поле file).
func (s *SEStore) Upload(ctx context.Context, req UploadRequest) (*Object, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, req.FileName))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("создание multipart: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("запись multipart: %w", err)
	}
	if req.IdempotencyKey != "" {
		if err := mw.WriteField("description", req.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("запись multipart: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("закрытие multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Upload: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if err := s.authorize(ctx, httpReq); err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(httpReq) //nolint:gosec // URL из конфигурации SE
	if err != nil {
		return nil, fmt.Errorf("запрос Upload к %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("SE Upload вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var meta seFileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("декодирование ответа Upload: %w", err)
	}
	if meta.FileID == "" {
		return nil, fmt.Errorf("SE Upload не вернул file_id")
	}

	s.logger.Debug("Документ загружен в SE",
		slog.String("file_id", meta.FileID),
		slog.String("file_name", req.FileName),
		slog.Int64("size", meta.Size),
	)

	return &Object{
		Key:      meta.FileID,
		URL:      s.DownloadURL(meta.FileID),
		Size:     meta.Size,
		Checksum: meta.Checksum,
	}, nil
}

// Delete удаляет объекты: DELETE /api/v1/files/{file_id}.
// 404 и уже удалённый файл считаются успехом.
func (s *SEStore) Delete(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := s.deleteOne(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SEStore) deleteOne(ctx context.Context, key string) error {
	reqURL := fmt.Sprintf("%s/api/v1/files/%s", s.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}
	if err := s.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации SE
	if err != nil {
		return fmt.Errorf("запрос Delete к %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	case http.StatusConflict:
		// SE отвечает 409 и на повторное удаление, и на запрет удаления в текущем режиме
		meta, metaErr := s.metadata(ctx, key)
		if metaErr == nil && meta.Status == "deleted" {
			return nil
		}
		if errors.Is(metaErr, ErrNotFound) {
			return nil
		}
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("SE Delete вернул статус %d: %s", resp.StatusCode, string(respBody))
}

// metadata запрашивает GET /api/v1/files/{file_id}.
func (s *SEStore) metadata(ctx context.Context, key string) (*seFileMetadata, error) {
	reqURL := fmt.Sprintf("%s/api/v1/files/%s", s.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса metadata: %w", err)
	}
	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации SE
	if err != nil {
		return nil, fmt.Errorf("запрос metadata к %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SE metadata вернул статус %d", resp.StatusCode)
	}

	var meta seFileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("декодирование metadata: %w", err)
	}
	return &meta, nil
}

// DownloadURL возвращает URL скачивания объекта.
func (s *SEStore) DownloadURL(key string) string {
	return fmt.Sprintf("%s/api/v1/files/%s/download", s.baseURL, url.PathEscape(key))
}

func (s *SEStore) authorize(ctx context.Context, req *http.Request) error {
	if s.tokenProvider == nil {
		return nil
	}
	token, err := s.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена для SE: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
