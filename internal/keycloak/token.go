// Пакет keycloak - получение SA-токена Document Module через
// client_credentials grant для обращений к Storage Element.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// refreshMargin - токен обновляется заранее, за это время до истечения.
const refreshMargin = 30 * time.Second

type tokenInfo struct {
	accessToken string
	expiresAt   time.Time
}

// TokenSource - кэширующий источник SA-токена.
type TokenSource struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logger       *slog.Logger

	mu    sync.RWMutex
	token *tokenInfo
	now   func() time.Time
}

// NewTokenSource создаёт источник токенов.
// tokenURL - {keycloak}/realms/{realm}/protocol/openid-connect/token.
func NewTokenSource(tokenURL, clientID, clientSecret string, logger *slog.Logger) *TokenSource {
	return &TokenSource{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger.With(slog.String("component", "keycloak_token")),
		now:          time.Now,
	}
}

// Token возвращает действующий SA-токен, при необходимости запрашивая новый.
// Сигнатура совместима с blobstore.TokenProvider.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != nil && s.now().Before(s.token.expiresAt) {
		token := s.token.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Другая горутина могла уже обновить токен
	if s.token != nil && s.now().Before(s.token.expiresAt) {
		return s.token.accessToken, nil
	}

	return s.requestToken(ctx)
}

// requestToken запрашивает токен. Вызывается под write lock.
func (s *TokenSource) requestToken(ctx context.Context) (string, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("создание запроса token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("запрос token к Keycloak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Keycloak token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		Token     string `json:"access_token"` //nolint:gosec // JSON-маппинг OAuth2 ответа
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("декодирование token response: %w", err)
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("пустой access_token в ответе Keycloak")
	}

	ttl := time.Duration(tokenResp.ExpiresIn)*time.Second - refreshMargin
	if ttl < 0 {
		ttl = 0
	}
	s.token = &tokenInfo{
		accessToken: tokenResp.Token,
		expiresAt:   s.now().Add(ttl),
	}

	s.logger.Debug("SA-токен получен",
		slog.Int("expires_in", tokenResp.ExpiresIn),
	)

	return tokenResp.Token, nil
}
