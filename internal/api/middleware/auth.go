// auth.go - JWT middleware модуля документов.
// Проверяет подпись токена Keycloak через JWKS, определяет тип субъекта
// (сотрудник лаборатории или service account) и роль по группам IdP.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/labbooking/document-module/internal/api/errors"
	"github.com/bigkaa/labbooking/document-module/internal/domain/rbac"
)

type contextKey string

// ContextKeyClaims - claims запроса в контексте.
const ContextKeyClaims contextKey = "jwt_claims"

// jwksClientTimeout - таймаут HTTP-клиента JWKS.
const jwksClientTimeout = 10 * time.Second

// SubjectType - тип субъекта JWT.
type SubjectType string

const (
	// SubjectTypeUser - сотрудник, вошедший через OIDC.
	SubjectTypeUser SubjectType = "user"
	// SubjectTypeSA - service account (client credentials).
	SubjectTypeSA SubjectType = "service_account"
)

// AuthClaims - разобранные claims токена.
type AuthClaims struct {
	Subject           string
	SubjectType       SubjectType
	PreferredUsername string
	Email             string

	// Roles - realm_access.roles
	Roles []string
	// Groups - группы пользователя в IdP
	Groups []string
	// EffectiveRole - роль, вычисленная по группам или realm-ролям
	EffectiveRole string

	// Scopes - scope service account
	Scopes []string
	// ClientID - client_id service account
	ClientID string
}

// HasAnyRole проверяет, совпадает ли роль субъекта с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.EffectiveRole)
}

// HasAnyScope проверяет наличие хотя бы одного из указанных scopes.
func (c *AuthClaims) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if slices.Contains(c.Scopes, s) {
			return true
		}
	}
	return false
}

// Actor возвращает идентификатор инициатора для аудита.
func (c *AuthClaims) Actor() string {
	switch {
	case c.SubjectType == SubjectTypeSA && c.ClientID != "":
		return c.ClientID
	case c.Email != "":
		return c.Email
	case c.PreferredUsername != "":
		return c.PreferredUsername
	default:
		return c.Subject
	}
}

type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	Email             string       `json:"email"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
	// Scope - scopes через пробел
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth - middleware JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks           keyfunc.Keyfunc
	logger         *slog.Logger
	adminGroups    []string
	readonlyGroups []string
	issuer         string
	jwtLeeway      time.Duration
}

// NewJWTAuth создаёт middleware с фоновым обновлением JWKS.
// Старт не блокируется недоступностью Keycloak.
func NewJWTAuth(
	jwksURL string,
	issuer string,
	adminGroups, readonlyGroups []string,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: jwksClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, issuer, adminGroups, readonlyGroups, logger)
	auth.jwtLeeway = jwtLeeway
	return auth, nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовой keyfunc.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	adminGroups, readonlyGroups []string,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:           kf,
		logger:         logger.With(slog.String("component", "jwt_auth")),
		adminGroups:    adminGroups,
		readonlyGroups: readonlyGroups,
		issuer:         issuer,
	}
}

// Middleware проверяет Bearer token и кладёт AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			raw := &keycloakClaims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				opts = append(opts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), opts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.buildAuthClaims(raw)
			noteActor(r.Context(), claims)
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) buildAuthClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
	}

	// Service account получает client_id и scope, пользователь - группы и роли.
	if raw.ClientID != "" && raw.Scope != "" {
		claims.SubjectType = SubjectTypeSA
		claims.ClientID = raw.ClientID
		claims.Scopes = strings.Fields(raw.Scope)
		return claims
	}

	claims.SubjectType = SubjectTypeUser
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}
	claims.Groups = raw.Groups
	claims.EffectiveRole = rbac.MapGroupsToRole(claims.Groups, j.adminGroups, j.readonlyGroups)

	if claims.EffectiveRole == "" {
		var valid []string
		for _, r := range claims.Roles {
			if rbac.IsValidRole(r) {
				valid = append(valid, r)
			}
		}
		claims.EffectiveRole = rbac.HighestRole(valid)
	}
	return claims
}

// RequireRoleOrScope пропускает пользователей с одной из ролей roles
// и service accounts с одним из scopes. Ставится после JWTAuth.Middleware().
func RequireRoleOrScope(roles, scopes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			switch claims.SubjectType {
			case SubjectTypeUser:
				if claims.HasAnyRole(roles...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль "+strings.Join(roles, " или "))
			case SubjectTypeSA:
				if claims.HasAnyScope(scopes...) {
					next.ServeHTTP(w, r)
					return
				}
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+strings.Join(scopes, " или "))
			default:
				apierrors.Forbidden(w, "Неизвестный тип субъекта")
			}
		})
	}
}

// ClaimsFromContext извлекает AuthClaims из контекста. nil, если их нет.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// ActorFromContext возвращает инициатора запроса или пустую строку.
func ActorFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Actor()
}

// WithClaims кладёт claims в контекст (обработчики вне JWT middleware, тесты).
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	noteActor(ctx, claims)
	return context.WithValue(ctx, ContextKeyClaims, claims)
}

// KeycloakReadinessChecker - проверка доступности JWKS Keycloak.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewKeycloakReadinessChecker создаёт checker с таймаутом timeout.
func NewKeycloakReadinessChecker(jwksURL string, timeout time.Duration) *KeycloakReadinessChecker {
	return &KeycloakReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// CheckReady запрашивает JWKS и проверяет наличие ключей.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return statusDegraded, fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}
	if len(jwks.Keys) == 0 {
		return statusDegraded, "Keycloak JWKS: нет ключей"
	}
	return statusOK, fmt.Sprintf("JWKS доступен, ключей: %d", len(jwks.Keys))
}
