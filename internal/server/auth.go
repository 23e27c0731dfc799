package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	apperrors "github.com/CodeNoob53/funding-calculator-server/internal/platform/errors"
)

const (
	apiKeySubject = "api-key"
	apiKeyHeader  = "X-API-Key"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidAPIKey      = errors.New("invalid api key")
)

// requireAuth verifies the bearer JWT and stores its subject on the context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request())
		if token == "" {
			return apperrors.UnauthorizedError("access token required")
		}

		subject, err := s.verifyToken(token)
		if err != nil {
			return apperrors.ForbiddenError("invalid or expired token", err)
		}

		c.Set("subject", subject)
		return next(c)
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.rateLimiter.Allow(c.RealIP()) {
			metrics.RateLimitedRequestsTotal.Inc()
			return apperrors.RateLimitedError("too many requests, please try again later")
		}
		return next(c)
	}
}

// verifyToken checks an HS256 token and returns the identity it names.
func (s *Server) verifyToken(raw string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	return subjectOf(claims), nil
}

// subjectOf prefers the registered sub claim, then the id and username
// claims older tokens carry.
func subjectOf(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, key := range []string{"id", "username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return "anonymous"
}

// authenticateSocket accepts either the shared API key or a JWT during the
// WebSocket handshake. The API-key path is disabled when no key is configured.
func (s *Server) authenticateSocket(r *http.Request) (string, error) {
	if key := firstNonEmpty(r.URL.Query().Get("apiKey"), r.Header.Get(apiKeyHeader)); key != "" {
		if s.config.APIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) == 1 {
			return apiKeySubject, nil
		}
		return "", errInvalidAPIKey
	}

	token := firstNonEmpty(r.URL.Query().Get("token"), bearerToken(r))
	if token == "" {
		return "", errMissingCredentials
	}
	return s.verifyToken(token)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
