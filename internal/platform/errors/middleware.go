package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
)

// Middleware returns an Echo middleware that renders structured errors as JSON.
// Echo HTTPErrors are counted and passed through to Echo's error handler.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				metrics.HTTPErrorsTotal.WithLabelValues(string(WrapHTTPError(httpErr).Type)).Inc()
				return err
			}

			return HandleError(c, err)
		}
	}
}

// HandleError logs err, counts it and writes the JSON response.
func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := AsStructuredError(err)
	metrics.HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
		"remote_ip", c.RealIP(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if subject := c.Get("subject"); subject != nil {
		attrs = append(attrs, "subject", subject)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case TypeValidation, TypeNotFound:
		slog.InfoContext(ctx, "Client error", attrs...)
	case TypeUnauthorized, TypeForbidden, TypeRateLimited:
		slog.WarnContext(ctx, "Request rejected", attrs...)
	case TypeUnavailable:
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	case TypeExternal:
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// WrapHTTPError converts Echo's HTTPError to a structured error.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var errType ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = TypeValidation
	case http.StatusUnauthorized:
		errType = TypeUnauthorized
	case http.StatusForbidden:
		errType = TypeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		errType = TypeNotFound
	case http.StatusTooManyRequests:
		errType = TypeRateLimited
	case http.StatusBadGateway:
		errType = TypeExternal
	case http.StatusServiceUnavailable:
		errType = TypeUnavailable
	default:
		errType = TypeInternal
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
		Context: make(map[string]any),
	}
}
