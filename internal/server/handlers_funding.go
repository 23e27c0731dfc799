package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CodeNoob53/funding-calculator-server/internal/domain"
	"github.com/CodeNoob53/funding-calculator-server/internal/metrics"
	apperrors "github.com/CodeNoob53/funding-calculator-server/internal/platform/errors"
)

// unavailableMessage is returned with the sentinel body while no usable data exists.
const unavailableMessage = "data temporarily unavailable, please try again later"

func (s *Server) handleFundingRates(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, ok := s.store.Get(ctx)
	if !ok && s.refresher != nil {
		slog.InfoContext(ctx, "Snapshot store empty, polling upstream synchronously")
		snapshot = s.refresher.PollNow(ctx)
	}

	if snapshot == nil || snapshot.Degraded() {
		metrics.HTTPErrorsTotal.WithLabelValues(string(apperrors.TypeUnavailable)).Inc()
		slog.WarnContext(ctx, "Funding data unavailable", "cold", snapshot == nil)
		body := domain.NewDegradedSnapshot()
		body.Message = unavailableMessage
		return writeJSON(c, http.StatusServiceUnavailable, body)
	}

	return writeJSON(c, http.StatusOK, snapshot)
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
