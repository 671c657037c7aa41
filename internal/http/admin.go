package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/repository"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
)

// resetUsageHandler zeroes the monthly upstream-call counter. Normally driven
// by a scheduler at the start of each billing month.
func resetUsageHandler(gw *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := gw.ResetUsage(c.Request().Context()); err != nil {
			log.Errorf("usage reset failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]string{"message": "API usage count reset successfully."})
	}
}

func currentUsageHandler(gw *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		usage, ceiling, err := gw.Usage(c.Request().Context())
		if err != nil {
			log.Errorf("usage lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"apiName": usage.APIName,
			"count":   usage.Count,
			"limit":   ceiling,
		})
	}
}

func listAuditEventsHandler(auditRepo repository.AuditEventsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var kind model.AuditEventKind
		if raw := strings.TrimSpace(c.QueryParam("kind")); raw != "" {
			kind = model.AuditEventKind(raw)
		}
		userID := strings.TrimSpace(c.QueryParam("userId"))

		events, err := auditRepo.List(c.Request().Context(), userID, kind, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
