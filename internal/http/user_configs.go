package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/repository"
)

type userReq struct {
	UserID string `json:"userId"`
}

func getUserConfigHandler(configsRepo repository.UserConfigsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req userReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
		}

		cfg, err := configsRepo.Get(c.Request().Context(), nil, req.UserID)
		if err != nil {
			log.Errorf("get user config failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if cfg == nil {
			return c.JSON(http.StatusOK, map[string]string{"message": "User not found"})
		}

		return c.JSON(http.StatusOK, cfg)
	}
}

func createUserConfigHandler(configsRepo repository.UserConfigsRepository, freeReports int) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req userReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
		}

		cfg := model.UserConfig{
			UserID:               req.UserID,
			Status:               model.StatusFree,
			BillingCycle:         model.CycleMonthly,
			FreeReportsAvailable: freeReports,
		}
		if err := configsRepo.Create(c.Request().Context(), nil, cfg); err != nil {
			log.Errorf("create user config failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		// Create is a no-op on an existing row; return the stored state either way.
		stored, err := configsRepo.Get(c.Request().Context(), nil, req.UserID)
		if err != nil || stored == nil {
			return c.JSON(http.StatusCreated, cfg)
		}

		return c.JSON(http.StatusCreated, stored)
	}
}
