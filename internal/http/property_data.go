package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
	"github.com/rentalytics/rei-gateway/internal/util"
)

const quotaExceededMsg = "API limit exceeded. Please try again later."

type propertyDataReq struct {
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`
}

func propertyDataHandler(gw *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req propertyDataReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.StreetAddress = util.NormalizeField(req.StreetAddress)
		req.City = util.NormalizeField(req.City)
		req.State = util.NormalizeField(req.State)
		req.ZipCode = util.NormalizeField(req.ZipCode)

		if req.StreetAddress == "" || req.City == "" || req.State == "" || req.ZipCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing address fields"})
		}

		item, err := gw.FetchProperty(c.Request().Context(), req.StreetAddress, req.City, req.State, req.ZipCode)
		if err != nil {
			if errors.Is(err, gateway.ErrQuotaExceeded) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": quotaExceededMsg})
			}
			if errors.Is(err, gateway.ErrUpstream) {
				log.Errorf("property fetch failed: %v", err)
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to fetch property data"})
			}

			log.Errorf("property lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		return c.JSON(http.StatusOK, item)
	}
}
