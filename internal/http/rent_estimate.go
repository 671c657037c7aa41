package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
	"github.com/rentalytics/rei-gateway/internal/util"
)

type rentEstimateReq struct {
	StreetAddress string  `json:"streetAddress"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zipCode"`
	PropertyType  string  `json:"propertyType"`
	Bedrooms      float64 `json:"bedrooms"`
	Bathrooms     float64 `json:"bathrooms"`
	SquareFootage int     `json:"squareFootage"`
}

func rentEstimateHandler(gw *gateway.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req rentEstimateReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.StreetAddress = util.NormalizeField(req.StreetAddress)
		req.City = util.NormalizeField(req.City)
		req.State = util.NormalizeField(req.State)
		req.ZipCode = util.NormalizeField(req.ZipCode)
		req.PropertyType = util.NormalizeField(req.PropertyType)

		if req.StreetAddress == "" || req.City == "" || req.State == "" || req.ZipCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing address fields"})
		}
		if req.PropertyType == "" {
			req.PropertyType = "Single Family"
		}
		if req.Bedrooms <= 0 || req.Bathrooms <= 0 || req.SquareFootage <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid property attributes"})
		}

		item, err := gw.FetchRentEstimate(
			c.Request().Context(),
			req.StreetAddress, req.City, req.State, req.ZipCode,
			req.PropertyType, req.Bedrooms, req.Bathrooms, req.SquareFootage,
		)
		if err != nil {
			if errors.Is(err, gateway.ErrQuotaExceeded) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": quotaExceededMsg})
			}
			if errors.Is(err, gateway.ErrUpstream) {
				log.Errorf("rent estimate fetch failed: %v", err)
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to fetch rent estimate"})
			}

			log.Errorf("rent estimate lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}

		return c.JSON(http.StatusOK, item)
	}
}
