package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rentalytics/rei-gateway/internal/service/reports"
	"github.com/rentalytics/rei-gateway/internal/util"
)

// Business-rule outcomes travel as stable error codes in a 200 body; HTTP
// statuses are reserved for infra and client errors.
const (
	errCodeAccessDenied  = "AccessDeniedException"
	errCodeNoFreeReports = "NoFreeReportsLeftException"
)

type reportReq struct {
	Action     string          `json:"action"`
	ReportID   string          `json:"reportId"`
	UserID     string          `json:"userId"`
	IsSharable *bool           `json:"isSharable,omitempty"`
	ReportData json.RawMessage `json:"reportData,omitempty"`
}

func reportsHandler(reportsSvc *reports.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reportReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.UserID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "userId is required"})
		}

		switch req.Action {
		case "saveRentalReport":
			return saveReport(c, reportsSvc, req)
		case "getRentalReport":
			return getReport(c, reportsSvc, req)
		case "deleteRentalReport":
			return deleteReport(c, reportsSvc, req)
		case "changeRentalReportSharability":
			return changeSharability(c, reportsSvc, req)
		default:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid action"})
		}
	}
}

func saveReport(c echo.Context, svc *reports.Service, req reportReq) error {
	if len(req.ReportData) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reportData is required"})
	}
	reportID := req.ReportID
	if reportID == "" {
		reportID = util.New()
	}

	report, err := svc.Save(c.Request().Context(), req.UserID, reportID, req.ReportData)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrAccessDenied):
			return c.JSON(http.StatusOK, map[string]string{"error": errCodeAccessDenied})
		case errors.Is(err, reports.ErrNoFreeReports):
			return c.JSON(http.StatusOK, map[string]string{"error": errCodeNoFreeReports})
		case errors.Is(err, reports.ErrUserNotFound):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "user not found"})
		default:
			log.Errorf("save report failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}

	return c.JSON(http.StatusOK, report)
}

func getReport(c echo.Context, svc *reports.Service, req reportReq) error {
	if req.ReportID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reportId is required"})
	}

	report, err := svc.Get(c.Request().Context(), req.UserID, req.ReportID)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "report not found"})
		case errors.Is(err, reports.ErrAccessDenied):
			return c.JSON(http.StatusOK, map[string]string{"error": errCodeAccessDenied})
		default:
			log.Errorf("get report failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}

	return c.JSON(http.StatusOK, report)
}

func deleteReport(c echo.Context, svc *reports.Service, req reportReq) error {
	if req.ReportID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reportId is required"})
	}

	err := svc.Delete(c.Request().Context(), req.UserID, req.ReportID)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "report not found"})
		case errors.Is(err, reports.ErrAccessDenied):
			return c.JSON(http.StatusOK, map[string]string{"error": errCodeAccessDenied})
		default:
			log.Errorf("delete report failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"reportId": req.ReportID,
	})
}

func changeSharability(c echo.Context, svc *reports.Service, req reportReq) error {
	if req.ReportID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "reportId is required"})
	}
	if req.IsSharable == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "isSharable is required"})
	}

	report, err := svc.ChangeSharability(c.Request().Context(), req.UserID, req.ReportID, *req.IsSharable)
	if err != nil {
		switch {
		case errors.Is(err, reports.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "report not found"})
		case errors.Is(err, reports.ErrAccessDenied):
			return c.JSON(http.StatusOK, map[string]string{"error": errCodeAccessDenied})
		default:
			log.Errorf("change sharability failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}

	return c.JSON(http.StatusOK, report)
}
