package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitAllowance(t *testing.T) {
	assert.Equal(t, int64(10), RateLimitConfig{RPS: 10}.allowance())
	assert.Equal(t, int64(30), RateLimitConfig{RPS: 10, Burst: 20}.allowance())
}

func TestRateLimitDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()

	h := RateLimitMiddleware(RateLimitConfig{RPS: 1})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	_ = h(e.NewContext(req, rec))
	assert.Equal(t, http.StatusOK, rec.Code)
}
