package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/rentalytics/rei-gateway/internal/service/gateway"
	"github.com/rentalytics/rei-gateway/internal/service/reports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeCache struct {
	items map[string]model.CacheItem
}

func (f *fakeCache) Get(_ context.Context, key string) (*model.CacheItem, error) {
	item, ok := f.items[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (f *fakeCache) Put(_ context.Context, item model.CacheItem, _ time.Duration) error {
	f.items[item.Key] = item
	return nil
}

type fakeUsage struct {
	count int
}

func (f *fakeUsage) Reserve(_ context.Context, _ string, ceiling int) (bool, error) {
	if f.count >= ceiling {
		return false, nil
	}
	f.count++
	return true, nil
}

func (f *fakeUsage) Current(_ context.Context, apiName string) (*model.APIUsage, error) {
	return &model.APIUsage{APIName: apiName, Count: f.count}, nil
}

func (f *fakeUsage) Reset(_ context.Context, _ string) error { f.count = 0; return nil }

type fakeOutbox struct{}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, _, _, _ string, _ []byte) error {
	return nil
}

type fakeUpstream struct {
	payload json.RawMessage
	lastKey string
}

func (f *fakeUpstream) FetchProperty(_ context.Context, addr string) (json.RawMessage, error) {
	f.lastKey = addr
	return f.payload, nil
}

func (f *fakeUpstream) FetchRentEstimate(_ context.Context, addr, propertyType string, _, _ float64, _ int) (json.RawMessage, error) {
	f.lastKey = addr + "|" + propertyType
	return f.payload, nil
}

type fakeReportsRepo struct {
	rows map[string]*model.RentalReport
}

func (f *fakeReportsRepo) Get(_ context.Context, _ *sqlx.Tx, id string) (*model.RentalReport, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReportsRepo) Insert(_ context.Context, _ *sqlx.Tx, r model.RentalReport) error {
	f.rows[r.ReportID] = &r
	return nil
}

func (f *fakeReportsRepo) UpdateData(_ context.Context, _ *sqlx.Tx, id string, data json.RawMessage) error {
	f.rows[id].ReportData = data
	return nil
}

func (f *fakeReportsRepo) SetSharability(_ context.Context, _ *sqlx.Tx, id string, sharable bool) error {
	f.rows[id].IsSharable = sharable
	return nil
}

func (f *fakeReportsRepo) Delete(_ context.Context, _ *sqlx.Tx, id string) error {
	delete(f.rows, id)
	return nil
}

type fakeConfigsRepo struct {
	users map[string]*model.UserConfig
}

func (f *fakeConfigsRepo) Get(_ context.Context, _ *sqlx.Tx, userID string) (*model.UserConfig, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeConfigsRepo) Create(_ context.Context, _ *sqlx.Tx, cfg model.UserConfig) error {
	if _, ok := f.users[cfg.UserID]; !ok {
		f.users[cfg.UserID] = &cfg
	}
	return nil
}

func (f *fakeConfigsRepo) ActivateSubscription(_ context.Context, _ *sqlx.Tx, _, _ string, _ model.BillingCycle) (bool, error) {
	return true, nil
}

func (f *fakeConfigsRepo) MirrorPeriod(_ context.Context, _ *sqlx.Tx, _ string, _ *int64, _ bool) (bool, error) {
	return true, nil
}

func (f *fakeConfigsRepo) Deactivate(_ context.Context, _ *sqlx.Tx, _ string) (bool, error) {
	return true, nil
}

func (f *fakeConfigsRepo) SetBillingCycle(_ context.Context, _ *sqlx.Tx, _ string, _ model.BillingCycle) (bool, error) {
	return true, nil
}

func (f *fakeConfigsRepo) DecrementFreeReports(_ context.Context, _ *sqlx.Tx, userID string) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.FreeReportsAvailable <= 0 {
		return false, nil
	}
	u.FreeReportsAvailable--
	return true, nil
}

// ---- helpers ----

func doJSON(h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = h(e.NewContext(req, rec))
	return rec
}

func newGatewayService(usage *fakeUsage, up *fakeUpstream, ceiling int) *gateway.Service {
	return gateway.New(&fakeCache{items: map[string]model.CacheItem{}}, usage, &fakeOutbox{}, up, "rentcast", ceiling, time.Hour)
}

// ---- gateway handlers ----

func TestPropertyDataMissingFields(t *testing.T) {
	h := propertyDataHandler(newGatewayService(&fakeUsage{}, &fakeUpstream{payload: json.RawMessage(`{}`)}, 48))

	rec := doJSON(h, `{"streetAddress":"123 Main St","city":"Austin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropertyDataQuotaExceeded(t *testing.T) {
	usage := &fakeUsage{count: 2}
	h := propertyDataHandler(newGatewayService(usage, &fakeUpstream{payload: json.RawMessage(`{}`)}, 2))

	rec := doJSON(h, `{"streetAddress":"123 Main St","city":"Austin","state":"TX","zipCode":"78701"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "API limit exceeded. Please try again later.")
}

func TestPropertyDataSuccess(t *testing.T) {
	up := &fakeUpstream{payload: json.RawMessage(`{"id":"p1"}`)}
	h := propertyDataHandler(newGatewayService(&fakeUsage{}, up, 48))

	rec := doJSON(h, `{"streetAddress":" 123  Main St ","city":"Austin","state":"tx","zipCode":"78701"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"p1"`)
	assert.Equal(t, "123 Main St, Austin, TX, 78701", up.lastKey, "address is normalized before the upstream call")
}

func TestRentEstimateDefaultsPropertyType(t *testing.T) {
	up := &fakeUpstream{payload: json.RawMessage(`{"rent":1850}`)}
	h := rentEstimateHandler(newGatewayService(&fakeUsage{}, up, 48))

	rec := doJSON(h, `{"streetAddress":"123 Main St","city":"Austin","state":"TX","zipCode":"78701","bedrooms":3,"bathrooms":2,"squareFootage":1500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(up.lastKey, "|Single Family"))
}

func TestRentEstimateRejectsMissingAttributes(t *testing.T) {
	usage := &fakeUsage{}
	up := &fakeUpstream{payload: json.RawMessage(`{}`)}
	h := rentEstimateHandler(newGatewayService(usage, up, 48))

	bodies := []string{
		`{"streetAddress":"123 Main St","city":"Austin","state":"TX","zipCode":"78701"}`,
		`{"streetAddress":"123 Main St","city":"Austin","state":"TX","zipCode":"78701","bedrooms":3,"bathrooms":2}`,
		`{"streetAddress":"123 Main St","city":"Austin","state":"TX","zipCode":"78701","bedrooms":0,"bathrooms":2,"squareFootage":1500}`,
	}
	for _, body := range bodies {
		rec := doJSON(h, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Equal(t, 0, usage.count, "rejected input must not consume a quota slot")
	assert.Empty(t, up.lastKey, "rejected input must not reach upstream")
}

// ---- reports handler ----

func newReportsHandler(configs *fakeConfigsRepo, rows ...*model.RentalReport) echo.HandlerFunc {
	repo := &fakeReportsRepo{rows: map[string]*model.RentalReport{}}
	for _, r := range rows {
		repo.rows[r.ReportID] = r
	}
	return reportsHandler(reports.New(nil, repo, configs, &fakeOutbox{}))
}

func TestReportsInvalidAction(t *testing.T) {
	h := newReportsHandler(&fakeConfigsRepo{users: map[string]*model.UserConfig{}})

	rec := doJSON(h, `{"action":"nuke","userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportsSaveNoFreeReportsLeft(t *testing.T) {
	configs := &fakeConfigsRepo{users: map[string]*model.UserConfig{
		"u1": {UserID: "u1", Status: model.StatusFree, FreeReportsAvailable: 0},
	}}
	h := newReportsHandler(configs)

	rec := doJSON(h, `{"action":"saveRentalReport","userId":"u1","reportId":"r1","reportData":{"price":1}}`)
	require.Equal(t, http.StatusOK, rec.Code, "business outcome travels in the body, not the status")
	assert.Contains(t, rec.Body.String(), "NoFreeReportsLeftException")
}

func TestReportsGetAccessDenied(t *testing.T) {
	h := newReportsHandler(
		&fakeConfigsRepo{users: map[string]*model.UserConfig{}},
		&model.RentalReport{ReportID: "r1", UserID: "owner", ReportData: json.RawMessage(`{}`)},
	)

	rec := doJSON(h, `{"action":"getRentalReport","userId":"someone","reportId":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AccessDeniedException")
}

func TestReportsGetSharableByNonOwner(t *testing.T) {
	h := newReportsHandler(
		&fakeConfigsRepo{users: map[string]*model.UserConfig{}},
		&model.RentalReport{ReportID: "r1", UserID: "owner", ReportData: json.RawMessage(`{"price":1}`), IsSharable: true},
	)

	rec := doJSON(h, `{"action":"getRentalReport","userId":"someone","reportId":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":1`)
}

func TestReportsGetNotFound(t *testing.T) {
	h := newReportsHandler(&fakeConfigsRepo{users: map[string]*model.UserConfig{}})

	rec := doJSON(h, `{"action":"getRentalReport","userId":"u1","reportId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportsMissingUserID(t *testing.T) {
	h := newReportsHandler(&fakeConfigsRepo{users: map[string]*model.UserConfig{}})

	rec := doJSON(h, `{"action":"getRentalReport","reportId":"r1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- user config handlers ----

func TestGetUserConfigNotFound(t *testing.T) {
	h := getUserConfigHandler(&fakeConfigsRepo{users: map[string]*model.UserConfig{}})

	rec := doJSON(h, `{"userId":"ghost"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "User not found")
}

func TestCreateUserConfigSeedsDefaults(t *testing.T) {
	configs := &fakeConfigsRepo{users: map[string]*model.UserConfig{}}
	h := createUserConfigHandler(configs, 5)

	rec := doJSON(h, `{"userId":"u1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"free"`)
	assert.Contains(t, rec.Body.String(), `"freeReportsAvailable":5`)

	// creating again keeps the stored row
	configs.users["u1"].FreeReportsAvailable = 2
	rec = doJSON(h, `{"userId":"u1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"freeReportsAvailable":2`)
}
