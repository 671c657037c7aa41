package reports

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rentalytics/rei-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReports struct {
	rows    map[string]*model.RentalReport
	inserts int
}

func newFakeReports(rows ...*model.RentalReport) *fakeReports {
	m := map[string]*model.RentalReport{}
	for _, r := range rows {
		m[r.ReportID] = r
	}
	return &fakeReports{rows: m}
}

func (f *fakeReports) Get(_ context.Context, _ *sqlx.Tx, reportID string) (*model.RentalReport, error) {
	r, ok := f.rows[reportID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReports) Insert(_ context.Context, _ *sqlx.Tx, report model.RentalReport) error {
	f.inserts++
	f.rows[report.ReportID] = &report
	return nil
}

func (f *fakeReports) UpdateData(_ context.Context, _ *sqlx.Tx, reportID string, data json.RawMessage) error {
	f.rows[reportID].ReportData = data
	return nil
}

func (f *fakeReports) SetSharability(_ context.Context, _ *sqlx.Tx, reportID string, sharable bool) error {
	f.rows[reportID].IsSharable = sharable
	return nil
}

func (f *fakeReports) Delete(_ context.Context, _ *sqlx.Tx, reportID string) error {
	delete(f.rows, reportID)
	return nil
}

type fakeConfigs struct {
	users map[string]*model.UserConfig
}

func newFakeConfigs(users ...*model.UserConfig) *fakeConfigs {
	m := map[string]*model.UserConfig{}
	for _, u := range users {
		m[u.UserID] = u
	}
	return &fakeConfigs{users: m}
}

func (f *fakeConfigs) Get(_ context.Context, _ *sqlx.Tx, userID string) (*model.UserConfig, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeConfigs) Create(_ context.Context, _ *sqlx.Tx, cfg model.UserConfig) error {
	f.users[cfg.UserID] = &cfg
	return nil
}

func (f *fakeConfigs) ActivateSubscription(_ context.Context, _ *sqlx.Tx, _, _ string, _ model.BillingCycle) (bool, error) {
	return true, nil
}

func (f *fakeConfigs) MirrorPeriod(_ context.Context, _ *sqlx.Tx, _ string, _ *int64, _ bool) (bool, error) {
	return true, nil
}

func (f *fakeConfigs) Deactivate(_ context.Context, _ *sqlx.Tx, _ string) (bool, error) {
	return true, nil
}

func (f *fakeConfigs) SetBillingCycle(_ context.Context, _ *sqlx.Tx, _ string, _ model.BillingCycle) (bool, error) {
	return true, nil
}

func (f *fakeConfigs) DecrementFreeReports(_ context.Context, _ *sqlx.Tx, userID string) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.FreeReportsAvailable <= 0 {
		return false, nil
	}
	u.FreeReportsAvailable--
	return true, nil
}

type fakeOutbox struct {
	inserts int
}

func (f *fakeOutbox) Insert(_ context.Context, _ *sqlx.Tx, _, _, _ string, _ []byte) error {
	f.inserts++
	return nil
}

func freeUser(id string, reportsLeft int) *model.UserConfig {
	return &model.UserConfig{UserID: id, Status: model.StatusFree, FreeReportsAvailable: reportsLeft}
}

func proUser(id string) *model.UserConfig {
	return &model.UserConfig{UserID: id, Status: model.StatusPro}
}

var payload = json.RawMessage(`{"price":320000,"rent":1850}`)

func TestSaveNewReportConsumesFreeReport(t *testing.T) {
	repo := newFakeReports()
	configs := newFakeConfigs(freeUser("u1", 5))
	outbox := &fakeOutbox{}

	svc := New(nil, repo, configs, outbox)

	report, err := svc.Save(context.Background(), "u1", "r1", payload)
	require.NoError(t, err)
	assert.Equal(t, "r1", report.ReportID)
	assert.False(t, report.IsSharable, "new reports start private")
	assert.Equal(t, 4, configs.users["u1"].FreeReportsAvailable)
	assert.Equal(t, 1, repo.inserts)
	assert.Equal(t, 1, outbox.inserts)
}

func TestSaveNewReportAtFloorWritesNothing(t *testing.T) {
	repo := newFakeReports()
	configs := newFakeConfigs(freeUser("u1", 0))

	svc := New(nil, repo, configs, &fakeOutbox{})

	_, err := svc.Save(context.Background(), "u1", "r1", payload)
	assert.ErrorIs(t, err, ErrNoFreeReports)
	assert.Equal(t, 0, repo.inserts, "a rejected save must not write the report")
	assert.Equal(t, 0, configs.users["u1"].FreeReportsAvailable)
}

func TestSaveNewReportProUserUnmetered(t *testing.T) {
	repo := newFakeReports()
	configs := newFakeConfigs(proUser("u1"))

	svc := New(nil, repo, configs, &fakeOutbox{})

	_, err := svc.Save(context.Background(), "u1", "r1", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.inserts)
	assert.Equal(t, 0, configs.users["u1"].FreeReportsAvailable)
}

func TestSaveExistingReportNeverDecrements(t *testing.T) {
	repo := newFakeReports(&model.RentalReport{ReportID: "r1", UserID: "u1", ReportData: payload})
	configs := newFakeConfigs(freeUser("u1", 2))

	svc := New(nil, repo, configs, &fakeOutbox{})

	updated := json.RawMessage(`{"price":315000}`)
	report, err := svc.Save(context.Background(), "u1", "r1", updated)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated), string(report.ReportData))
	assert.Equal(t, 2, configs.users["u1"].FreeReportsAvailable, "updates are free")
	assert.Equal(t, 0, repo.inserts)
}

func TestSaveExistingReportOtherOwnerDenied(t *testing.T) {
	repo := newFakeReports(&model.RentalReport{ReportID: "r1", UserID: "owner", ReportData: payload})
	configs := newFakeConfigs(freeUser("intruder", 5))

	svc := New(nil, repo, configs, &fakeOutbox{})

	_, err := svc.Save(context.Background(), "intruder", "r1", payload)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.JSONEq(t, string(payload), string(repo.rows["r1"].ReportData))
}

func TestSaveUnknownUser(t *testing.T) {
	svc := New(nil, newFakeReports(), newFakeConfigs(), &fakeOutbox{})

	_, err := svc.Save(context.Background(), "ghost", "r1", payload)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetOwnerAndSharableAccess(t *testing.T) {
	repo := newFakeReports(
		&model.RentalReport{ReportID: "private", UserID: "owner", ReportData: payload},
		&model.RentalReport{ReportID: "shared", UserID: "owner", ReportData: payload, IsSharable: true},
	)
	svc := New(nil, repo, newFakeConfigs(), &fakeOutbox{})

	// owner reads both
	_, err := svc.Get(context.Background(), "owner", "private")
	require.NoError(t, err)

	// non-owner reads only the sharable one
	_, err = svc.Get(context.Background(), "someone", "shared")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "someone", "private")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = svc.Get(context.Background(), "owner", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOwnerOnlyAndNoRefund(t *testing.T) {
	repo := newFakeReports(&model.RentalReport{ReportID: "r1", UserID: "owner", ReportData: payload})
	configs := newFakeConfigs(freeUser("owner", 3))
	svc := New(nil, repo, configs, &fakeOutbox{})

	err := svc.Delete(context.Background(), "someone", "r1")
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, svc.Delete(context.Background(), "owner", "r1"))
	assert.Empty(t, repo.rows)
	assert.Equal(t, 3, configs.users["owner"].FreeReportsAvailable, "deletion never refunds the allowance")

	err = svc.Delete(context.Background(), "owner", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeSharability(t *testing.T) {
	repo := newFakeReports(&model.RentalReport{ReportID: "r1", UserID: "owner", ReportData: payload})
	svc := New(nil, repo, newFakeConfigs(), &fakeOutbox{})

	_, err := svc.ChangeSharability(context.Background(), "someone", "r1", true)
	assert.ErrorIs(t, err, ErrAccessDenied)

	report, err := svc.ChangeSharability(context.Background(), "owner", "r1", true)
	require.NoError(t, err)
	assert.True(t, report.IsSharable)
	assert.True(t, repo.rows["r1"].IsSharable)
}
