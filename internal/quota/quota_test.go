package quota

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db), mock
}

func expectPlan(mock sqlmock.Sqlmock, plan string) {
	mock.ExpectQuery("SELECT plan FROM firms WHERE id = \\$1").
		WithArgs("firm-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow(plan))
}

func TestCheckWithHeadroom(t *testing.T) {
	svc, mock := newTestService(t)

	expectPlan(mock, "free")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("firm-1", sqlmock.AnyArg(), MetricAICalls).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(49))

	assert.NoError(t, svc.Check("firm-1", MetricAICalls))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAtLimit(t *testing.T) {
	svc, mock := newTestService(t)

	expectPlan(mock, "free")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(50))

	assert.ErrorIs(t, svc.Check("firm-1", MetricAICalls), ErrQuotaExceeded)
}

func TestCheckNoUsageRowYet(t *testing.T) {
	svc, mock := newTestService(t)

	// First metered call of the month: no counter row exists yet.
	expectPlan(mock, "free")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WillReturnRows(sqlmock.NewRows([]string{"used"}))

	assert.NoError(t, svc.Check("firm-1", MetricPDFFills))
}

func TestCheckUnknownPlanDefaultsToFree(t *testing.T) {
	svc, mock := newTestService(t)

	expectPlan(mock, "enterprise-legacy")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(10))

	assert.ErrorIs(t, svc.Check("firm-1", MetricPDFFills), ErrQuotaExceeded, "free plan caps pdf_fills at 10")
}

func TestCheckAmountCountsTheSpend(t *testing.T) {
	svc, mock := newTestService(t)

	// 100 bytes of headroom left on the free plan's 1 GiB cap.
	expectPlan(mock, "free")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("firm-1", sqlmock.AnyArg(), MetricStorage).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(int64(1<<30 - 100)))

	assert.ErrorIs(t, svc.CheckAmount("firm-1", MetricStorage, 4096), ErrQuotaExceeded)

	expectPlan(mock, "free")
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("firm-1", sqlmock.AnyArg(), MetricStorage).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(int64(1<<30 - 100)))

	assert.NoError(t, svc.CheckAmount("firm-1", MetricStorage, 100), "a spend that exactly fills the cap is allowed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUpserts(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("INSERT INTO quota_usage (.+) ON CONFLICT").
		WithArgs("firm-1", sqlmock.AnyArg(), MetricAICalls, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, svc.Record("firm-1", MetricAICalls, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsageReportsAllMetrics(t *testing.T) {
	svc, mock := newTestService(t)

	expectPlan(mock, "starter")
	mock.ExpectQuery("SELECT metric, used FROM quota_usage").
		WithArgs("firm-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"metric", "used"}).
			AddRow(MetricAICalls, 42))

	usage, err := svc.GetUsage("firm-1")
	require.NoError(t, err)
	require.Len(t, usage, 3, "every metric is reported even with no usage row")

	byMetric := map[string]Usage{}
	for _, u := range usage {
		byMetric[u.Metric] = u
	}
	assert.Equal(t, int64(42), byMetric[MetricAICalls].Used)
	assert.Equal(t, int64(500), byMetric[MetricAICalls].Limit)
	assert.Equal(t, int64(0), byMetric[MetricPDFFills].Used)
	assert.Equal(t, int64(100), byMetric[MetricPDFFills].Limit)
}
