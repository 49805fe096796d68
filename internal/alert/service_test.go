package alert

import (
	"testing"
	"time"

	caserepo "casedesk/internal/cases/repository"
	docrepo "casedesk/internal/document/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caseCols = []string{"id", "firm_id", "attorney_id", "client_id", "title", "case_type",
	"status", "priority", "deadline", "notes", "created_at", "updated_at"}

var docCols = []string{"id", "case_id", "uploader_id", "name", "doc_type", "storage_path",
	"status", "size_bytes", "expires_at", "created_at", "updated_at"}

func TestSyncGeneratesAlertsPerRecipient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Upserts run on a worker pool, so their order is not deterministic.
	mock.MatchExpectationsInOrder(false)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(10 * 24 * time.Hour)
	filedAt := now.AddDate(0, 0, -30)
	expiry := now.Add(20 * 24 * time.Hour)

	// One filed I-765 case with a deadline, one expiring document on it.
	mock.ExpectQuery("SELECT (.+) FROM cases WHERE deadline IS NOT NULL").
		WillReturnRows(sqlmock.NewRows(caseCols).
			AddRow("case-1", "firm-1", "atty-1", "client-1", "Work permit", "I-765",
				"filed", "normal", deadline, "", filedAt, filedAt))
	mock.ExpectQuery("SELECT (.+) FROM documents\\s+WHERE expires_at IS NOT NULL").
		WithArgs(expiryWindowDays).
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("doc-1", "case-1", "client-1", "passport.pdf", "passport", "firms/firm-1/cases/case-1/doc-1",
				"verified", 1024, expiry, filedAt, filedAt))

	// Timezone lookups, one per distinct recipient (cached afterwards).
	mock.ExpectQuery("SELECT timezone FROM profiles WHERE id = \\$1").
		WithArgs("atty-1").
		WillReturnRows(sqlmock.NewRows([]string{"timezone"}).AddRow("UTC"))
	mock.ExpectQuery("SELECT timezone FROM profiles WHERE id = \\$1").
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"timezone"}).AddRow("UTC"))

	// Expected alerts: case deadline x2 recipients, processing estimate for
	// the attorney, document expiry x2 recipients.
	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO deadline_alerts").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	svc := NewService(NewRepository(db), caserepo.NewCaseRepository(db),
		docrepo.NewDocumentRepository(db), NewTimezoneCache(db))

	result, err := svc.Sync(now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CasesScanned)
	assert.Equal(t, 1, result.DocsScanned)
	assert.Equal(t, int64(5), result.Upserted)
	assert.Equal(t, int64(0), result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncCountsFailedUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(2 * 24 * time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM cases WHERE deadline IS NOT NULL").
		WillReturnRows(sqlmock.NewRows(caseCols).
			AddRow("case-1", "firm-1", "atty-1", "client-1", "Naturalization", "N-400",
				"in_review", "high", deadline, "", now, now))
	mock.ExpectQuery("SELECT (.+) FROM documents\\s+WHERE expires_at IS NOT NULL").
		WillReturnRows(sqlmock.NewRows(docCols))

	mock.ExpectQuery("SELECT timezone FROM profiles WHERE id = \\$1").
		WithArgs("atty-1").
		WillReturnRows(sqlmock.NewRows([]string{"timezone"}).AddRow("UTC"))
	mock.ExpectQuery("SELECT timezone FROM profiles WHERE id = \\$1").
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"timezone"}).AddRow("UTC"))

	mock.ExpectExec("INSERT INTO deadline_alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO deadline_alerts").
		WillReturnError(assert.AnError)

	svc := NewService(NewRepository(db), caserepo.NewCaseRepository(db),
		docrepo.NewDocumentRepository(db), NewTimezoneCache(db))

	result, err := svc.Sync(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Upserted)
	assert.Equal(t, int64(1), result.Failed)
}

func TestAcknowledgeScopedToOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectExec("UPDATE deadline_alerts SET acknowledged = true").
		WithArgs("alert-1", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.Acknowledge("alert-1", "someone-else")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "another user's alert is untouched")
}
