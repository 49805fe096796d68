package cron

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"casedesk/internal/alert"
	"casedesk/internal/audit"
	caserepo "casedesk/internal/cases/repository"
	docrepo "casedesk/internal/document/repository"
	"casedesk/internal/form"
	"casedesk/internal/invite"
	"casedesk/internal/notify"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditor := audit.NewRecorder(db)
	alertRepo := alert.NewRepository(db)
	alertSvc := alert.NewService(alertRepo, caserepo.NewCaseRepository(db),
		docrepo.NewDocumentRepository(db), alert.NewTimezoneCache(db))
	inviteSvc := invite.NewService(db, notify.NewMailer(), auditor)

	return NewHandler(db, form.NewRepository(db), alertSvc, alertRepo, inviteSvc, auditor), mock
}

func TestCleanupReportsCounts(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec("UPDATE forms SET status = 'failed'").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE documents SET status = 'uploaded'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invitations SET status = 'expired'").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM deadline_alerts").
		WillReturnResult(sqlmock.NewResult(0, 4))

	rec := httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result cleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(2), result.FormsReset)
	assert.Equal(t, int64(1), result.DocumentsReset)
	assert.Equal(t, int64(3), result.InvitesExpired)
	assert.Equal(t, int64(4), result.AlertsDeleted)
	assert.Empty(t, result.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupContinuesPastFailures(t *testing.T) {
	h, mock := newTestHandler(t)

	// The forms step blows up; every later step still runs.
	mock.ExpectExec("UPDATE forms SET status = 'failed'").
		WillReturnError(assert.AnError)
	mock.ExpectExec("UPDATE documents SET status = 'uploaded'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE invitations SET status = 'expired'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM deadline_alerts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodGet, "/api/cron/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result cleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "forms:")
	assert.Equal(t, int64(1), result.DocumentsReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupRejectsPost(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Cleanup(rec, httptest.NewRequest(http.MethodPost, "/api/cron/cleanup", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuditArchive(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery("SELECT archive_audit_log\\(\\$1\\)").
		WithArgs(auditRetentionDays).
		WillReturnRows(sqlmock.NewRows([]string{"archive_audit_log"}).AddRow(128))

	rec := httptest.NewRecorder()
	h.AuditArchive(rec, httptest.NewRequest(http.MethodGet, "/api/cron/audit-archive", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(128), result["archived"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadlineSyncEmptyDataset(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery("SELECT (.+) FROM cases WHERE deadline IS NOT NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "firm_id", "attorney_id", "client_id", "title", "case_type",
			"status", "priority", "deadline", "notes", "created_at", "updated_at"}))
	mock.ExpectQuery("SELECT (.+) FROM documents\\s+WHERE expires_at IS NOT NULL").
		WillReturnRows(sqlmock.NewRows([]string{"id", "case_id", "uploader_id", "name", "doc_type", "storage_path",
			"status", "size_bytes", "expires_at", "created_at", "updated_at"}))

	rec := httptest.NewRecorder()
	h.DeadlineSync(rec, httptest.NewRequest(http.MethodGet, "/api/cron/deadline-sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result alert.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.CasesScanned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
