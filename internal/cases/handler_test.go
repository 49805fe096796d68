package cases

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casedesk/internal/audit"
	"casedesk/internal/cases/repository"
	"casedesk/internal/cases/service"
	"casedesk/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*CaseHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCaseHandler(service.NewCaseService(repository.NewCaseRepository(db), audit.NewRecorder(db))), mock
}

func asAttorney(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, "atty-1")
	ctx = context.WithValue(ctx, middleware.RoleKey, "attorney")
	ctx = context.WithValue(ctx, middleware.FirmIDKey, "firm-1")
	return r.WithContext(ctx)
}

func TestUpdateCaseConflictMapsTo409(t *testing.T) {
	h, mock := newTestHandler(t)

	stored := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM cases WHERE id = \\$1").
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "firm_id", "attorney_id", "client_id", "title", "case_type",
			"status", "priority", "deadline", "notes", "created_at", "updated_at"}).
			AddRow("case-1", "firm-1", "atty-1", "client-1", "Petition", "I-130",
				"in_review", "normal", nil, "", stored, stored))

	// The client's snapshot predates the stored updated_at.
	body := `{"case_id":"case-1","status":"filed","expected_updated_at":"2026-05-01T10:00:00Z"}`
	req := asAttorney(httptest.NewRequest(http.MethodPut, "/api/cases/update", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.UpdateCase(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCaseRequiresExpectedTimestamp(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"case_id":"case-1","status":"filed"}`
	req := asAttorney(httptest.NewRequest(http.MethodPut, "/api/cases/update", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.UpdateCase(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expected_updated_at")
}

func TestCreateCaseValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	req := asAttorney(httptest.NewRequest(http.MethodPost, "/api/cases/create",
		strings.NewReader(`{"title":"No client"}`)))
	rec := httptest.NewRecorder()
	h.CreateCase(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCaseClientForbidden(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cases/create",
		strings.NewReader(`{"client_id":"client-1","case_type":"I-130"}`))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, "client-1")
	ctx = context.WithValue(ctx, middleware.RoleKey, "client")
	ctx = context.WithValue(ctx, middleware.FirmIDKey, "firm-1")
	rec := httptest.NewRecorder()
	h.CreateCase(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
