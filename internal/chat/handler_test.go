package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casedesk/internal/ai"
	"casedesk/internal/audit"
	caserepo "casedesk/internal/cases/repository"
	"casedesk/internal/quota"
	"casedesk/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, llmURL string) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient.Timeout = 2 * time.Second
	llm := &ai.LLMClient{BaseURL: llmURL, Model: "test-model", HTTP: client}

	svc := NewService(NewRepository(db), caserepo.NewCaseRepository(db), llm,
		quota.NewService(db), audit.NewRecorder(db))
	return NewHandler(svc), mock
}

func authedRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, "client-1")
	ctx = context.WithValue(ctx, middleware.FirmIDKey, "firm-1")
	ctx = context.WithValue(ctx, middleware.RoleKey, "client")
	return r.WithContext(ctx)
}

func expectParticipant(mock sqlmock.Sqlmock, ok bool) {
	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM conversations`).
		WithArgs("conv-1", "client-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(ok))
}

func expectAIQuota(mock sqlmock.Sqlmock, used int64) {
	mock.ExpectQuery("SELECT plan FROM firms WHERE id = \\$1").
		WithArgs("firm-1").
		WillReturnRows(sqlmock.NewRows([]string{"plan"}).AddRow("free"))
	mock.ExpectQuery("SELECT used FROM quota_usage").
		WithArgs("firm-1", sqlmock.AnyArg(), quota.MetricAICalls).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(used))
}

var messageCols = []string{"id", "conversation_id", "sender_id", "sender_role", "content", "pending", "created_at"}

func sseToken(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func TestStreamAssistantHappyPath(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseToken("Your "))
		fmt.Fprint(w, sseToken("biometrics appointment is scheduled."))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer llm.Close()

	h, mock := newTestHandler(t, llm.URL)

	expectParticipant(mock, true)
	expectAIQuota(mock, 3)
	// Persist the user's question.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", "client-1", SenderUser, "When is my appointment?", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Prompt assembly pulls recent history.
	mock.ExpectQuery(`SELECT (.+) FROM messages WHERE conversation_id = \$1`).
		WithArgs("conv-1", 20).
		WillReturnRows(sqlmock.NewRows(messageCols).
			AddRow("m-1", "conv-1", "client-1", SenderUser, "When is my appointment?", false, time.Now()))
	// Persist the complete assistant reply.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", "assistant", SenderAssistant, "Your biometrics appointment is scheduled.", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO quota_usage").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	h.StreamAssistant(rec, authedRequest(http.MethodPost, "/api/conversations/assistant/stream",
		`{"conversation_id":"conv-1","content":"When is my appointment?"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"token":"Your "}`)
	assert.Contains(t, body, `data: {"token":"biometrics appointment is scheduled."}`)
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "message_id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamAssistantInterruptedPersistsPartial(t *testing.T) {
	// The provider sends one token and then the connection dies mid-body.
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseToken("Partial answer"))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer llm.Close()

	h, mock := newTestHandler(t, llm.URL)

	expectParticipant(mock, true)
	expectAIQuota(mock, 3)
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM messages WHERE conversation_id = \$1`).
		WillReturnRows(sqlmock.NewRows(messageCols))
	// The partial reply is persisted with the pending marker set.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", "assistant", SenderAssistant, "Partial answer", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	h.StreamAssistant(rec, authedRequest(http.MethodPost, "/api/conversations/assistant/stream",
		`{"conversation_id":"conv-1","content":"Hello?"}`))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"token":"Partial answer"}`)
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "event: done")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamAssistantForbidden(t *testing.T) {
	h, mock := newTestHandler(t, "")

	expectParticipant(mock, false)

	rec := httptest.NewRecorder()
	h.StreamAssistant(rec, authedRequest(http.MethodPost, "/api/conversations/assistant/stream",
		`{"conversation_id":"conv-1","content":"Hello?"}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamAssistantQuotaExceeded(t *testing.T) {
	h, mock := newTestHandler(t, "")

	expectParticipant(mock, true)
	expectAIQuota(mock, 50) // free plan cap

	rec := httptest.NewRecorder()
	h.StreamAssistant(rec, authedRequest(http.MethodPost, "/api/conversations/assistant/stream",
		`{"conversation_id":"conv-1","content":"Hello?"}`))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	h, mock := newTestHandler(t, "")

	expectParticipant(mock, false)

	rec := httptest.NewRecorder()
	h.SendMessage(rec, authedRequest(http.MethodPost, "/api/conversations/messages/send",
		`{"conversation_id":"conv-1","content":"hi"}`))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
