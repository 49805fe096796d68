package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"casedesk/internal/chat"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	var msg WSMessage
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	err = json.Unmarshal(p, &msg)
	require.NoError(t, err, "Failed to unmarshal WSMessage JSON")
	return msg
}

func expectJoin(mock sqlmock.Sqlmock, convID, userID string, history *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM conversations`).
		WithArgs(convID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT id, conversation_id, sender_id, sender_role, content, pending, created_at\s+FROM messages`).
		WithArgs(convID, 50).
		WillReturnRows(history)
}

func TestHubIntegration(t *testing.T) {
	// 1. Setup Mock DB and Hub
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hub := NewHub(chat.NewRepository(db))
	go hub.Run()

	// 2. Setup Test HTTP Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// For simplicity, we'll hardcode the user ID for tests.
		userID := r.URL.Query().Get("user_id")
		ServeWs(hub, w, r, userID)
	}))
	defer server.Close()

	// Convert http:// to ws://
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	// --- Test Scenario ---

	// 3. Attorney joins the conversation room
	convID := "conv-1"
	historyCols := []string{"id", "conversation_id", "sender_id", "sender_role", "content", "pending", "created_at"}
	expectJoin(mock, convID, "attorney-1",
		sqlmock.NewRows(historyCols).
			AddRow("msg-0", convID, "client-1", chat.SenderUser, "Hi, quick question about my case", false, time.Now()))

	conn1, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?conversationId="+convID+"&user_id=attorney-1", nil)
	require.NoError(t, err, "Attorney failed to connect")
	defer conn1.Close()

	// The joining user immediately receives the recent message history.
	historyMsg := readMessage(t, conn1)
	assert.Equal(t, HistoryType, historyMsg.Type)
	assert.Equal(t, convID, historyMsg.ConversationID)
	var history []chat.Message
	require.NoError(t, json.Unmarshal(historyMsg.Payload, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "Hi, quick question about my case", history[0].Content)

	// ...followed by a presence update for the room.
	presenceMsg := readMessage(t, conn1)
	assert.Equal(t, PresenceUpdateType, presenceMsg.Type)

	// 4. Client joins the same room
	expectJoin(mock, convID, "client-1", sqlmock.NewRows(historyCols))

	conn2, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?conversationId="+convID+"&user_id=client-1", nil)
	require.NoError(t, err, "Client failed to connect")
	defer conn2.Close()

	// Client receives its own history message (empty conversation slice).
	_ = readMessage(t, conn2)

	// Attorney should receive a presence update about the client joining.
	presenceMsg = readMessage(t, conn1)
	assert.Equal(t, PresenceUpdateType, presenceMsg.Type)
	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(presenceMsg.Payload, &statuses))
	assert.Len(t, statuses, 2, "Should be two users in the room")
	userIDs := []string{statuses[0].UserID, statuses[1].UserID}
	assert.Contains(t, userIDs, "attorney-1")
	assert.Contains(t, userIDs, "client-1")
	_ = readMessage(t, conn2) // client's copy of the same presence update

	// 5. Client sends a chat message; it must be persisted before fan-out.
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), convID, "client-1", chat.SenderUser, "When is my biometrics appointment?", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msgToSend := WSMessage{
		Type:    MessageType,
		Payload: json.RawMessage(`{"content":"When is my biometrics appointment?"}`),
	}
	msgBytes, _ := json.Marshal(msgToSend)
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, msgBytes), "Client failed to send message")

	// Attorney should receive the broadcasted message.
	broadcastMsg := readMessage(t, conn1)
	assert.Equal(t, MessageType, broadcastMsg.Type)
	assert.Equal(t, "client-1", broadcastMsg.UserID, "Broadcast message should have correct UserID")
	var persisted chat.Message
	require.NoError(t, json.Unmarshal(broadcastMsg.Payload, &persisted))
	assert.Equal(t, "When is my biometrics appointment?", persisted.Content)
	assert.NotEmpty(t, persisted.ID, "Persisted message should carry its row ID")

	// 6. Typing indicators are relayed but never persisted.
	typing := WSMessage{Type: TypingType, Payload: json.RawMessage(`{}`)}
	typingBytes, _ := json.Marshal(typing)
	require.NoError(t, conn2.WriteMessage(websocket.TextMessage, typingBytes))

	typingMsg := readMessage(t, conn1)
	assert.Equal(t, TypingType, typingMsg.Type)
	assert.Equal(t, "client-1", typingMsg.UserID)

	// Ensure all mock expectations were met.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServeWsRejectsNonParticipant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hub := NewHub(chat.NewRepository(db))
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, "intruder")
	}))
	defer server.Close()

	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM conversations`).
		WithArgs("conv-1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws?conversationId=conv-1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.NoError(t, mock.ExpectationsWereMet())
}
