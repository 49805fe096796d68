package socket

import (
	"encoding/json"
	"net/http"
	"time"

	"casedesk/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the frontend dev server
	CheckOrigin: func(r *http.Request) bool { return true },
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	convID := r.URL.Query().Get("conversationId")
	if convID == "" {
		http.Error(w, "Missing conversationId parameter", http.StatusBadRequest)
		return
	}

	// Only the conversation's attorney or client may join the room.
	ok, err := hub.repo.IsParticipant(convID, userID)
	if err != nil {
		logger.Sugar.Errorf("Database error checking conversation access: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !ok {
		logger.Sugar.Warnf("Connection rejected: user %s is not in conversation %s", userID, convID)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		ConvID: convID,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	client.Hub.Register <- client

	// Reading and writing run concurrently per connection.
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		// Overwrite with server-authoritative values to prevent spoofing.
		msg.ConversationID = c.ConvID
		msg.UserID = c.UserID

		switch msg.Type {
		case MessageType, TypingType:
			c.Hub.Broadcast <- msg
		default:
			logger.Sugar.Warnf("Dropping unsupported WS message type %q from user %s", msg.Type, c.UserID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
