package socket

import (
	"encoding/json"
	"sync"
	"time"

	"casedesk/internal/chat"
	"casedesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	MessageType        = "MESSAGE"         // New chat message
	TypingType         = "TYPING"          // Participant is typing
	HistoryType        = "HISTORY"         // Recent messages sent on join
	PresenceUpdateType = "PRESENCE_UPDATE" // A participant joined or left
)

type WSMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Payload        json.RawMessage `json:"payload"`
}

type UserStatus struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Hub keeps one room per conversation. Inbound chat messages are persisted
// as rows before fan-out; there is no in-memory document state to flush.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client
	repo       *chat.Repository
	mu         sync.Mutex
	Presence   map[string]map[string]UserStatus // convID -> userID -> status
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	ConvID string
	UserID string
	Send   chan []byte
}

func NewHub(repo *chat.Repository) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		repo:       repo,
		Presence:   make(map[string]map[string]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.ConvID] == nil {
				h.Rooms[client.ConvID] = make(map[*Client]bool)
				h.Presence[client.ConvID] = make(map[string]UserStatus)
			}
			h.Rooms[client.ConvID][client] = true
			h.Presence[client.ConvID][client.UserID] = UserStatus{UserID: client.UserID, LastSeen: time.Now()}
			h.mu.Unlock()

			// Send recent history to the user who just joined so the thread
			// renders without a second fetch.
			history, err := h.repo.ListMessages(client.ConvID, 50)
			if err == nil {
				payload, _ := json.Marshal(history)
				msg, _ := json.Marshal(WSMessage{Type: HistoryType, ConversationID: client.ConvID, Payload: payload})
				client.Send <- msg
			}

			h.broadcastPresenceUpdate(client.ConvID)

		case client := <-h.Unregister:
			h.mu.Lock()
			convID := client.ConvID
			if _, ok := h.Rooms[client.ConvID][client]; ok {
				delete(h.Rooms[client.ConvID], client)
				delete(h.Presence[client.ConvID], client.UserID)
				close(client.Send)

				if len(h.Rooms[client.ConvID]) == 0 {
					delete(h.Rooms, client.ConvID)
					delete(h.Presence, client.ConvID)
					logger.Sugar.Infof("Closed empty conversation room: %s", client.ConvID)
				}
			}
			h.mu.Unlock()

			if h.Rooms[convID] != nil {
				h.broadcastPresenceUpdate(convID)
			}

		case msg := <-h.Broadcast:
			// Chat messages are persisted before fan-out; typing indicators
			// are transient and just relayed.
			if msg.Type == MessageType {
				var body struct {
					Content string `json:"content"`
				}
				if err := json.Unmarshal(msg.Payload, &body); err != nil || body.Content == "" {
					continue
				}
				m := chat.Message{
					ID:             uuid.NewString(),
					ConversationID: msg.ConversationID,
					SenderID:       msg.UserID,
					SenderRole:     chat.SenderUser,
					Content:        body.Content,
				}
				if err := h.repo.InsertMessage(&m); err != nil {
					logger.Sugar.Errorf("Failed to persist WS message in %s: %v", msg.ConversationID, err)
					continue
				}
				payload, _ := json.Marshal(m)
				msg.Payload = payload
			}

			h.fanOut(msg, msg.UserID)
		}
	}
}

// BroadcastMessage lets the REST/SSE side push a persisted message into the
// room. Implements chat.Broadcaster.
func (h *Hub) BroadcastMessage(convID string, m chat.Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	h.fanOut(WSMessage{
		Type:           MessageType,
		ConversationID: convID,
		UserID:         m.SenderID,
		Payload:        payload,
	}, m.SenderID)
}

// fanOut sends the message to everyone in the room except the sender.
// Clients whose send buffer is full are evicted so they cannot block the hub.
func (h *Hub) fanOut(msg WSMessage, senderID string) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
		return
	}

	h.mu.Lock()
	clientsToSend := make([]*Client, 0, len(h.Rooms[msg.ConversationID]))
	for client := range h.Rooms[msg.ConversationID] {
		if client.UserID != senderID {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clientsToSend {
		select {
		case client.Send <- payload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
			h.Unregister <- client
		}
	}
}

// RemoveConversation disconnects every client in the room. Called when the
// underlying case (and its conversations) is deleted.
func (h *Hub) RemoveConversation(convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.Presence, convID)
	if clients, ok := h.Rooms[convID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters safely
		}
		delete(h.Rooms, convID)
	}
}

func (h *Hub) broadcastPresenceUpdate(convID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[convID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[convID]))
		for _, status := range h.Presence[convID] {
			userStatuses = append(userStatuses, status)
		}

		clientsToSend = make([]*Client, 0, len(h.Rooms[convID]))
		for client := range h.Rooms[convID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, ConversationID: convID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			// Don't unregister here, just log. The main pumps will handle unresponsive clients.
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
