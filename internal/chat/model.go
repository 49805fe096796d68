package chat

import "time"

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Conversation is a per-case thread between the attorney and the client.
// Assistant replies land in the same thread.
type Conversation struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"case_id"`
	AttorneyID string    `json:"attorney_id"`
	ClientID   string    `json:"client_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderRole     string    `json:"sender_role"` // user or assistant
	Content        string    `json:"content"`
	Pending        bool      `json:"pending"` // assistant reply cut off mid-stream
	CreatedAt      time.Time `json:"created_at"`
}

type CreateConversationRequest struct {
	CaseID string `json:"case_id"`
	Title  string `json:"title"`
}

type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type StreamRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}
