package chat

import (
	"database/sql"

	"casedesk/pkg/logger"
)

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) CreateConversation(c *Conversation) error {
	_, err := r.DB.Exec(`INSERT INTO conversations (id, case_id, attorney_id, client_id, title, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		c.ID, c.CaseID, c.AttorneyID, c.ClientID, c.Title)
	if err != nil {
		logger.Sugar.Errorf("Failed to create conversation: %v", err)
	}
	return err
}

func (r *Repository) GetConversation(convID string) (*Conversation, error) {
	var c Conversation
	err := r.DB.QueryRow(`SELECT id, case_id, attorney_id, client_id, title, created_at
		FROM conversations WHERE id = $1`, convID).
		Scan(&c.ID, &c.CaseID, &c.AttorneyID, &c.ClientID, &c.Title, &c.CreatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get conversation %s: %v", convID, err)
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListConversations(userID string) ([]Conversation, error) {
	rows, err := r.DB.Query(`SELECT id, case_id, attorney_id, client_id, title, created_at
		FROM conversations WHERE attorney_id = $1 OR client_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list conversations for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CaseID, &c.AttorneyID, &c.ClientID, &c.Title, &c.CreatedAt); err != nil {
			continue
		}
		convs = append(convs, c)
	}
	return convs, nil
}

func (r *Repository) InsertMessage(m *Message) error {
	_, err := r.DB.Exec(`INSERT INTO messages (id, conversation_id, sender_id, sender_role, content, pending, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		m.ID, m.ConversationID, m.SenderID, m.SenderRole, m.Content, m.Pending)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert message in conversation %s: %v", m.ConversationID, err)
	}
	return err
}

func (r *Repository) ListMessages(convID string, limit int) ([]Message, error) {
	rows, err := r.DB.Query(`SELECT id, conversation_id, sender_id, sender_role, content, pending, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2`, convID, limit)
	if err != nil {
		logger.Sugar.Errorf("Failed to list messages for conversation %s: %v", convID, err)
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderRole, &m.Content, &m.Pending, &m.CreatedAt); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// IsParticipant is the access check for conversation reads, sends and
// WebSocket joins.
func (r *Repository) IsParticipant(convID, userID string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(`SELECT EXISTS(
		SELECT 1 FROM conversations WHERE id = $1 AND (attorney_id = $2 OR client_id = $2))`,
		convID, userID).Scan(&ok)
	if err != nil {
		logger.Sugar.Errorf("Failed to check participant %s in conversation %s: %v", userID, convID, err)
	}
	return ok, err
}
