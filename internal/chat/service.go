package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"casedesk/internal/ai"
	"casedesk/internal/audit"
	caserepo "casedesk/internal/cases/repository"
	"casedesk/internal/quota"
	"casedesk/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("conversation not found")
	ErrForbidden = errors.New("forbidden")
)

const historyLimit = 200

// Broadcaster fans a persisted message out to the conversation's connected
// WebSocket clients. Implemented by the socket hub.
type Broadcaster interface {
	BroadcastMessage(convID string, m Message)
}

type Service struct {
	Repo     *Repository
	CaseRepo *caserepo.CaseRepository
	LLM      *ai.LLMClient
	Quota    *quota.Service
	Audit    *audit.Recorder
	Hub      Broadcaster // set after the hub is constructed
}

func NewService(repo *Repository, caseRepo *caserepo.CaseRepository, llm *ai.LLMClient, q *quota.Service, auditor *audit.Recorder) *Service {
	return &Service{Repo: repo, CaseRepo: caseRepo, LLM: llm, Quota: q, Audit: auditor}
}

func (s *Service) CreateConversation(userID, firmID string, req CreateConversationRequest) (string, error) {
	c, err := s.CaseRepo.GetByID(req.CaseID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	} else if err != nil {
		return "", err
	}
	if c.AttorneyID != userID && c.ClientID != userID {
		return "", ErrForbidden
	}

	title := req.Title
	if title == "" {
		title = c.Title
	}
	conv := &Conversation{
		ID:         uuid.NewString(),
		CaseID:     c.ID,
		AttorneyID: c.AttorneyID,
		ClientID:   c.ClientID,
		Title:      title,
	}
	if err := s.Repo.CreateConversation(conv); err != nil {
		return "", err
	}
	s.Audit.Record(firmID, userID, "conversation.create", "conversation", conv.ID, map[string]interface{}{"case_id": c.ID})
	return conv.ID, nil
}

func (s *Service) ListConversations(userID string) ([]Conversation, error) {
	return s.Repo.ListConversations(userID)
}

func (s *Service) ListMessages(convID, userID string) ([]Message, error) {
	ok, err := s.Repo.IsParticipant(convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.Repo.ListMessages(convID, historyLimit)
}

// SendMessage persists a human message and fans it out to connected clients.
func (s *Service) SendMessage(userID string, req SendMessageRequest) (*Message, error) {
	ok, err := s.Repo.IsParticipant(req.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       userID,
		SenderRole:     SenderUser,
		Content:        req.Content,
	}
	if err := s.Repo.InsertMessage(m); err != nil {
		return nil, err
	}
	if s.Hub != nil {
		s.Hub.BroadcastMessage(req.ConversationID, *m)
	}
	return m, nil
}

// StreamAssistant persists the user's question, streams the assistant's
// answer through onToken, and persists the reply. If the stream dies part
// way (client disconnect, provider error) the partial content is saved with
// the pending marker so the thread shows what was said.
func (s *Service) StreamAssistant(ctx context.Context, userID, firmID string, req StreamRequest, onToken func(token string) error) (*Message, error) {
	ok, err := s.Repo.IsParticipant(req.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}

	if err := s.Quota.Check(firmID, quota.MetricAICalls); err != nil {
		return nil, err
	}

	userMsg := &Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       userID,
		SenderRole:     SenderUser,
		Content:        req.Content,
	}
	if err := s.Repo.InsertMessage(userMsg); err != nil {
		return nil, err
	}

	prompt, err := s.buildPrompt(req.ConversationID, req.Content)
	if err != nil {
		return nil, err
	}

	var reply strings.Builder
	streamErr := s.LLM.Stream(ctx,
		"You are an immigration case assistant for a law firm. Answer questions about the case clearly and note when the attorney should be consulted.",
		prompt,
		func(token string) error {
			reply.WriteString(token)
			return onToken(token)
		})

	assistantMsg := &Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       "assistant",
		SenderRole:     SenderAssistant,
		Content:        reply.String(),
		Pending:        streamErr != nil,
	}

	// Persist whatever we have even when the stream broke; an empty failed
	// reply is not worth a row.
	if assistantMsg.Content != "" || streamErr == nil {
		if err := s.Repo.InsertMessage(assistantMsg); err != nil {
			logger.Sugar.Errorf("Failed to persist assistant reply in %s: %v", req.ConversationID, err)
		}
	}

	if streamErr != nil {
		logger.Sugar.Warnf("Assistant stream ended early for conversation %s: %v", req.ConversationID, streamErr)
		return assistantMsg, streamErr
	}

	s.Quota.Record(firmID, quota.MetricAICalls, 1)
	if s.Hub != nil {
		s.Hub.BroadcastMessage(req.ConversationID, *assistantMsg)
	}
	return assistantMsg, nil
}

// buildPrompt folds recent history into a single prompt block.
func (s *Service) buildPrompt(convID, question string) (string, error) {
	history, err := s.Repo.ListMessages(convID, 20)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.SenderRole, m.Content)
	}
	fmt.Fprintf(&sb, "user: %s\n", question)
	return sb.String(), nil
}
