package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"casedesk/internal/quota"
	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func identity(r *http.Request) (userID, firmID string) {
	userID, _ = r.Context().Value(middleware.UserIDKey).(string)
	firmID, _ = r.Context().Value(middleware.FirmIDKey).(string)
	return
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, quota.ErrQuotaExceeded):
		quota.WriteExceeded(w, quota.MetricAICalls)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, firmID := identity(r)

	convID, err := h.Service.CreateConversation(userID, firmID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create conversation: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CreateConversationResponse{ConversationID: convID})
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := identity(r)

	convs, err := h.Service.ListConversations(userID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching conversations: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(convs)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID := r.URL.Query().Get("conversationId")
	if convID == "" {
		http.Error(w, "Missing conversationId parameter", http.StatusBadRequest)
		return
	}

	userID, _ := identity(r)

	msgs, err := h.Service.ListMessages(convID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" || req.Content == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, _ := identity(r)

	m, err := h.Service.SendMessage(userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// StreamAssistant proxies the LLM token stream to the browser as
// Server-Sent Events. Each token is one data event; a final done event
// carries the persisted message ID.
func (h *Handler) StreamAssistant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID == "" || req.Content == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	userID, firmID := identity(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	headersSent := false
	msg, err := h.Service.StreamAssistant(r.Context(), userID, firmID, req, func(token string) error {
		headersSent = true
		b, _ := json.Marshal(map[string]string{"token": token})
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		if !headersSent {
			writeServiceError(w, err)
			return
		}
		// Mid-stream failure: the SSE channel is already open, emit an error
		// event and end. The partial reply was persisted as pending.
		fmt.Fprintf(w, "event: error\ndata: %q\n\n", "stream interrupted")
		flusher.Flush()
		return
	}

	b, _ := json.Marshal(map[string]string{"message_id": msg.ID})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", b)
	flusher.Flush()
}
