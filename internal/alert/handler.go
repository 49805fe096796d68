package alert

import (
	"encoding/json"
	"net/http"

	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type Handler struct {
	Repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	includeAcked := r.URL.Query().Get("all") == "true"

	alerts, err := h.Repo.ListForUser(userID, includeAcked)
	if err != nil {
		logger.Sugar.Errorf("Error fetching alerts: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	alertID := r.URL.Query().Get("alertId")
	if alertID == "" {
		http.Error(w, "Missing alertId parameter", http.StatusBadRequest)
		return
	}

	userID, _ := r.Context().Value(middleware.UserIDKey).(string)

	rows, err := h.Repo.Acknowledge(alertID, userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if rows == 0 {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Alert acknowledged"))
}
