// Package profile serves the signed-in user's profile and firm, the
// frontend's bootstrap call after login.
package profile

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"casedesk/middleware"
	"casedesk/pkg/logger"
	"casedesk/store"
)

type Handler struct {
	DB *sql.DB
}

func NewHandler(db *sql.DB) *Handler {
	return &Handler{DB: db}
}

type meResponse struct {
	Profile store.UserProfile `json:"profile"`
	Firm    store.Firm        `json:"firm"`
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := r.Context().Value(middleware.UserIDKey).(string)

	var resp meResponse
	err := h.DB.QueryRow("SELECT id, email, full_name, role, firm_id, timezone FROM profiles WHERE id = $1", userID).
		Scan(&resp.Profile.ID, &resp.Profile.Email, &resp.Profile.FullName,
			&resp.Profile.Role, &resp.Profile.FirmID, &resp.Profile.Timezone)
	if err == sql.ErrNoRows {
		http.Error(w, "Profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Error fetching profile %s: %v", userID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	err = h.DB.QueryRow("SELECT id, name, plan, created_at FROM firms WHERE id = $1", resp.Profile.FirmID).
		Scan(&resp.Firm.ID, &resp.Firm.Name, &resp.Firm.Plan, &resp.Firm.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Error fetching firm %s: %v", resp.Profile.FirmID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
