package ai

import (
	"encoding/json"
	"errors"
	"net/http"

	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type Handler struct {
	Risk   *RiskService
	Search *SearchService
}

func NewHandler(risk *RiskService, search *SearchService) *Handler {
	return &Handler{Risk: risk, Search: search}
}

func identity(r *http.Request) (userID, role, firmID string) {
	userID, _ = r.Context().Value(middleware.UserIDKey).(string)
	role, _ = r.Context().Value(middleware.RoleKey).(string)
	firmID, _ = r.Context().Value(middleware.FirmIDKey).(string)
	return
}

func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		http.Error(w, "Missing caseId parameter", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	assessment, err := h.Risk.Assess(r.Context(), caseID, userID, role, firmID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrForbidden):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			logger.Sugar.Errorf("Risk assessment failed for case %s: %v", caseID, err)
			http.Error(w, "Database error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assessment)
}

func (h *Handler) SearchCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	resp, err := h.Search.Search(r.Context(), userID, role, firmID, req.Query)
	if err != nil {
		logger.Sugar.Errorf("Search failed: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
