package cases

import (
	"encoding/json"
	"errors"
	"net/http"

	"casedesk/internal/cases/model"
	"casedesk/internal/cases/service"
	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type CaseHandler struct {
	Service *service.CaseService
}

func NewCaseHandler(svc *service.CaseService) *CaseHandler {
	return &CaseHandler{Service: svc}
}

func identity(r *http.Request) (userID, role, firmID string) {
	userID, _ = r.Context().Value(middleware.UserIDKey).(string)
	role, _ = r.Context().Value(middleware.RoleKey).(string)
	firmID, _ = r.Context().Value(middleware.FirmIDKey).(string)
	return
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrBadStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, role, firmID := identity(r)

	var req model.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" || req.CaseType == "" {
		http.Error(w, "client_id and case_type are required", http.StatusBadRequest)
		return
	}

	caseID, err := h.Service.CreateCase(userID, role, firmID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create case: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.CreateCaseResponse{CaseID: caseID})
}

func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.Service.GetCase(caseID, userID, role, firmID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

func (h *CaseHandler) GetCases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, role, firmID := identity(r)

	cases, err := h.Service.ListCases(userID, role, firmID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching cases: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cases)
}

func (h *CaseHandler) UpdateCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.UpdateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExpectedUpdatedAt.IsZero() {
		http.Error(w, "expected_updated_at is required", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	if err := h.Service.UpdateCase(userID, role, firmID, req); err != nil {
		logger.Sugar.Infof("Handler: case update rejected for %s: %v", req.CaseID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Case updated successfully"))
}

func (h *CaseHandler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		http.Error(w, "Missing caseId parameter", http.StatusBadRequest)
		return
	}

	userID, _, firmID := identity(r)

	if err := h.Service.DeleteCase(caseID, userID, firmID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete case %s: %v", caseID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Case deleted successfully"))
}
