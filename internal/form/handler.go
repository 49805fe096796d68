package form

import (
	"encoding/json"
	"errors"
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

func identity(r *http.Request) (userID, role, firmID string) {
	userID, _ = r.Context().Value(middleware.UserIDKey).(string)
	role, _ = r.Context().Value(middleware.RoleKey).(string)
	firmID, _ = r.Context().Value(middleware.FirmIDKey).(string)
	return
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrBadFormType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, quota.ErrQuotaExceeded):
		quota.WriteExceeded(w, quota.MetricPDFFills)
	case errors.Is(err, ErrGenerateFail):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CaseID == "" || req.FormType == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	formID, err := h.Service.CreateForm(userID, role, firmID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create form: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CreateFormResponse{FormID: formID})
}

func (h *Handler) GetForms(w http.ResponseWriter, r *http.Request) {
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

	forms, err := h.Service.ListForms(caseID, userID, role, firmID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(forms)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FormID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	resp, err := h.Service.Generate(r.Context(), userID, role, firmID, req.FormID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Form generation failed for %s: %v", req.FormID, err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
