package document

import (
	"encoding/json"
	"errors"
	"net/http"

	"casedesk/internal/document/model"
	"casedesk/internal/document/service"
	"casedesk/internal/quota"
	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: svc}
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
	case errors.Is(err, service.ErrBadStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, quota.ErrQuotaExceeded):
		quota.WriteExceeded(w, quota.MetricStorage)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CaseID == "" || req.Name == "" || req.DocType == "" {
		http.Error(w, "case_id, name and doc_type are required", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	d, err := h.Service.CreateDocument(userID, role, firmID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.CreateDocumentResponse{DocumentID: d.ID, StoragePath: d.StoragePath})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
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

	docs, err := h.Service.ListDocuments(caseID, userID, role, firmID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func (h *DocumentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	if err := h.Service.UpdateStatus(userID, role, firmID, req); err != nil {
		logger.Sugar.Infof("Handler: document status update rejected for %s: %v", req.DocumentID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document status updated"))
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	userID, role, firmID := identity(r)

	if err := h.Service.DeleteDocument(docID, userID, role, firmID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete document %s: %v", docID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document deleted"))
}

func (h *DocumentHandler) Completeness(w http.ResponseWriter, r *http.Request) {
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

	report, err := h.Service.Completeness(caseID, userID, role, firmID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
