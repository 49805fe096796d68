package audit

import (
	"net/http"

	"casedesk/middleware"
	"casedesk/pkg/logger"
)

type Handler struct {
	Recorder *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{Recorder: rec}
}

// ExportUserData returns the caller's full data export (GDPR subject access
// request). The heavy lifting happens inside the stored procedure.
func (h *Handler) ExportUserData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := r.Context().Value(middleware.UserIDKey).(string)
	firmID, _ := r.Context().Value(middleware.FirmIDKey).(string)

	payload, err := h.Recorder.ExportUserData(userID)
	if err != nil {
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	h.Recorder.Record(firmID, userID, "gdpr.export", "user", userID, nil)

	logger.Sugar.Infof("GDPR export generated for user %s", userID)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="data-export.json"`)
	w.Write(payload)
}
