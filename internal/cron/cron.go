// Package cron implements the scheduler-triggered maintenance endpoints.
// The hosting platform's scheduler calls them over GET with the shared
// secret; each job reports per-step counts and keeps going past individual
// failures.
package cron

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"casedesk/internal/alert"
	"casedesk/internal/audit"
	"casedesk/internal/form"
	"casedesk/internal/invite"
	"casedesk/pkg/logger"
)

const (
	stuckFormTimeout     = 15 * time.Minute
	stuckDocumentTimeout = 30 * time.Minute
	resolvedAlertMaxAge  = 30 * 24 * time.Hour
	auditRetentionDays   = 180
)

type Handler struct {
	DB       *sql.DB
	Forms    *form.Repository
	Alerts   *alert.Service
	AlertRep *alert.Repository
	Invites  *invite.Service
	Audit    *audit.Recorder
}

func NewHandler(db *sql.DB, forms *form.Repository, alerts *alert.Service, alertRepo *alert.Repository, invites *invite.Service, auditor *audit.Recorder) *Handler {
	return &Handler{DB: db, Forms: forms, Alerts: alerts, AlertRep: alertRepo, Invites: invites, Audit: auditor}
}

type cleanupResult struct {
	FormsReset     int64    `json:"forms_reset"`
	DocumentsReset int64    `json:"documents_reset"`
	InvitesExpired int64    `json:"invites_expired"`
	AlertsDeleted  int64    `json:"alerts_deleted"`
	Errors         []string `json:"errors,omitempty"`
	DurationMillis int64    `json:"duration_ms"`
}

// Cleanup resets rows stuck in transient states past their timeout. Each
// step runs independently so one failing table doesn't stop the rest.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	result := cleanupResult{}

	n, err := h.Forms.ResetStuckGenerating(stuckFormTimeout)
	if err != nil {
		result.Errors = append(result.Errors, "forms: "+err.Error())
	}
	result.FormsReset = n

	res, err := h.DB.Exec(`UPDATE documents SET status = 'uploaded', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < NOW() - ($1 || ' seconds')::interval`,
		int64(stuckDocumentTimeout.Seconds()))
	if err != nil {
		result.Errors = append(result.Errors, "documents: "+err.Error())
	} else {
		result.DocumentsReset, _ = res.RowsAffected()
	}

	n, err = h.Invites.ExpireStale()
	if err != nil {
		result.Errors = append(result.Errors, "invitations: "+err.Error())
	}
	result.InvitesExpired = n

	n, err = h.AlertRep.DeleteResolved(resolvedAlertMaxAge)
	if err != nil {
		result.Errors = append(result.Errors, "alerts: "+err.Error())
	}
	result.AlertsDeleted = n

	result.DurationMillis = time.Since(start).Milliseconds()
	logger.Sugar.Infof("Cron cleanup: %d forms, %d documents, %d invites, %d alerts (%d errors)",
		result.FormsReset, result.DocumentsReset, result.InvitesExpired, result.AlertsDeleted, len(result.Errors))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// DeadlineSync runs the alert calculator over all active cases and expiring
// documents.
func (h *Handler) DeadlineSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.Alerts.Sync(time.Now())
	if err != nil {
		logger.Sugar.Errorf("Cron deadline sync failed: %v", err)
		http.Error(w, "Deadline sync failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// AuditArchive moves audit rows past retention into the archive table via
// the database-side stored procedure.
func (h *Handler) AuditArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	moved, err := h.Audit.ArchiveOld(auditRetentionDays)
	if err != nil {
		http.Error(w, "Audit archival failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"archived": moved})
}
