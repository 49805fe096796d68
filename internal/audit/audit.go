// Package audit appends to the firm-scoped audit log and fronts the
// database-side stored procedures for GDPR export and log archival.
package audit

import (
	"database/sql"
	"encoding/json"

	"casedesk/pkg/logger"
)

type Recorder struct {
	DB *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{DB: db}
}

// Record writes an audit row in the background. Responses never wait on the
// audit log and a failed write only logs.
func (a *Recorder) Record(firmID, actorID, action, entity, entityID string, detail map[string]interface{}) {
	go func() {
		var detailJSON interface{}
		if detail != nil {
			b, err := json.Marshal(detail)
			if err != nil {
				logger.Sugar.Errorf("Failed to marshal audit detail for %s: %v", action, err)
			} else {
				detailJSON = string(b)
			}
		}
		_, err := a.DB.Exec(`INSERT INTO audit_log (firm_id, actor_id, action, entity, entity_id, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			firmID, actorID, action, entity, entityID, detailJSON)
		if err != nil {
			logger.Sugar.Errorf("Failed to write audit entry %s/%s: %v", action, entityID, err)
		}
	}()
}

// ExportUserData runs the export_user_data stored procedure, which gathers a
// user's rows across all tables atomically on the database side and returns
// them as one JSON document.
func (a *Recorder) ExportUserData(userID string) (json.RawMessage, error) {
	var payload []byte
	err := a.DB.QueryRow("SELECT export_user_data($1)", userID).Scan(&payload)
	if err != nil {
		logger.Sugar.Errorf("GDPR export failed for user %s: %v", userID, err)
		return nil, err
	}
	return json.RawMessage(payload), nil
}

// ArchiveOld moves audit rows older than the retention window into the
// archive table via the archive_audit_log stored procedure. Returns the
// number of rows moved.
func (a *Recorder) ArchiveOld(retentionDays int) (int64, error) {
	var moved int64
	err := a.DB.QueryRow("SELECT archive_audit_log($1)", retentionDays).Scan(&moved)
	if err != nil {
		logger.Sugar.Errorf("Audit archival failed: %v", err)
		return 0, err
	}
	return moved, nil
}
