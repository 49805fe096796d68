package alert

import (
	"database/sql"
	"time"

	"casedesk/pkg/logger"

	"github.com/google/uuid"
)

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

// Upsert keys on (case, user, type, source) so resyncing the same deadline
// refreshes the countdown instead of stacking duplicates. Acknowledgements
// survive refreshes.
func (r *Repository) Upsert(a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(`INSERT INTO deadline_alerts (id, case_id, user_id, alert_type, source_id, title, due_date, days_remaining, severity, acknowledged, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, NOW())
		ON CONFLICT (case_id, user_id, alert_type, source_id)
		DO UPDATE SET title = $6, due_date = $7, days_remaining = $8, severity = $9, updated_at = NOW()`,
		a.ID, a.CaseID, a.UserID, a.AlertType, a.SourceID, a.Title, a.DueDate, a.DaysRemaining, a.Severity)
	if err != nil {
		logger.Sugar.Errorf("Failed to upsert alert for case %s user %s: %v", a.CaseID, a.UserID, err)
	}
	return err
}

func (r *Repository) ListForUser(userID string, includeAcknowledged bool) ([]Alert, error) {
	query := `SELECT id, case_id, user_id, alert_type, source_id, title, due_date, days_remaining, severity, acknowledged, updated_at
		FROM deadline_alerts WHERE user_id = $1`
	if !includeAcknowledged {
		query += " AND acknowledged = false"
	}
	query += " ORDER BY due_date ASC"

	rows, err := r.DB.Query(query, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list alerts for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.CaseID, &a.UserID, &a.AlertType, &a.SourceID, &a.Title,
			&a.DueDate, &a.DaysRemaining, &a.Severity, &a.Acknowledged, &a.UpdatedAt); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// Acknowledge only touches the caller's own alerts.
func (r *Repository) Acknowledge(alertID, userID string) (int64, error) {
	result, err := r.DB.Exec("UPDATE deadline_alerts SET acknowledged = true, updated_at = NOW() WHERE id = $1 AND user_id = $2",
		alertID, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to acknowledge alert %s: %v", alertID, err)
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteResolved drops alerts whose due date passed more than the retention
// window ago. Called by the cleanup cron.
func (r *Repository) DeleteResolved(olderThan time.Duration) (int64, error) {
	result, err := r.DB.Exec(`DELETE FROM deadline_alerts WHERE due_date < NOW() - ($1 || ' seconds')::interval`,
		int64(olderThan.Seconds()))
	if err != nil {
		logger.Sugar.Errorf("Failed to delete resolved alerts: %v", err)
		return 0, err
	}
	return result.RowsAffected()
}
