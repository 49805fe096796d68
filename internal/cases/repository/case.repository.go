package repository

import (
	"database/sql"
	"time"

	"casedesk/internal/cases/model"
	"casedesk/pkg/logger"
)

type CaseRepository struct {
	DB *sql.DB
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{DB: db}
}

const caseColumns = "id, firm_id, attorney_id, client_id, title, case_type, status, priority, deadline, notes, created_at, updated_at"

func scanCase(row interface{ Scan(...interface{}) error }) (*model.Case, error) {
	var c model.Case
	err := row.Scan(&c.ID, &c.FirmID, &c.AttorneyID, &c.ClientID, &c.Title, &c.CaseType,
		&c.Status, &c.Priority, &c.Deadline, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) Create(c *model.Case) error {
	_, err := r.DB.Exec(`INSERT INTO cases (id, firm_id, attorney_id, client_id, title, case_type, status, priority, deadline, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`,
		c.ID, c.FirmID, c.AttorneyID, c.ClientID, c.Title, c.CaseType, c.Status, c.Priority, c.Deadline, c.Notes)
	if err != nil {
		logger.Sugar.Errorf("Failed to create case: %v", err)
	}
	return err
}

func (r *CaseRepository) GetByID(caseID string) (*model.Case, error) {
	row := r.DB.QueryRow("SELECT "+caseColumns+" FROM cases WHERE id = $1", caseID)
	c, err := scanCase(row)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get case %s: %v", caseID, err)
	}
	return c, err
}

// ListForUser returns the cases visible to the user: attorneys see every case
// in their firm, clients only their own.
func (r *CaseRepository) ListForUser(userID, role, firmID string) ([]model.Case, error) {
	var rows *sql.Rows
	var err error
	if role == "attorney" {
		rows, err = r.DB.Query("SELECT "+caseColumns+" FROM cases WHERE firm_id = $1 ORDER BY updated_at DESC", firmID)
	} else {
		rows, err = r.DB.Query("SELECT "+caseColumns+" FROM cases WHERE client_id = $1 ORDER BY updated_at DESC", userID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to list cases for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	cases := []model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			continue
		}
		cases = append(cases, *c)
	}
	return cases, nil
}

// Update applies the change only while updated_at still equals expected.
// Zero rows affected means the row changed underneath the caller (or is gone).
func (r *CaseRepository) Update(req model.UpdateCaseRequest, expected time.Time) (int64, error) {
	result, err := r.DB.Exec(`UPDATE cases SET title = $1, status = $2, priority = $3, deadline = $4, notes = $5, updated_at = NOW()
		WHERE id = $6 AND updated_at = $7`,
		req.Title, req.Status, req.Priority, req.Deadline, req.Notes, req.CaseID, expected)
	if err != nil {
		logger.Sugar.Errorf("Failed to update case %s: %v", req.CaseID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *CaseRepository) Delete(caseID string) error {
	_, err := r.DB.Exec("DELETE FROM cases WHERE id = $1", caseID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete case %s: %v", caseID, err)
	}
	return err
}

// ListActiveWithDeadlines feeds the deadline-sync job: open cases that carry
// a deadline, firm-wide.
func (r *CaseRepository) ListActiveWithDeadlines() ([]model.Case, error) {
	rows, err := r.DB.Query("SELECT " + caseColumns + " FROM cases WHERE deadline IS NOT NULL AND status NOT IN ('approved', 'denied', 'closed')")
	if err != nil {
		logger.Sugar.Errorf("Failed to list active cases with deadlines: %v", err)
		return nil, err
	}
	defer rows.Close()

	cases := []model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			continue
		}
		cases = append(cases, *c)
	}
	return cases, nil
}
