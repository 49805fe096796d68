package form

import (
	"database/sql"
	"time"

	"casedesk/pkg/logger"
)

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

const formColumns = "id, case_id, form_type, field_data, status, pdf_path, created_at, updated_at"

func scanForm(row interface{ Scan(...interface{}) error }) (*Form, error) {
	var f Form
	var pdfPath sql.NullString
	err := row.Scan(&f.ID, &f.CaseID, &f.FormType, &f.FieldData, &f.Status, &pdfPath, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.PDFPath = pdfPath.String
	return &f, nil
}

func (r *Repository) Create(f *Form) error {
	_, err := r.DB.Exec(`INSERT INTO forms (id, case_id, form_type, field_data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		f.ID, f.CaseID, f.FormType, string(f.FieldData), f.Status)
	if err != nil {
		logger.Sugar.Errorf("Failed to create form: %v", err)
	}
	return err
}

func (r *Repository) GetByID(formID string) (*Form, error) {
	row := r.DB.QueryRow("SELECT "+formColumns+" FROM forms WHERE id = $1", formID)
	f, err := scanForm(row)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get form %s: %v", formID, err)
	}
	return f, err
}

func (r *Repository) ListByCase(caseID string) ([]Form, error) {
	rows, err := r.DB.Query("SELECT "+formColumns+" FROM forms WHERE case_id = $1 ORDER BY created_at DESC", caseID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list forms for case %s: %v", caseID, err)
		return nil, err
	}
	defer rows.Close()

	forms := []Form{}
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			continue
		}
		forms = append(forms, *f)
	}
	return forms, nil
}

// MarkGenerating claims the form for generation; only draft or failed forms
// can be claimed, so a double-submit cannot start two fills.
func (r *Repository) MarkGenerating(formID string) (int64, error) {
	result, err := r.DB.Exec(`UPDATE forms SET status = 'generating', updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'failed')`, formID)
	if err != nil {
		logger.Sugar.Errorf("Failed to mark form %s generating: %v", formID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) MarkGenerated(formID, pdfPath string) error {
	_, err := r.DB.Exec("UPDATE forms SET status = 'generated', pdf_path = $1, updated_at = NOW() WHERE id = $2", pdfPath, formID)
	if err != nil {
		logger.Sugar.Errorf("Failed to mark form %s generated: %v", formID, err)
	}
	return err
}

func (r *Repository) MarkFailed(formID string) error {
	_, err := r.DB.Exec("UPDATE forms SET status = 'failed', updated_at = NOW() WHERE id = $1", formID)
	if err != nil {
		logger.Sugar.Errorf("Failed to mark form %s failed: %v", formID, err)
	}
	return err
}

// ResetStuckGenerating returns forms that have sat in generating past the
// cutoff back to failed. Called by the cleanup cron.
func (r *Repository) ResetStuckGenerating(olderThan time.Duration) (int64, error) {
	result, err := r.DB.Exec(`UPDATE forms SET status = 'failed', updated_at = NOW()
		WHERE status = 'generating' AND updated_at < NOW() - ($1 || ' seconds')::interval`,
		int64(olderThan.Seconds()))
	if err != nil {
		logger.Sugar.Errorf("Failed to reset stuck forms: %v", err)
		return 0, err
	}
	return result.RowsAffected()
}
