package repository

import (
	"database/sql"

	"casedesk/internal/document/model"
	"casedesk/pkg/logger"
)

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

const docColumns = "id, case_id, uploader_id, name, doc_type, storage_path, status, size_bytes, expires_at, created_at, updated_at"

func scanDocument(row interface{ Scan(...interface{}) error }) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.CaseID, &d.UploaderID, &d.Name, &d.DocType, &d.StoragePath,
		&d.Status, &d.SizeBytes, &d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DocumentRepository) Create(d *model.Document) error {
	_, err := r.DB.Exec(`INSERT INTO documents (id, case_id, uploader_id, name, doc_type, storage_path, status, size_bytes, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		d.ID, d.CaseID, d.UploaderID, d.Name, d.DocType, d.StoragePath, d.Status, d.SizeBytes, d.ExpiresAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

func (r *DocumentRepository) GetByID(docID string) (*model.Document, error) {
	row := r.DB.QueryRow("SELECT "+docColumns+" FROM documents WHERE id = $1", docID)
	d, err := scanDocument(row)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get document %s: %v", docID, err)
	}
	return d, err
}

func (r *DocumentRepository) ListByCase(caseID string) ([]model.Document, error) {
	rows, err := r.DB.Query("SELECT "+docColumns+" FROM documents WHERE case_id = $1 ORDER BY created_at DESC", caseID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for case %s: %v", caseID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			continue
		}
		docs = append(docs, *d)
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateStatus(docID, status string) (int64, error) {
	result, err := r.DB.Exec("UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2", status, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update status for document %s: %v", docID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepository) Delete(docID string) error {
	_, err := r.DB.Exec("DELETE FROM documents WHERE id = $1", docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", docID, err)
	}
	return err
}

// ListDocTypes returns the distinct verified/uploaded document types for a
// case, the input to the completeness check.
func (r *DocumentRepository) ListDocTypes(caseID string) ([]string, error) {
	rows, err := r.DB.Query("SELECT DISTINCT doc_type FROM documents WHERE case_id = $1 AND status IN ('uploaded', 'verified')", caseID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list doc types for case %s: %v", caseID, err)
		return nil, err
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err == nil {
			types = append(types, t)
		}
	}
	return types, nil
}

// ListExpiring feeds the deadline-sync job: documents on open cases that
// expire within the window.
func (r *DocumentRepository) ListExpiring(withinDays int) ([]model.Document, error) {
	rows, err := r.DB.Query(`SELECT `+docColumns+` FROM documents
		WHERE expires_at IS NOT NULL AND expires_at < NOW() + ($1 || ' days')::interval
		AND case_id IN (SELECT id FROM cases WHERE status NOT IN ('approved', 'denied', 'closed'))`, withinDays)
	if err != nil {
		logger.Sugar.Errorf("Failed to list expiring documents: %v", err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			continue
		}
		docs = append(docs, *d)
	}
	return docs, nil
}
