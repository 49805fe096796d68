package model

import "time"

const (
	StatusPending    = "pending"
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusVerified   = "verified"
	StatusRejected   = "rejected"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusUploaded, StatusProcessing, StatusVerified, StatusRejected:
		return true
	}
	return false
}

type Document struct {
	ID          string     `json:"id"`
	CaseID      string     `json:"case_id"`
	UploaderID  string     `json:"uploader_id"`
	Name        string     `json:"name"`
	DocType     string     `json:"doc_type"` // passport, birth_certificate, ...
	StoragePath string     `json:"storage_path"`
	Status      string     `json:"status"`
	SizeBytes   int64      `json:"size_bytes"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type CreateDocumentRequest struct {
	CaseID    string     `json:"case_id"`
	Name      string     `json:"name"`
	DocType   string     `json:"doc_type"`
	SizeBytes int64      `json:"size_bytes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type CreateDocumentResponse struct {
	DocumentID  string `json:"document_id"`
	StoragePath string `json:"storage_path"`
}

type UpdateStatusRequest struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// CompletenessReport lists what a filing still needs for its case type.
type CompletenessReport struct {
	CaseID   string   `json:"case_id"`
	Required []string `json:"required"`
	Present  []string `json:"present"`
	Missing  []string `json:"missing"`
	Complete bool     `json:"complete"`
	Percent  int      `json:"percent"`
}
