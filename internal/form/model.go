package form

import (
	"encoding/json"
	"time"
)

const (
	StatusDraft      = "draft"
	StatusGenerating = "generating"
	StatusGenerated  = "generated"
	StatusFailed     = "failed"
)

type Form struct {
	ID        string          `json:"id"`
	CaseID    string          `json:"case_id"`
	FormType  string          `json:"form_type"` // I-130, I-485, ...
	FieldData json.RawMessage `json:"field_data"`
	Status    string          `json:"status"`
	PDFPath   string          `json:"pdf_path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CreateFormRequest struct {
	CaseID    string          `json:"case_id"`
	FormType  string          `json:"form_type"`
	FieldData json.RawMessage `json:"field_data"`
}

type CreateFormResponse struct {
	FormID string `json:"form_id"`
}

type GenerateRequest struct {
	FormID string `json:"form_id"`
}

type GenerateResponse struct {
	FormID  string `json:"form_id"`
	Status  string `json:"status"`
	PDFPath string `json:"pdf_path,omitempty"`
}
