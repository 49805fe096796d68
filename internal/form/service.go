package form

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"casedesk/internal/audit"
	caserepo "casedesk/internal/cases/repository"
	caseservice "casedesk/internal/cases/service"
	"casedesk/internal/quota"
	"casedesk/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("form not found")
	ErrForbidden    = errors.New("forbidden")
	ErrBadFormType  = errors.New("unsupported form type")
	ErrAlreadyBusy  = errors.New("form generation already in progress")
	ErrGenerateFail = errors.New("form generation failed")
)

// Form types the PDF service holds templates for.
var supportedFormTypes = map[string]bool{
	"I-130": true, "I-485": true, "I-765": true, "I-131": true,
	"I-140": true, "N-400": true, "G-1145": true, "I-129": true, "I-539": true,
}

type Service struct {
	Repo     *Repository
	CaseRepo *caserepo.CaseRepository
	PDF      *PDFClient
	Quota    *quota.Service
	Audit    *audit.Recorder
}

func NewService(repo *Repository, caseRepo *caserepo.CaseRepository, pdf *PDFClient, q *quota.Service, auditor *audit.Recorder) *Service {
	return &Service{Repo: repo, CaseRepo: caseRepo, PDF: pdf, Quota: q, Audit: auditor}
}

func (s *Service) caseAccess(caseID, userID, role, firmID string) error {
	c, err := s.CaseRepo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if !caseservice.CanRead(c, userID, role, firmID) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) CreateForm(userID, role, firmID string, req CreateFormRequest) (string, error) {
	if !supportedFormTypes[req.FormType] {
		return "", ErrBadFormType
	}
	if err := s.caseAccess(req.CaseID, userID, role, firmID); err != nil {
		return "", err
	}

	fieldData := req.FieldData
	if len(fieldData) == 0 {
		fieldData = json.RawMessage(`{}`)
	}

	f := &Form{
		ID:        uuid.NewString(),
		CaseID:    req.CaseID,
		FormType:  req.FormType,
		FieldData: fieldData,
		Status:    StatusDraft,
	}
	if err := s.Repo.Create(f); err != nil {
		return "", err
	}
	s.Audit.Record(firmID, userID, "form.create", "form", f.ID, map[string]interface{}{"form_type": req.FormType})
	return f.ID, nil
}

func (s *Service) ListForms(caseID, userID, role, firmID string) ([]Form, error) {
	if err := s.caseAccess(caseID, userID, role, firmID); err != nil {
		return nil, err
	}
	return s.Repo.ListByCase(caseID)
}

// Generate fills the form's PDF synchronously. The form is claimed first so a
// concurrent submit sees ErrAlreadyBusy; the cleanup cron reclaims forms the
// process died on.
func (s *Service) Generate(ctx context.Context, userID, role, firmID, formID string) (*GenerateResponse, error) {
	f, err := s.Repo.GetByID(formID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if err := s.caseAccess(f.CaseID, userID, role, firmID); err != nil {
		return nil, err
	}

	if err := s.Quota.Check(firmID, quota.MetricPDFFills); err != nil {
		return nil, err
	}

	claimed, err := s.Repo.MarkGenerating(formID)
	if err != nil {
		return nil, err
	}
	if claimed == 0 {
		return nil, ErrAlreadyBusy
	}

	var fieldData map[string]string
	if err := json.Unmarshal(f.FieldData, &fieldData); err != nil {
		s.Repo.MarkFailed(formID)
		return nil, fmt.Errorf("field_data is not a flat string map: %w", err)
	}

	pdfBytes, err := s.PDF.Fill(ctx, f.FormType, fieldData)
	if err != nil {
		logger.Sugar.Errorf("PDF fill failed for form %s: %v", formID, err)
		s.Repo.MarkFailed(formID)
		return nil, ErrGenerateFail
	}

	pdfPath, err := s.storePDF(firmID, f.CaseID, formID, pdfBytes)
	if err != nil {
		logger.Sugar.Errorf("Failed to store filled PDF for form %s: %v", formID, err)
		s.Repo.MarkFailed(formID)
		return nil, ErrGenerateFail
	}

	if err := s.Repo.MarkGenerated(formID, pdfPath); err != nil {
		return nil, err
	}

	s.Quota.Record(firmID, quota.MetricPDFFills, 1)
	s.Audit.Record(firmID, userID, "form.generate", "form", formID, map[string]interface{}{"form_type": f.FormType})

	return &GenerateResponse{FormID: formID, Status: StatusGenerated, PDFPath: pdfPath}, nil
}

// storePDF writes the filled PDF under STORAGE_DIR mirroring the object key
// layout used for uploads.
func (s *Service) storePDF(firmID, caseID, formID string, data []byte) (string, error) {
	base := strings.TrimSpace(os.Getenv("STORAGE_DIR"))
	if base == "" {
		base = "storage"
	}
	dir := filepath.Join(base, "firms", firmID, "cases", caseID, "forms")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, formID+".pdf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
