package service

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"casedesk/internal/audit"
	caserepo "casedesk/internal/cases/repository"
	caseservice "casedesk/internal/cases/service"
	"casedesk/internal/document/model"
	"casedesk/internal/document/repository"
	"casedesk/internal/quota"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrForbidden = errors.New("forbidden")
	ErrBadStatus = errors.New("invalid document status")
)

// requiredDocs maps a case type to the document types USCIS expects with the
// filing. Drives the completeness report and the RFE risk score.
var requiredDocs = map[string][]string{
	"I-130": {"passport", "birth_certificate", "marriage_certificate", "proof_of_citizenship"},
	"I-485": {"passport", "birth_certificate", "medical_exam", "affidavit_of_support", "photos"},
	"I-765": {"passport", "photos", "i94"},
	"N-400": {"green_card", "passport", "tax_returns", "photos"},
}

// RequiredDocTypes exposes the checklist for a case type; unknown types get a
// minimal identity checklist.
func RequiredDocTypes(caseType string) []string {
	if req, ok := requiredDocs[caseType]; ok {
		return req
	}
	return []string{"passport"}
}

type DocumentService struct {
	Repo     *repository.DocumentRepository
	CaseRepo *caserepo.CaseRepository
	Quota    *quota.Service
	Audit    *audit.Recorder
}

func NewDocumentService(repo *repository.DocumentRepository, caseRepo *caserepo.CaseRepository, q *quota.Service, auditor *audit.Recorder) *DocumentService {
	return &DocumentService{Repo: repo, CaseRepo: caseRepo, Quota: q, Audit: auditor}
}

// caseAccess loads the case and applies the case-level read rule; every
// document operation is scoped by its case.
func (s *DocumentService) caseAccess(caseID, userID, role, firmID string) error {
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

func (s *DocumentService) CreateDocument(userID, role, firmID string, req model.CreateDocumentRequest) (*model.Document, error) {
	if err := s.caseAccess(req.CaseID, userID, role, firmID); err != nil {
		return nil, err
	}
	if err := s.Quota.CheckAmount(firmID, quota.MetricStorage, req.SizeBytes); err != nil {
		return nil, err
	}

	d := &model.Document{
		ID:         uuid.NewString(),
		CaseID:     req.CaseID,
		UploaderID: userID,
		Name:       req.Name,
		DocType:    req.DocType,
		Status:     model.StatusPending,
		SizeBytes:  req.SizeBytes,
		ExpiresAt:  req.ExpiresAt,
	}
	// Object key in the storage bucket; the client uploads there directly.
	d.StoragePath = fmt.Sprintf("firms/%s/cases/%s/%s", firmID, req.CaseID, d.ID)

	if err := s.Repo.Create(d); err != nil {
		return nil, err
	}
	s.Quota.Record(firmID, quota.MetricStorage, req.SizeBytes)
	s.Audit.Record(firmID, userID, "document.create", "document", d.ID, map[string]interface{}{"case_id": req.CaseID})
	return d, nil
}

func (s *DocumentService) ListDocuments(caseID, userID, role, firmID string) ([]model.Document, error) {
	if err := s.caseAccess(caseID, userID, role, firmID); err != nil {
		return nil, err
	}
	return s.Repo.ListByCase(caseID)
}

// UpdateStatus: verification decisions are the attorney's; clients may only
// mark their own upload as uploaded.
func (s *DocumentService) UpdateStatus(userID, role, firmID string, req model.UpdateStatusRequest) error {
	if !model.ValidStatus(req.Status) {
		return ErrBadStatus
	}

	d, err := s.Repo.GetByID(req.DocumentID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if err := s.caseAccess(d.CaseID, userID, role, firmID); err != nil {
		return err
	}
	if role != "attorney" && req.Status != model.StatusUploaded {
		return ErrForbidden
	}

	rows, err := s.Repo.UpdateStatus(req.DocumentID, req.Status)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.Audit.Record(firmID, userID, "document.status", "document", req.DocumentID, map[string]interface{}{"status": req.Status})
	return nil
}

func (s *DocumentService) DeleteDocument(docID, userID, role, firmID string) error {
	d, err := s.Repo.GetByID(docID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if err := s.caseAccess(d.CaseID, userID, role, firmID); err != nil {
		return err
	}
	if role != "attorney" && d.UploaderID != userID {
		return ErrForbidden
	}
	if err := s.Repo.Delete(docID); err != nil {
		return err
	}
	// Give the bytes back to the storage counter.
	s.Quota.Record(firmID, quota.MetricStorage, -d.SizeBytes)
	s.Audit.Record(firmID, userID, "document.delete", "document", docID, nil)
	return nil
}

// Completeness compares the case's uploaded/verified document types against
// the checklist for its case type.
func (s *DocumentService) Completeness(caseID, userID, role, firmID string) (*model.CompletenessReport, error) {
	c, err := s.CaseRepo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if !caseservice.CanRead(c, userID, role, firmID) {
		return nil, ErrForbidden
	}

	present, err := s.Repo.ListDocTypes(caseID)
	if err != nil {
		return nil, err
	}

	required := RequiredDocTypes(c.CaseType)
	have := make(map[string]bool, len(present))
	for _, t := range present {
		have[t] = true
	}

	missing := []string{}
	for _, t := range required {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	sort.Strings(missing)

	report := &model.CompletenessReport{
		CaseID:   caseID,
		Required: required,
		Present:  present,
		Missing:  missing,
		Complete: len(missing) == 0,
	}
	if len(required) > 0 {
		report.Percent = (len(required) - len(missing)) * 100 / len(required)
	} else {
		report.Percent = 100
	}
	return report, nil
}
