package service

import (
	"database/sql"
	"errors"
	"time"

	"casedesk/internal/audit"
	"casedesk/internal/cases/model"
	"casedesk/internal/cases/repository"
	"casedesk/store"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("case not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("case was modified by someone else")
	ErrBadStatus = errors.New("invalid case status")
)

type CaseService struct {
	Repo  *repository.CaseRepository
	Audit *audit.Recorder
}

func NewCaseService(repo *repository.CaseRepository, auditor *audit.Recorder) *CaseService {
	return &CaseService{Repo: repo, Audit: auditor}
}

// CanRead: the case's attorney or client, or any attorney in the same firm.
func CanRead(c *model.Case, userID, role, firmID string) bool {
	if c.AttorneyID == userID || c.ClientID == userID {
		return true
	}
	return role == store.RoleAttorney && c.FirmID == firmID
}

// CanModify: only the attorney of record.
func CanModify(c *model.Case, userID string) bool {
	return c.AttorneyID == userID
}

func (s *CaseService) CreateCase(userID, role, firmID string, req model.CreateCaseRequest) (string, error) {
	if role != store.RoleAttorney {
		return "", ErrForbidden
	}
	if req.Title == "" {
		req.Title = "Untitled Case"
	}
	c := &model.Case{
		ID:         uuid.NewString(),
		FirmID:     firmID,
		AttorneyID: userID,
		ClientID:   req.ClientID,
		Title:      req.Title,
		CaseType:   req.CaseType,
		Status:     model.StatusDraft,
		Priority:   req.Priority,
		Deadline:   req.Deadline,
		Notes:      req.Notes,
	}
	if err := s.Repo.Create(c); err != nil {
		return "", err
	}
	s.Audit.Record(firmID, userID, "case.create", "case", c.ID, nil)
	return c.ID, nil
}

func (s *CaseService) GetCase(caseID, userID, role, firmID string) (*model.Case, error) {
	c, err := s.Repo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if !CanRead(c, userID, role, firmID) {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *CaseService) ListCases(userID, role, firmID string) ([]model.Case, error) {
	return s.Repo.ListForUser(userID, role, firmID)
}

// UpdateCase enforces optimistic concurrency: when the stored updated_at no
// longer matches the expected one the caller gets ErrConflict and must
// re-read before retrying.
func (s *CaseService) UpdateCase(userID, role, firmID string, req model.UpdateCaseRequest) error {
	c, err := s.Repo.GetByID(req.CaseID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if !CanModify(c, userID) {
		return ErrForbidden
	}
	if req.Status == "" {
		req.Status = c.Status
	}
	if !model.ValidStatus(req.Status) {
		return ErrBadStatus
	}
	if req.Title == "" {
		req.Title = c.Title
	}

	// Postgres timestamptz round-trips at microsecond precision.
	expected := req.ExpectedUpdatedAt.Truncate(time.Microsecond)
	if !expected.Equal(c.UpdatedAt.Truncate(time.Microsecond)) {
		return ErrConflict
	}

	rows, err := s.Repo.Update(req, c.UpdatedAt)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Lost the race between our read and the UPDATE.
		return ErrConflict
	}
	s.Audit.Record(firmID, userID, "case.update", "case", req.CaseID, map[string]interface{}{"status": req.Status})
	return nil
}

func (s *CaseService) DeleteCase(caseID, userID, firmID string) error {
	c, err := s.Repo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	if !CanModify(c, userID) {
		return ErrForbidden
	}
	if err := s.Repo.Delete(caseID); err != nil {
		return err
	}
	s.Audit.Record(firmID, userID, "case.delete", "case", caseID, nil)
	return nil
}
