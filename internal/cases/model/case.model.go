package model

import "time"

const (
	StatusDraft       = "draft"
	StatusInReview    = "in_review"
	StatusFiled       = "filed"
	StatusRFEReceived = "rfe_received"
	StatusApproved    = "approved"
	StatusDenied      = "denied"
	StatusClosed      = "closed"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusInReview, StatusFiled, StatusRFEReceived,
		StatusApproved, StatusDenied, StatusClosed:
		return true
	}
	return false
}

type Case struct {
	ID         string     `json:"id"`
	FirmID     string     `json:"firm_id"`
	AttorneyID string     `json:"attorney_id"`
	ClientID   string     `json:"client_id"`
	Title      string     `json:"title"`
	CaseType   string     `json:"case_type"` // visa category, e.g. I-130
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Notes      string     `json:"notes"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CreateCaseRequest struct {
	Title    string     `json:"title"`
	CaseType string     `json:"case_type"`
	ClientID string     `json:"client_id"`
	Priority string     `json:"priority"`
	Deadline *time.Time `json:"deadline"`
	Notes    string     `json:"notes"`
}

type CreateCaseResponse struct {
	CaseID string `json:"case_id"`
}

// UpdateCaseRequest carries the optimistic-concurrency token: the update only
// applies when ExpectedUpdatedAt still matches the stored updated_at.
type UpdateCaseRequest struct {
	CaseID            string     `json:"case_id"`
	Title             string     `json:"title"`
	Status            string     `json:"status"`
	Priority          string     `json:"priority"`
	Deadline          *time.Time `json:"deadline"`
	Notes             string     `json:"notes"`
	ExpectedUpdatedAt time.Time  `json:"expected_updated_at"`
}
