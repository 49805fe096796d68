package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	casemodel "casedesk/internal/cases/model"
	caserepo "casedesk/internal/cases/repository"
	caseservice "casedesk/internal/cases/service"
	docservice "casedesk/internal/document/service"
	"casedesk/internal/quota"
	"casedesk/pkg/logger"
)

var (
	ErrNotFound  = errors.New("case not found")
	ErrForbidden = errors.New("forbidden")
)

// RiskAssessment scores the likelihood of a USCIS Request for Evidence.
// Score and Level come from the heuristic; Summary comes from the LLM and is
// zeroed (with Degraded set) when the provider is unavailable.
type RiskAssessment struct {
	CaseID   string   `json:"case_id"`
	Score    int      `json:"score"` // 0-100
	Level    string   `json:"level"` // low, medium, high
	Factors  []string `json:"factors"`
	Summary  string   `json:"summary"`
	Degraded bool     `json:"degraded"`
}

// Base RFE rates by form category, loosely following published USCIS trends.
var baseRisk = map[string]int{
	"I-130": 25,
	"I-485": 40,
	"I-765": 15,
	"I-140": 45,
	"N-400": 20,
}

// ScoreRisk is the pure heuristic: base rate for the form category, plus
// missing evidence, an already-received RFE, and deadline pressure.
func ScoreRisk(caseType, status string, completenessPercent int, deadline *time.Time, now time.Time) (int, string, []string) {
	score, ok := baseRisk[caseType]
	factors := []string{}
	if !ok {
		score = 35
		factors = append(factors, "uncommon case type")
	}

	if completenessPercent < 100 {
		gap := (100 - completenessPercent) / 2
		score += gap
		factors = append(factors, fmt.Sprintf("document checklist %d%% complete", completenessPercent))
	}

	if status == casemodel.StatusRFEReceived {
		score += 25
		factors = append(factors, "RFE already received on this case")
	}

	if deadline != nil {
		days := int(deadline.Sub(now).Hours() / 24)
		if days < 0 {
			score += 20
			factors = append(factors, "filing deadline has passed")
		} else if days <= 14 {
			score += 10
			factors = append(factors, fmt.Sprintf("deadline in %d days", days))
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	level := "low"
	switch {
	case score >= 70:
		level = "high"
	case score >= 40:
		level = "medium"
	}
	return score, level, factors
}

type RiskService struct {
	CaseRepo *caserepo.CaseRepository
	Docs     *docservice.DocumentService
	LLM      *LLMClient
	Quota    *quota.Service
}

func NewRiskService(caseRepo *caserepo.CaseRepository, docs *docservice.DocumentService, llm *LLMClient, q *quota.Service) *RiskService {
	return &RiskService{CaseRepo: caseRepo, Docs: docs, LLM: llm, Quota: q}
}

func (s *RiskService) Assess(ctx context.Context, caseID, userID, role, firmID string) (*RiskAssessment, error) {
	c, err := s.CaseRepo.GetByID(caseID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if !caseservice.CanRead(c, userID, role, firmID) {
		return nil, ErrForbidden
	}

	report, err := s.Docs.Completeness(caseID, userID, role, firmID)
	if err != nil {
		return nil, err
	}

	score, level, factors := ScoreRisk(c.CaseType, c.Status, report.Percent, c.Deadline, time.Now())
	assessment := &RiskAssessment{
		CaseID:  caseID,
		Score:   score,
		Level:   level,
		Factors: factors,
	}

	// The narrative is best-effort: quota or provider failures degrade the
	// payload instead of failing the request.
	if err := s.Quota.Check(firmID, quota.MetricAICalls); err != nil {
		assessment.Degraded = true
		return assessment, nil
	}

	prompt := fmt.Sprintf("Case type %s, status %s, RFE risk score %d/100. Contributing factors: %s. Missing documents: %s.",
		c.CaseType, c.Status, score, strings.Join(factors, "; "), strings.Join(report.Missing, ", "))
	summary, err := s.LLM.Complete(ctx,
		"You are an immigration paralegal. In two sentences, explain this RFE risk assessment to the attorney.",
		prompt)
	if err != nil {
		logger.Sugar.Warnf("Risk summary degraded for case %s: %v", caseID, err)
		assessment.Degraded = true
		return assessment, nil
	}

	s.Quota.Record(firmID, quota.MetricAICalls, 1)
	assessment.Summary = summary
	return assessment, nil
}
