package ai

import (
	"testing"
	"time"

	casemodel "casedesk/internal/cases/model"

	"github.com/stretchr/testify/assert"
)

func TestScoreRiskBaseRates(t *testing.T) {
	now := time.Now()

	score, level, factors := ScoreRisk("I-765", casemodel.StatusDraft, 100, nil, now)
	assert.Equal(t, 15, score)
	assert.Equal(t, "low", level)
	assert.Empty(t, factors)

	score, level, _ = ScoreRisk("I-140", casemodel.StatusDraft, 100, nil, now)
	assert.Equal(t, 45, score)
	assert.Equal(t, "medium", level)
}

func TestScoreRiskUnknownCaseType(t *testing.T) {
	score, _, factors := ScoreRisk("O-1", casemodel.StatusDraft, 100, nil, time.Now())
	assert.Equal(t, 35, score)
	assert.Contains(t, factors, "uncommon case type")
}

func TestScoreRiskIncompleteChecklist(t *testing.T) {
	// Half the checklist missing adds 25 on top of the I-130 base of 25.
	score, level, factors := ScoreRisk("I-130", casemodel.StatusDraft, 50, nil, time.Now())
	assert.Equal(t, 50, score)
	assert.Equal(t, "medium", level)
	assert.Contains(t, factors, "document checklist 50% complete")
}

func TestScoreRiskRFEReceived(t *testing.T) {
	score, level, factors := ScoreRisk("I-485", casemodel.StatusRFEReceived, 100, nil, time.Now())
	assert.Equal(t, 65, score)
	assert.Equal(t, "medium", level)
	assert.Contains(t, factors, "RFE already received on this case")
}

func TestScoreRiskDeadlinePressure(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("past deadline", func(t *testing.T) {
		past := now.Add(-48 * time.Hour)
		score, _, factors := ScoreRisk("I-485", casemodel.StatusDraft, 100, &past, now)
		assert.Equal(t, 60, score)
		assert.Contains(t, factors, "filing deadline has passed")
	})

	t.Run("deadline within two weeks", func(t *testing.T) {
		soon := now.Add(5 * 24 * time.Hour)
		score, _, factors := ScoreRisk("I-485", casemodel.StatusDraft, 100, &soon, now)
		assert.Equal(t, 50, score)
		assert.Contains(t, factors, "deadline in 5 days")
	})

	t.Run("distant deadline adds nothing", func(t *testing.T) {
		far := now.Add(90 * 24 * time.Hour)
		score, _, factors := ScoreRisk("I-485", casemodel.StatusDraft, 100, &far, now)
		assert.Equal(t, 40, score)
		assert.Empty(t, factors)
	})
}

func TestScoreRiskClampsAt100(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	// Worst case on every axis: I-140 base 45 + 50 incomplete + 25 RFE + 20
	// overdue = 140, clamped.
	score, level, _ := ScoreRisk("I-140", casemodel.StatusRFEReceived, 0, &past, now)
	assert.Equal(t, 100, score)
	assert.Equal(t, "high", level)
}
