package alert

import (
	"fmt"
	"sync/atomic"
	"time"

	casemodel "casedesk/internal/cases/model"
	caserepo "casedesk/internal/cases/repository"
	docrepo "casedesk/internal/document/repository"
	"casedesk/pkg/logger"

	"github.com/alitto/pond/v2"
)

// Published USCIS processing estimates in days, by form category. The
// estimate alert counts down from the filing date.
var processingEstimateDays = map[string]int{
	"I-130": 365,
	"I-485": 300,
	"I-765": 90,
	"I-131": 120,
	"N-400": 240,
}

const expiryWindowDays = 90

type Service struct {
	Repo     *Repository
	CaseRepo *caserepo.CaseRepository
	DocRepo  *docrepo.DocumentRepository
	TZ       *TimezoneCache
}

func NewService(repo *Repository, caseRepo *caserepo.CaseRepository, docRepo *docrepo.DocumentRepository, tz *TimezoneCache) *Service {
	return &Service{Repo: repo, CaseRepo: caseRepo, DocRepo: docRepo, TZ: tz}
}

type SyncResult struct {
	CasesScanned int   `json:"cases_scanned"`
	DocsScanned  int   `json:"docs_scanned"`
	Upserted     int64 `json:"upserted"`
	Failed       int64 `json:"failed"`
}

// Sync recomputes deadline alerts for every active case and expiring
// document. Each recipient's countdown is normalized to their timezone.
// Work runs on a bounded pool so a large firm cannot saturate the database.
func (s *Service) Sync(now time.Time) (*SyncResult, error) {
	cases, err := s.CaseRepo.ListActiveWithDeadlines()
	if err != nil {
		return nil, err
	}
	docs, err := s.DocRepo.ListExpiring(expiryWindowDays)
	if err != nil {
		return nil, err
	}

	caseByID := make(map[string]*casemodel.Case, len(cases))
	for i := range cases {
		caseByID[cases[i].ID] = &cases[i]
	}

	result := &SyncResult{CasesScanned: len(cases), DocsScanned: len(docs)}
	var upserted, failed atomic.Int64

	pool := pond.NewPool(10)

	upsert := func(a Alert) {
		pool.Submit(func() {
			if err := s.Repo.Upsert(&a); err != nil {
				failed.Add(1)
				return
			}
			upserted.Add(1)
		})
	}

	for _, c := range cases {
		recipients := []string{c.AttorneyID, c.ClientID}

		if c.Deadline != nil {
			for _, userID := range recipients {
				loc := s.TZ.Get(userID)
				days := DaysUntil(*c.Deadline, now, loc)
				upsert(Alert{
					CaseID:        c.ID,
					UserID:        userID,
					AlertType:     TypeCaseDeadline,
					SourceID:      c.ID,
					Title:         fmt.Sprintf("%s deadline", c.Title),
					DueDate:       *c.Deadline,
					DaysRemaining: days,
					Severity:      SeverityFor(days),
				})
			}
		}

		// Processing estimate only applies once the case is filed.
		if c.Status == casemodel.StatusFiled {
			if estimate, ok := processingEstimateDays[c.CaseType]; ok {
				due := c.UpdatedAt.AddDate(0, 0, estimate)
				loc := s.TZ.Get(c.AttorneyID)
				days := DaysUntil(due, now, loc)
				upsert(Alert{
					CaseID:        c.ID,
					UserID:        c.AttorneyID,
					AlertType:     TypeProcessingEstimate,
					SourceID:      c.ID,
					Title:         fmt.Sprintf("%s estimated USCIS decision", c.CaseType),
					DueDate:       due,
					DaysRemaining: days,
					Severity:      SeverityFor(days),
				})
			}
		}
	}

	for _, d := range docs {
		c, ok := caseByID[d.CaseID]
		if !ok {
			// Expiring document on a case without its own deadline; load it.
			loaded, err := s.CaseRepo.GetByID(d.CaseID)
			if err != nil {
				logger.Sugar.Warnf("Deadline sync: skipping document %s, case lookup failed: %v", d.ID, err)
				continue
			}
			c = loaded
			caseByID[c.ID] = c
		}

		for _, userID := range []string{c.AttorneyID, c.ClientID} {
			loc := s.TZ.Get(userID)
			days := DaysUntil(*d.ExpiresAt, now, loc)
			upsert(Alert{
				CaseID:        c.ID,
				UserID:        userID,
				AlertType:     TypeDocumentExpiry,
				SourceID:      d.ID,
				Title:         fmt.Sprintf("%s expires", d.Name),
				DueDate:       *d.ExpiresAt,
				DaysRemaining: days,
				Severity:      SeverityFor(days),
			})
		}
	}

	pool.StopAndWait()

	result.Upserted = upserted.Load()
	result.Failed = failed.Load()
	logger.Sugar.Infof("Deadline sync: %d cases, %d docs, %d alerts upserted, %d failed",
		result.CasesScanned, result.DocsScanned, result.Upserted, result.Failed)
	return result, nil
}
