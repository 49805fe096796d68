package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	casemodel "casedesk/internal/cases/model"
	"casedesk/internal/quota"
	"casedesk/pkg/logger"
)

// searchFilters is the structured form the LLM distills a natural-language
// query into. Every field is optional.
type searchFilters struct {
	Keyword  string `json:"keyword"`
	Status   string `json:"status"`
	CaseType string `json:"case_type"`
	Priority string `json:"priority"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Results  []casemodel.Case `json:"results"`
	Degraded bool             `json:"degraded"`
}

type SearchService struct {
	DB    *sql.DB
	LLM   *LLMClient
	Quota *quota.Service
}

func NewSearchService(db *sql.DB, llm *LLMClient, q *quota.Service) *SearchService {
	return &SearchService{DB: db, LLM: llm, Quota: q}
}

const searchSystemPrompt = `You translate natural-language queries about immigration cases into JSON filters.
Respond with ONLY a JSON object with optional string keys: keyword, status, case_type, priority.
status is one of: draft, in_review, filed, rfe_received, approved, denied, closed.
priority is one of: low, normal, high.`

// Search translates the query through the LLM and applies the filters as
// parameterized SQL, scoped to what the user may see. When the LLM call
// fails the whole query string is used as a plain keyword filter and the
// response is marked degraded.
func (s *SearchService) Search(ctx context.Context, userID, role, firmID, query string) (*SearchResponse, error) {
	filters := searchFilters{Keyword: query}
	degraded := false

	if err := s.Quota.Check(firmID, quota.MetricAICalls); err != nil {
		degraded = true
	} else {
		raw, err := s.LLM.Complete(ctx, searchSystemPrompt, query)
		if err != nil {
			logger.Sugar.Warnf("NL search degraded to keyword matching: %v", err)
			degraded = true
		} else if err := json.Unmarshal([]byte(extractJSON(raw)), &filters); err != nil {
			logger.Sugar.Warnf("NL search: unparseable filter response: %v", err)
			filters = searchFilters{Keyword: query}
			degraded = true
		} else {
			s.Quota.Record(firmID, quota.MetricAICalls, 1)
		}
	}

	results, err := s.runQuery(userID, role, firmID, filters)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, Degraded: degraded}, nil
}

func (s *SearchService) runQuery(userID, role, firmID string, f searchFilters) ([]casemodel.Case, error) {
	query := `SELECT id, firm_id, attorney_id, client_id, title, case_type, status, priority, deadline, notes, created_at, updated_at FROM cases WHERE `
	args := []interface{}{}

	if role == "attorney" {
		query += "firm_id = $1"
		args = append(args, firmID)
	} else {
		query += "client_id = $1"
		args = append(args, userID)
	}

	addFilter := func(clause string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += " AND " + strings.Replace(clause, "?", placeholder(len(args)), 1)
	}

	addFilter("status = ?", f.Status)
	addFilter("case_type = ?", f.CaseType)
	addFilter("priority = ?", f.Priority)
	if f.Keyword != "" {
		args = append(args, "%"+f.Keyword+"%")
		p := placeholder(len(args))
		query += " AND (title ILIKE " + p + " OR notes ILIKE " + p + ")"
	}
	query += " ORDER BY updated_at DESC LIMIT 50"

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		logger.Sugar.Errorf("Search query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	results := []casemodel.Case{}
	for rows.Next() {
		var c casemodel.Case
		if err := rows.Scan(&c.ID, &c.FirmID, &c.AttorneyID, &c.ClientID, &c.Title, &c.CaseType,
			&c.Status, &c.Priority, &c.Deadline, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		results = append(results, c)
	}
	return results, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// extractJSON trims markdown fences the model sometimes wraps around its
// JSON answer.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
