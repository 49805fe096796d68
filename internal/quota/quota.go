// Package quota tracks per-firm monthly usage counters for metered features
// (AI calls, PDF fills, storage) and enforces plan limits before the spend.
package quota

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"casedesk/middleware"
	"casedesk/pkg/logger"
)

const (
	MetricAICalls  = "ai_calls"
	MetricPDFFills = "pdf_fills"
	MetricStorage  = "storage_bytes"
)

// Plan limits per calendar month. Storage approximates a running total:
// uploads add, deletes subtract, both against the current period's row.
var planLimits = map[string]map[string]int64{
	"free":    {MetricAICalls: 50, MetricPDFFills: 10, MetricStorage: 1 << 30},
	"starter": {MetricAICalls: 500, MetricPDFFills: 100, MetricStorage: 10 << 30},
	"pro":     {MetricAICalls: 5000, MetricPDFFills: 1000, MetricStorage: 100 << 30},
}

var ErrQuotaExceeded = errors.New("quota exceeded")

type Usage struct {
	Metric string `json:"metric"`
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
}

type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

func period(now time.Time) string {
	return now.UTC().Format("2006-01")
}

func (s *Service) limitFor(firmID, metric string) (int64, error) {
	var plan string
	err := s.DB.QueryRow("SELECT plan FROM firms WHERE id = $1", firmID).Scan(&plan)
	if err != nil {
		return 0, err
	}
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits["free"]
	}
	return limits[metric], nil
}

// Check returns ErrQuotaExceeded when the firm has no headroom for one more
// unit of the metric this month. Check-then-increment is two statements;
// concurrent requests can overshoot slightly, which is acceptable for
// metering.
func (s *Service) Check(firmID, metric string) error {
	return s.CheckAmount(firmID, metric, 1)
}

// CheckAmount is Check for variable-size spends, e.g. a document upload of
// SizeBytes against the storage cap.
func (s *Service) CheckAmount(firmID, metric string, amount int64) error {
	limit, err := s.limitFor(firmID, metric)
	if err != nil {
		logger.Sugar.Errorf("Quota: failed to resolve plan for firm %s: %v", firmID, err)
		return err
	}

	var used int64
	err = s.DB.QueryRow("SELECT used FROM quota_usage WHERE firm_id = $1 AND period = $2 AND metric = $3",
		firmID, period(time.Now()), metric).Scan(&used)
	if err == sql.ErrNoRows {
		used = 0
	} else if err != nil {
		return err
	}

	if used+amount > limit {
		return ErrQuotaExceeded
	}
	return nil
}

// Record adds to the counter after a successful metered operation.
func (s *Service) Record(firmID, metric string, amount int64) error {
	_, err := s.DB.Exec(`INSERT INTO quota_usage (firm_id, period, metric, used) VALUES ($1, $2, $3, $4)
		ON CONFLICT (firm_id, period, metric) DO UPDATE SET used = quota_usage.used + $4`,
		firmID, period(time.Now()), metric, amount)
	if err != nil {
		logger.Sugar.Errorf("Quota: failed to record %s usage for firm %s: %v", metric, firmID, err)
	}
	return err
}

// GetUsage reports the firm's counters for the current period.
func (s *Service) GetUsage(firmID string) ([]Usage, error) {
	var plan string
	if err := s.DB.QueryRow("SELECT plan FROM firms WHERE id = $1", firmID).Scan(&plan); err != nil {
		return nil, err
	}
	limits, ok := planLimits[plan]
	if !ok {
		limits = planLimits["free"]
	}

	rows, err := s.DB.Query("SELECT metric, used FROM quota_usage WHERE firm_id = $1 AND period = $2",
		firmID, period(time.Now()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	used := map[string]int64{}
	for rows.Next() {
		var metric string
		var n int64
		if err := rows.Scan(&metric, &n); err == nil {
			used[metric] = n
		}
	}

	usage := []Usage{}
	for _, metric := range []string{MetricAICalls, MetricPDFFills, MetricStorage} {
		usage = append(usage, Usage{Metric: metric, Used: used[metric], Limit: limits[metric]})
	}
	return usage, nil
}

type Handler struct {
	Service *Service
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	firmID, _ := r.Context().Value(middleware.FirmIDKey).(string)

	usage, err := h.Service.GetUsage(firmID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching quota usage: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(usage)
}

// WriteExceeded writes the 429 quota payload the frontend renders as an
// upgrade prompt.
func WriteExceeded(w http.ResponseWriter, metric string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  "quota exceeded",
		"metric": metric,
	})
}
