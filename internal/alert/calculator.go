// Package alert computes deadline alerts for case deadlines, document
// expiries and filing processing estimates, normalized to each recipient's
// timezone.
package alert

import (
	"database/sql"
	"math"
	"time"

	"casedesk/pkg/logger"

	"github.com/Velocidex/ttlcache/v2"
)

const (
	TypeCaseDeadline       = "case_deadline"
	TypeDocumentExpiry     = "document_expiry"
	TypeProcessingEstimate = "processing_estimate"

	SeverityOverdue  = "overdue"
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

type Alert struct {
	ID            string    `json:"id"`
	CaseID        string    `json:"case_id"`
	UserID        string    `json:"user_id"`
	AlertType     string    `json:"alert_type"`
	SourceID      string    `json:"source_id"` // case or document the alert derives from
	Title         string    `json:"title"`
	DueDate       time.Time `json:"due_date"`
	DaysRemaining int       `json:"days_remaining"`
	Severity      string    `json:"severity"`
	Acknowledged  bool      `json:"acknowledged"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DaysUntil counts whole calendar days between now and due, both viewed in
// the user's timezone. A deadline later today is 0 days away; yesterday is -1.
func DaysUntil(due, now time.Time, loc *time.Location) int {
	nowLocal := now.In(loc)
	dueLocal := due.In(loc)

	nowMidnight := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	dueMidnight := time.Date(dueLocal.Year(), dueLocal.Month(), dueLocal.Day(), 0, 0, 0, 0, loc)

	// Round, not truncate: a span crossing a DST transition is 23 or 25
	// hours per day instead of 24.
	return int(math.Round(dueMidnight.Sub(nowMidnight).Hours() / 24))
}

// SeverityFor bands days remaining: overdue, critical (≤3), warning (≤14),
// info beyond that.
func SeverityFor(daysRemaining int) string {
	switch {
	case daysRemaining < 0:
		return SeverityOverdue
	case daysRemaining <= 3:
		return SeverityCritical
	case daysRemaining <= 14:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// TimezoneCache batches profile timezone lookups behind a TTL cache so the
// sync job does one query per attorney per hour, not per alert.
type TimezoneCache struct {
	db    *sql.DB
	cache *ttlcache.Cache
}

func NewTimezoneCache(db *sql.DB) *TimezoneCache {
	cache := ttlcache.NewCache()
	cache.SetTTL(time.Hour)
	return &TimezoneCache{db: db, cache: cache}
}

// Get resolves the user's IANA timezone, falling back to UTC for missing
// profiles or unparseable names.
func (tc *TimezoneCache) Get(userID string) *time.Location {
	if v, err := tc.cache.Get(userID); err == nil {
		return v.(*time.Location)
	}

	var tz string
	err := tc.db.QueryRow("SELECT timezone FROM profiles WHERE id = $1", userID).Scan(&tz)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to load timezone for user %s: %v", userID, err)
		}
		tz = "UTC"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Sugar.Warnf("Invalid timezone %q for user %s, using UTC", tz, userID)
		loc = time.UTC
	}

	tc.cache.Set(userID, loc)
	return loc
}
