package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bioguard/models"

	"gorm.io/gorm"
)

type AnalyticsService struct{ db *gorm.DB }

func NewAnalyticsService(db *gorm.DB) *AnalyticsService { return &AnalyticsService{db: db} }

type ConditionCount struct {
	Condition string `json:"condition"`
	Count     int    `json:"count"`
}

type DayScans struct {
	Date     string  `json:"date"`
	Scans    int     `json:"scans"`
	AvgScore float64 `json:"avg_score"`
}

// DashboardMetrics summarises a user's scan history over a window.
type DashboardMetrics struct {
	Range struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"range"`

	HealthScore float64 `json:"health_score"` // mean health_score
	Scans       int64   `json:"scans"`
	Warnings    int64   `json:"warnings"` // scans with a WARNING or DANGER verdict

	Verdicts struct {
		Safe    int64 `json:"safe"`
		Warning int64 `json:"warning"`
		Danger  int64 `json:"danger"`
	} `json:"verdicts"`

	SafetyPct     float64          `json:"safety_pct"`
	Conflicts     int              `json:"conflicts"`
	TopConditions []ConditionCount `json:"top_conditions"`
	Days          []DayScans       `json:"days"`
}

// Dashboard aggregates the user's scans between from and to (inclusive days).
func (s *AnalyticsService) Dashboard(ctx context.Context, userID string, from, to time.Time) (*DashboardMetrics, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("range end %s is before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	var rows []models.ScanRecord
	if err := s.db.WithContext(ctx).
		Select("id", "health_score", "verdict", "conflicts", "created_at").
		Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, dayStart(from), dayEnd(to)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	out := &DashboardMetrics{TopConditions: []ConditionCount{}, Days: []DayScans{}}
	out.Range.From = from.Format(time.DateOnly)
	out.Range.To = to.Format(time.DateOnly)

	type dayAcc struct {
		n   int
		sum float64
	}
	days := map[string]*dayAcc{}
	conds := map[string]int{}
	var scoreSum float64

	for _, r := range rows {
		out.Scans++
		scoreSum += float64(r.HealthScore)
		switch models.Verdict(r.Verdict) {
		case models.VerdictSafe:
			out.Verdicts.Safe++
		case models.VerdictDanger:
			out.Verdicts.Danger++
		default:
			out.Verdicts.Warning++
		}

		key := r.CreatedAt.In(from.Location()).Format(time.DateOnly)
		d := days[key]
		if d == nil {
			d = &dayAcc{}
			days[key] = d
		}
		d.n++
		d.sum += float64(r.HealthScore)

		if len(r.Conflicts) == 0 {
			continue
		}
		var matches []models.ConflictMatch
		if err := json.Unmarshal(r.Conflicts, &matches); err != nil {
			return nil, fmt.Errorf("decode conflicts of scan %s: %w", r.ID, err)
		}
		out.Conflicts += len(matches)
		for _, m := range matches {
			conds[strings.ToLower(m.HealthCondition)]++
		}
	}

	out.HealthScore = avg(scoreSum, int(out.Scans))
	out.Warnings = out.Verdicts.Warning + out.Verdicts.Danger
	out.SafetyPct = safetyScore(out.Verdicts.Safe, out.Verdicts.Danger, out.Verdicts.Warning, 0.5, 1, 1)

	for c, n := range conds {
		out.TopConditions = append(out.TopConditions, ConditionCount{Condition: c, Count: n})
	}
	sort.Slice(out.TopConditions, func(i, j int) bool {
		a, b := out.TopConditions[i], out.TopConditions[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Condition < b.Condition
	})
	if len(out.TopConditions) > 5 {
		out.TopConditions = out.TopConditions[:5]
	}

	for d := dayStart(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		day := DayScans{Date: key}
		if acc := days[key]; acc != nil {
			day.Scans = acc.n
			day.AvgScore = avg(acc.sum, acc.n)
		}
		out.Days = append(out.Days, day)
	}
	return out, nil
}

// safetyScore is the smoothed share of safe scans. WARNING scans count as
// unknownWeight of a safe one; alpha and beta are Beta prior pseudo-counts.
func safetyScore(safe, unsafe, unknown int64, unknownWeight, alpha, beta float64) float64 {
	safeEff := float64(safe) + unknownWeight*float64(unknown) + alpha
	totalEff := float64(safe+unsafe) + unknownWeight*float64(unknown) + alpha + beta
	if totalEff <= 0 {
		return 100.0
	}
	return round2((safeEff / totalEff) * 100.0)
}

func avg(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return round2(sum / float64(n))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
