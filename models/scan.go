package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Verdict is the coarse safety classification produced by the vision oracle.
type Verdict string

const (
	VerdictSafe    Verdict = "SAFE"
	VerdictWarning Verdict = "WARNING"
	VerdictDanger  Verdict = "DANGER"
)

// ParseVerdict is case-insensitive; anything unknown becomes WARNING.
func ParseVerdict(s string) Verdict {
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case VerdictSafe:
		return VerdictSafe
	case VerdictDanger:
		return VerdictDanger
	default:
		return VerdictWarning
	}
}

// ScoreBreakdown explains where health_score came from.
type ScoreBreakdown struct {
	Baseline       int      `json:"baseline"`
	BaselineOrigin string   `json:"baseline_origin"` // vision:<provider> | nutrients | default
	NutrientFlags  []string `json:"nutrient_flags,omitempty"`
	ConflictCount  int      `json:"conflict_count"`
}

// ScanAnalysisResult is built once per scan and never mutated afterwards.
type ScanAnalysisResult struct {
	ID              string          `json:"id,omitempty"`
	Product         string          `json:"product"`
	HealthScore     int             `json:"health_score"`
	Verdict         Verdict         `json:"verdict"`
	Ingredients     []string        `json:"ingredients"`
	Warnings        []string        `json:"warnings"`
	Nutrients       *NutrientRaw    `json:"nutrients"`
	DataSource      *string         `json:"data_source"`
	HealthConflicts []ConflictMatch `json:"health_conflicts"`
	Barcode         string          `json:"barcode,omitempty"`
	Confidence      float64         `json:"confidence"`
	Breakdown       ScoreBreakdown  `json:"breakdown"`
	ImageURL        string          `json:"image_url,omitempty"`
	Errors          []string        `json:"errors,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ScanRecord is the persisted form of a ScanAnalysisResult.
type ScanRecord struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	UserID      string `gorm:"type:varchar(128);index:idx_scan_user_created,priority:1;not null"`
	Product     string `gorm:"not null"`
	HealthScore int
	Verdict     string `gorm:"size:16"`
	Barcode     string `gorm:"size:32"`
	DataSource  string `gorm:"size:32"`
	Confidence  float64
	ImageURL    string
	Ingredients datatypes.JSON
	Warnings    datatypes.JSON
	Nutrients   datatypes.JSON
	Conflicts   datatypes.JSON
	Breakdown   datatypes.JSON
	Errors      datatypes.JSON
	CreatedAt   time.Time `gorm:"index:idx_scan_user_created,priority:2"`
}

// NewScanRecord flattens a result for storage.
func NewScanRecord(userID string, r *ScanAnalysisResult) (*ScanRecord, error) {
	rec := &ScanRecord{
		ID:          r.ID,
		UserID:      userID,
		Product:     r.Product,
		HealthScore: r.HealthScore,
		Verdict:     string(r.Verdict),
		Barcode:     r.Barcode,
		Confidence:  r.Confidence,
		ImageURL:    r.ImageURL,
		CreatedAt:   r.CreatedAt,
	}
	if r.DataSource != nil {
		rec.DataSource = *r.DataSource
	}
	var err error
	if rec.Ingredients, err = toJSON(r.Ingredients); err != nil {
		return nil, err
	}
	if rec.Warnings, err = toJSON(r.Warnings); err != nil {
		return nil, err
	}
	if rec.Nutrients, err = toJSON(r.Nutrients); err != nil {
		return nil, err
	}
	if rec.Conflicts, err = toJSON(r.HealthConflicts); err != nil {
		return nil, err
	}
	if rec.Breakdown, err = toJSON(r.Breakdown); err != nil {
		return nil, err
	}
	if len(r.Errors) > 0 {
		if rec.Errors, err = toJSON(r.Errors); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Result rebuilds the analysis view of a stored record.
func (s *ScanRecord) Result() (*ScanAnalysisResult, error) {
	out := &ScanAnalysisResult{
		ID:          s.ID,
		Product:     s.Product,
		HealthScore: s.HealthScore,
		Verdict:     Verdict(s.Verdict),
		Barcode:     s.Barcode,
		Confidence:  s.Confidence,
		ImageURL:    s.ImageURL,
		CreatedAt:   s.CreatedAt,
	}
	if s.DataSource != "" {
		src := s.DataSource
		out.DataSource = &src
	}
	for _, f := range []struct {
		raw datatypes.JSON
		dst any
	}{
		{s.Ingredients, &out.Ingredients},
		{s.Warnings, &out.Warnings},
		{s.Nutrients, &out.Nutrients},
		{s.Conflicts, &out.HealthConflicts},
		{s.Breakdown, &out.Breakdown},
		{s.Errors, &out.Errors},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	if out.Ingredients == nil {
		out.Ingredients = []string{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	if out.HealthConflicts == nil {
		out.HealthConflicts = []ConflictMatch{}
	}
	return out, nil
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
