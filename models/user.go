package models

import (
	"strings"

	"gorm.io/gorm"
)

// User holds the medical profile the scan pipeline needs.
// List fields are stored comma-separated.
type User struct {
	gorm.Model
	UserID            string `gorm:"type:varchar(128);uniqueIndex;not null"`
	Email             string `gorm:"index"`
	FullName          string
	Allergies         string
	MedicalConditions string
	PreferredSources  string // nutrition provider ids, in order
	PreferredVision   string // vision provider hint
	Region            string `gorm:"size:8"`
	HealthSync        bool
}

// HealthProfile is the read-only view handed to the pipeline per call.
type HealthProfile struct {
	UserID            string   `json:"user_id"`
	Allergies         []string `json:"allergies"`
	MedicalConditions []string `json:"medical_conditions"`
	PreferredSources  []string `json:"preferred_sources,omitempty"`
	PreferredVision   string   `json:"preferred_vision,omitempty"`
	Region            string   `json:"region,omitempty"`
	HealthSync        bool     `json:"health_sync"`
}

// Profile converts the stored row.
func (u *User) Profile() *HealthProfile {
	return &HealthProfile{
		UserID:            u.UserID,
		Allergies:         SplitList(u.Allergies),
		MedicalConditions: SplitList(u.MedicalConditions),
		PreferredSources:  SplitList(u.PreferredSources),
		PreferredVision:   u.PreferredVision,
		Region:            u.Region,
		HealthSync:        u.HealthSync,
	}
}

// Conditions returns medical conditions followed by allergies, deduplicated
// case-insensitively with first occurrence kept.
func (p *HealthProfile) Conditions() []string {
	seen := make(map[string]struct{}, len(p.MedicalConditions)+len(p.Allergies))
	out := make([]string, 0, len(p.MedicalConditions)+len(p.Allergies))
	for _, list := range [][]string{p.MedicalConditions, p.Allergies} {
		for _, c := range list {
			k := strings.ToLower(strings.TrimSpace(c))
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}

// SplitList parses a comma-separated column, dropping blanks.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, ",")
}
