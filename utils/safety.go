package utils

import (
	"fmt"
	"math"
	"strings"

	"bioguard/models"
)

// WarningSeverity categorizes how serious the flag is.
type WarningSeverity string

const (
	Info    WarningSeverity = "info"
	Caution WarningSeverity = "caution"
	High    WarningSeverity = "high"
)

// Warning is a structured nutrient finding.
type Warning struct {
	Code           string          `json:"code"`
	Severity       WarningSeverity `json:"severity"`
	Message        string          `json:"message"`
	Metric         string          `json:"metric,omitempty"`
	Value          float64         `json:"value,omitempty"`
	Limit          float64         `json:"limit,omitempty"`
	PercentOfLimit float64         `json:"percent_of_limit,omitempty"`
	Reference      string          `json:"reference,omitempty"`
}

const (
	dailyKcal          = 2000.0
	sodiumDailyLimitMg = 2300.0
	neutralScore       = 50
)

// AssessNutrients runs the rule set over one product's nutrients. Only known
// values produce findings; a nil nutrient is never read as zero.
func AssessNutrients(productName string, raw *models.NutrientRaw) []Warning {
	warnings := []Warning{}
	if raw == nil {
		return warnings
	}

	kcal, hasKcal := models.Value(raw.Calories)
	sugarG, hasSugar := models.Value(raw.Sugars)
	sodiumMg, hasSodium := models.Value(raw.Sodium)
	carbG, hasCarb := models.Value(raw.Carbohydrates)
	protG, hasProt := models.Value(raw.Protein)
	fatG, hasFat := models.Value(raw.Fat)

	if !hasKcal && (hasCarb || hasProt || hasFat) {
		kcal = 4*carbG + 4*protG + 9*fatG
		hasKcal = kcal > 0
	}

	// 1) sugars as a share of the item's calories, and of the daily limit
	if hasSugar && sugarG > 0 {
		if hasKcal && kcal > 0 {
			pct := (sugarG * 4.0) / kcal
			if pct >= 0.10 {
				sev := Caution
				if pct >= 0.40 {
					sev = High
				}
				warnings = append(warnings, Warning{
					Code:      "sugars_high_item",
					Severity:  sev,
					Message:   fmt.Sprintf("High sugars for this item (%.0f%% of its calories).", pct*100),
					Metric:    "sugar_%_of_item_kcal",
					Value:     round2(pct * 100),
					Limit:     10,
					Reference: dgaRef("Added sugars ≤10% kcal"),
				})
			}
		}
		limitG := (0.10 * dailyKcal) / 4.0
		if share := sugarG / limitG; share >= 0.40 {
			warnings = append(warnings, Warning{
				Code:           "sugars_daily_share",
				Severity:       High,
				Message:        fmt.Sprintf("Provides ~%.0f%% of the daily sugar limit.", share*100),
				Metric:         "sugar_%_of_daily_limit",
				Value:          round2(share * 100),
				Limit:          100,
				PercentOfLimit: round2(share * 100),
				Reference:      dgaRef("<10% kcal/day from added sugars"),
			})
		}
	}

	// 2) sodium against the daily limit and per calorie
	if hasSodium && sodiumMg > 0 {
		share := sodiumMg / sodiumDailyLimitMg
		switch {
		case share >= 0.40:
			warnings = append(warnings, Warning{
				Code:           "sodium_very_high",
				Severity:       High,
				Message:        fmt.Sprintf("Very high sodium (≈%.0f%% of the daily limit).", share*100),
				Metric:         "sodium_%_of_daily_limit",
				Value:          round2(share * 100),
				Limit:          100,
				PercentOfLimit: round2(share * 100),
				Reference:      dgaRef("Limit sodium (CDRR)"),
			})
		case share >= 0.20:
			warnings = append(warnings, Warning{
				Code:           "sodium_high",
				Severity:       Caution,
				Message:        fmt.Sprintf("High sodium (≈%.0f%% of the daily limit).", share*100),
				Metric:         "sodium_%_of_daily_limit",
				Value:          round2(share * 100),
				Limit:          100,
				PercentOfLimit: round2(share * 100),
				Reference:      dgaRef("Limit sodium (CDRR)"),
			})
		}
		if hasKcal && kcal > 0 {
			if per100 := (sodiumMg / kcal) * 100.0; per100 >= 400 {
				warnings = append(warnings, Warning{
					Code:      "sodium_dense",
					Severity:  Info,
					Message:   "High sodium density relative to calories.",
					Metric:    "sodium_mg_per_100kcal",
					Value:     round2(per100),
					Reference: dgaRef("Choose lower-sodium options"),
				})
			}
		}
	}

	// 3) fat share of calories
	if hasFat && fatG > 0 && hasKcal && kcal > 0 {
		if pct := (fatG * 9.0) / kcal; pct > 0.35 {
			warnings = append(warnings, Warning{
				Code:      "fat_high_item",
				Severity:  Caution,
				Message:   fmt.Sprintf("Fat ~%.0f%% of calories (AMDR 20–35%%).", math.Min(pct, 1)*100),
				Metric:    "fat_%_of_item_kcal",
				Value:     round2(pct * 100),
				Limit:     35,
				Reference: dgaRef("AMDR: Fat 20–35% kcal"),
			})
		}
	}

	// 4) energy density (values are per 100 g for most providers)
	if hasKcal {
		switch {
		case kcal >= 400:
			warnings = append(warnings, Warning{
				Code:      "energy_density_very_high",
				Severity:  Caution,
				Message:   "Very energy-dense food; mind the portion.",
				Metric:    "kcal",
				Value:     round2(kcal),
				Reference: dgaRef("Moderate high-energy-density foods"),
			})
		case kcal >= 275:
			warnings = append(warnings, Warning{
				Code:      "energy_density_high",
				Severity:  Info,
				Message:   "Energy-dense food.",
				Metric:    "kcal",
				Value:     round2(kcal),
				Reference: dgaRef("Emphasize nutrient-dense foods"),
			})
		}
	}

	// 5) protein is a positive signal
	if hasProt && hasKcal && kcal > 0 && (protG*4.0)/kcal >= 0.20 {
		warnings = append(warnings, Warning{
			Code:      "protein_good",
			Severity:  Info,
			Message:   "Good protein density.",
			Metric:    "protein_%_of_item_kcal",
			Value:     round2((protG * 4.0) / kcal * 100),
			Reference: dgaRef("AMDR: Protein 10–35% kcal"),
		})
	}

	// 6) name heuristics
	lower := strings.ToLower(productName)
	switch {
	case isLikelyWholeGrain(lower):
		warnings = append(warnings, Warning{
			Code:      "whole_grain_positive",
			Severity:  Info,
			Message:   "Whole-grain choice supports fiber and nutrient density.",
			Reference: dgaRef("Make at least half of grains whole"),
		})
	case isLikelyRefinedGrain(lower):
		warnings = append(warnings, Warning{
			Code:      "refined_grain_nudge",
			Severity:  Info,
			Message:   "Refined-grain item; whole-grain options are better.",
			Reference: dgaRef("Make at least half of grains whole"),
		})
	}
	if looksHighSatSource(lower) {
		warnings = append(warnings, Warning{
			Code:      "satfat_source_heuristic",
			Severity:  Info,
			Message:   "Likely high in saturated fat.",
			Reference: dgaRef("Shift from saturated to unsaturated fats"),
		})
	}

	return warnings
}

// positive findings raise the estimate instead of lowering it
var positiveCodes = map[string]bool{
	"protein_good":         true,
	"whole_grain_positive": true,
}

// NutrientScore estimates a 0–100 health score from nutrient findings.
// Without any known nutrient it returns the neutral 50.
func NutrientScore(raw *models.NutrientRaw, warnings []Warning) int {
	if raw == nil || raw.IsEmpty() {
		return neutralScore
	}
	score := 80
	for _, w := range warnings {
		if positiveCodes[w.Code] {
			score += 5
			continue
		}
		switch w.Severity {
		case High:
			score -= 15
		case Caution:
			score -= 8
		case Info:
			score -= 2
		}
	}
	return clamp(score, 0, 100)
}

// VerdictForScore maps an estimated score onto the oracle's verdict scale.
func VerdictForScore(score int) models.Verdict {
	switch {
	case score >= 70:
		return models.VerdictSafe
	case score >= 40:
		return models.VerdictWarning
	default:
		return models.VerdictDanger
	}
}

// WarningCodes lists the finding codes, for the score breakdown.
func WarningCodes(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func dgaRef(where string) string {
	return "Dietary Guidelines for Americans, 2020–2025, " + where
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isLikelyWholeGrain(name string) bool {
	return containsAny(name, "whole wheat", "whole-grain", "whole grain", "brown rice", "oat", "quinoa", "bulgur", "rye", "wholemeal")
}

func isLikelyRefinedGrain(name string) bool {
	return containsAny(name, "white bread", "white rice", "refined flour", "all-purpose flour", "maida", "cake", "pastry", "cracker", "biscuit")
}

func looksHighSatSource(name string) bool {
	return containsAny(name,
		"butter", "ghee", "cream", "cheese", "bacon", "sausage", "shortening",
		"palm oil", "palm kernel", "coconut oil", "lard")
}
