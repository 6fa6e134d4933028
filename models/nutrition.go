package models

// NutrientRaw is the provider-independent nutrient schema.
// A nil field means the provider did not report it; it is never the same as zero.
// Energy in kcal, sodium in mg, everything else in grams.
type NutrientRaw struct {
	Calories      *float64 `json:"calories"`
	Carbohydrates *float64 `json:"carbohydrates"`
	Fat           *float64 `json:"fat"`
	Protein       *float64 `json:"protein"`
	Sugars        *float64 `json:"sugars"`
	Sodium        *float64 `json:"sodium"`
}

// IsEmpty reports whether no nutrient was reported at all.
func (n NutrientRaw) IsEmpty() bool {
	return n.Calories == nil && n.Carbohydrates == nil && n.Fat == nil &&
		n.Protein == nil && n.Sugars == nil && n.Sodium == nil
}

// Value returns the nutrient value and whether it is known.
func Value(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Float is a small helper for building NutrientRaw literals.
func Float(v float64) *float64 { return &v }

// SourceAttempt records one provider call made while resolving nutrition.
type SourceAttempt struct {
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// NutrientSnapshot is what the resolver hands back for one lookup.
// Source == "" means no provider had data: Raw is nil and callers must treat it as absence.
type NutrientSnapshot struct {
	Source      string          `json:"source,omitempty"`
	Confidence  float64         `json:"confidence"`
	Cached      bool            `json:"cached"`
	Raw         *NutrientRaw    `json:"raw"`
	ProductName string          `json:"product_name,omitempty"`
	Ingredients []string        `json:"ingredients,omitempty"`
	Attempts    []SourceAttempt `json:"attempts,omitempty"`
}

// Found reports whether the snapshot carries provider data.
func (s NutrientSnapshot) Found() bool {
	return s.Source != "" && s.Raw != nil
}

// EmptySnapshot is the explicit "no data found" outcome.
func EmptySnapshot(attempts []SourceAttempt) NutrientSnapshot {
	return NutrientSnapshot{Attempts: attempts}
}

// Nutrition provider ids.
const (
	SourceOpenFoodFacts = "openfoodfacts"
	SourceFoodData      = "fooddata"
	SourceEdamam        = "edamam"
	SourceEdamamVision  = "edamam_vision"
	SourceNutritionix   = "nutritionix"
)

// KnownSources lists every provider id the resolver understands.
var KnownSources = []string{
	SourceOpenFoodFacts, SourceFoodData, SourceEdamam, SourceEdamamVision, SourceNutritionix,
}

// IsKnownSource reports whether id names a supported provider.
func IsKnownSource(id string) bool {
	for _, s := range KnownSources {
		if s == id {
			return true
		}
	}
	return false
}
