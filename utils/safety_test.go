package utils

import (
	"testing"

	"bioguard/models"

	"github.com/stretchr/testify/assert"
)

func hasCode(ws []Warning, code string) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestAssessNutrients(t *testing.T) {
	t.Run("chocolate bar", func(t *testing.T) {
		raw := &models.NutrientRaw{
			Calories: models.Float(530), Fat: models.Float(30), Carbohydrates: models.Float(58),
			Protein: models.Float(6), Sugars: models.Float(56), Sodium: models.Float(40),
		}
		ws := AssessNutrients("Milk Chocolate", raw)
		assert.True(t, hasCode(ws, "sugars_high_item"))
		assert.True(t, hasCode(ws, "sugars_daily_share"))
		assert.True(t, hasCode(ws, "fat_high_item"))
		assert.True(t, hasCode(ws, "energy_density_very_high"))
		assert.False(t, hasCode(ws, "sodium_high"))

		score := NutrientScore(raw, ws)
		assert.Less(t, score, 40)
		assert.Equal(t, models.VerdictDanger, VerdictForScore(score))
	})

	t.Run("salty snack", func(t *testing.T) {
		raw := &models.NutrientRaw{Sodium: models.Float(1000), Calories: models.Float(150)}
		ws := AssessNutrients("pretzels", raw)
		assert.True(t, hasCode(ws, "sodium_very_high"))
		assert.True(t, hasCode(ws, "sodium_dense"))
	})

	t.Run("unknown nutrients are not zero", func(t *testing.T) {
		ws := AssessNutrients("mystery", &models.NutrientRaw{})
		assert.Empty(t, ws)
		assert.Equal(t, 50, NutrientScore(&models.NutrientRaw{}, ws))
		assert.Equal(t, 50, NutrientScore(nil, nil))
		assert.Empty(t, AssessNutrients("x", nil))
	})

	t.Run("calories rebuilt from macros", func(t *testing.T) {
		raw := &models.NutrientRaw{Protein: models.Float(25), Fat: models.Float(2), Carbohydrates: models.Float(1)}
		ws := AssessNutrients("Oat protein bar", raw)
		assert.True(t, hasCode(ws, "protein_good"))
		assert.True(t, hasCode(ws, "whole_grain_positive"))
		assert.GreaterOrEqual(t, NutrientScore(raw, ws), 80)
	})
}

func TestVerdictForScore(t *testing.T) {
	assert.Equal(t, models.VerdictSafe, VerdictForScore(70))
	assert.Equal(t, models.VerdictWarning, VerdictForScore(69))
	assert.Equal(t, models.VerdictWarning, VerdictForScore(40))
	assert.Equal(t, models.VerdictDanger, VerdictForScore(39))
}
