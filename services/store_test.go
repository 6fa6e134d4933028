package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bioguard/config"
	"bioguard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func scanAt(id string, at time.Time, score int, verdict models.Verdict, conflicts ...models.ConflictMatch) *models.ScanAnalysisResult {
	src := models.SourceOpenFoodFacts
	if conflicts == nil {
		conflicts = []models.ConflictMatch{}
	}
	return &models.ScanAnalysisResult{
		ID:              id,
		Product:         "Product " + id,
		HealthScore:     score,
		Verdict:         verdict,
		Ingredients:     []string{"sugar"},
		Warnings:        []string{"High sugar"},
		Nutrients:       &models.NutrientRaw{Sugars: models.Float(12)},
		DataSource:      &src,
		Confidence:      0.9,
		Errors:          []string{"gemini: quota exceeded"},
		HealthConflicts: conflicts,
		Breakdown:       models.ScoreBreakdown{Baseline: score, BaselineOrigin: "nutrients", ConflictCount: len(conflicts)},
		CreatedAt:       at.UTC(),
	}
}

func TestHistoryService(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryService(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		require.NoError(t, h.Save(ctx, "u1", scanAt(fmt.Sprintf("s%02d", i), base.Add(time.Duration(i)*time.Hour), 60, models.VerdictWarning)))
	}
	require.NoError(t, h.Save(ctx, "u2", scanAt("other", base, 90, models.VerdictSafe)))

	t.Run("list recent defaults to ten newest first", func(t *testing.T) {
		list, err := h.ListRecent(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, list, 10)
		assert.Equal(t, "s11", list[0].ID)
		assert.Equal(t, "s02", list[9].ID)
	})

	t.Run("get round-trips the result", func(t *testing.T) {
		got, err := h.Get(ctx, "u1", "s03")
		require.NoError(t, err)
		assert.Equal(t, "Product s03", got.Product)
		assert.Equal(t, []string{"sugar"}, got.Ingredients)
		require.NotNil(t, got.DataSource)
		assert.Equal(t, models.SourceOpenFoodFacts, *got.DataSource)
		assert.InDelta(t, 12, *got.Nutrients.Sugars, 0.001)
		assert.Equal(t, "nutrients", got.Breakdown.BaselineOrigin)
		assert.NotNil(t, got.HealthConflicts)
		assert.InDelta(t, 0.9, got.Confidence, 0.0001)
		assert.Equal(t, []string{"gemini: quota exceeded"}, got.Errors)
	})

	t.Run("absent errors stay absent", func(t *testing.T) {
		r := scanAt("clean", base.Add(10*time.Hour), 80, models.VerdictSafe)
		r.Errors = nil
		require.NoError(t, h.Save(ctx, "u3", r))
		got, err := h.Get(ctx, "u3", "clean")
		require.NoError(t, err)
		assert.Nil(t, got.Errors)
	})

	t.Run("get is scoped to the owner", func(t *testing.T) {
		_, err := h.Get(ctx, "u1", "other")
		assert.ErrorIs(t, err, ErrScanNotFound)
	})

	t.Run("prune", func(t *testing.T) {
		n, err := h.PruneOlderThan(ctx, base.Add(5*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(6), n) // s00..s04 and u2's scan
		list, err := h.ListRecent(ctx, "u1", 50)
		require.NoError(t, err)
		assert.Len(t, list, 7)
	})
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	s := NewUserService(setupTestDB(t))

	_, err := s.GetHealthProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	conds := []string{"Diabetes", " ", "hypertension"}
	allergies := []string{"peanut allergy"}
	sources := []string{"FoodData", "openfoodfacts"}
	p, err := s.UpsertProfile(ctx, "u1", ProfileInput{
		MedicalConditions: &conds,
		Allergies:         &allergies,
		PreferredSources:  &sources,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Diabetes", "hypertension"}, p.MedicalConditions)
	assert.Equal(t, []string{"fooddata", "openfoodfacts"}, p.PreferredSources)

	region := "US"
	syncOn := true
	_, err = s.UpsertProfile(ctx, "u1", ProfileInput{Region: &region, HealthSync: &syncOn})
	require.NoError(t, err)

	got, err := s.GetHealthProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Diabetes", "hypertension"}, got.MedicalConditions, "nil fields are untouched")
	assert.Equal(t, "us", got.Region)
	assert.True(t, got.HealthSync)
	assert.Equal(t, []string{"Diabetes", "hypertension", "peanut allergy"}, got.Conditions())

	bad := []string{"wikipedia"}
	_, err = s.UpsertProfile(ctx, "u1", ProfileInput{PreferredSources: &bad})
	assert.ErrorContains(t, err, "unknown nutrition source")
}

func TestAnalyticsService_Dashboard(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	h := NewHistoryService(db)
	a := NewAnalyticsService(db)
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	diabetes := models.ConflictMatch{Ingredient: "sugar", HealthCondition: "diabetes", Relationship: "increases_risk", Severity: "high"}
	hyper := models.ConflictMatch{Ingredient: "salt", HealthCondition: "hypertension", Relationship: "increases_risk", Severity: "high"}
	require.NoError(t, h.Save(ctx, "u1", scanAt("a", day1, 80, models.VerdictSafe)))
	require.NoError(t, h.Save(ctx, "u1", scanAt("b", day1.Add(time.Hour), 30, models.VerdictDanger, diabetes, hyper)))
	require.NoError(t, h.Save(ctx, "u1", scanAt("c", day2, 55, models.VerdictWarning, diabetes)))
	require.NoError(t, h.Save(ctx, "u2", scanAt("d", day2, 10, models.VerdictDanger)))

	m, err := a.Dashboard(ctx, "u1", day1, day2.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Scans)
	assert.InDelta(t, 55, m.HealthScore, 0.001)
	assert.Equal(t, int64(2), m.Warnings)
	assert.Equal(t, int64(1), m.Verdicts.Safe)
	assert.Equal(t, int64(1), m.Verdicts.Danger)
	assert.Equal(t, 3, m.Conflicts)
	require.NotEmpty(t, m.TopConditions)
	assert.Equal(t, ConditionCount{Condition: "diabetes", Count: 2}, m.TopConditions[0])
	require.Len(t, m.Days, 3)
	assert.Equal(t, 2, m.Days[0].Scans)
	assert.InDelta(t, 55, m.Days[0].AvgScore, 0.001)
	assert.Equal(t, 0, m.Days[2].Scans)
	// (1 + 0.5 + 1) / (2 + 0.5 + 2)
	assert.InDelta(t, 55.56, m.SafetyPct, 0.01)

	empty, err := a.Dashboard(ctx, "nobody", day1, day1)
	require.NoError(t, err)
	assert.Zero(t, empty.Scans)
	assert.Zero(t, empty.HealthScore)

	_, err = a.Dashboard(ctx, "u1", day2, day1)
	assert.Error(t, err)
}
