package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bioguard/config"
	"bioguard/controllers"
	"bioguard/models"
	"bioguard/services"
	"bioguard/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "route-secret"

type stubSource struct{}

func (stubSource) ID() string { return models.SourceOpenFoodFacts }

func (stubSource) Accepts(q services.NutritionQuery) bool { return q.Barcode != "" }

func (stubSource) Lookup(_ context.Context, q services.NutritionQuery) services.SourceResult {
	if q.Barcode != "5000159484695" {
		return services.SourceResult{Failure: services.FailureNoData, Detail: "unknown barcode"}
	}
	return services.SourceResult{
		ProductName: "Cola",
		Ingredients: []string{"water", "sugar", "caffeine"},
		Nutrients: models.NutrientRaw{
			Calories: models.Float(42),
			Sugars:   models.Float(10.6),
			Sodium:   models.Float(10),
		},
	}
}

type testApp struct {
	router *gin.Engine
	graph  *services.ConflictGraph
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	log := utils.NopLogger()
	resolver := services.NewNutritionResolver([]services.NutritionSource{stubSource{}}, services.ResolverOptions{
		DefaultOrder: []string{models.SourceOpenFoodFacts},
		Cache:        services.NewMemoryNutritionCache(time.Minute),
	}, log)
	oracle := services.NewVisionOracle(nil, nil, true, 0, log)
	graph := services.NewConflictGraph()
	services.SeedConflictGraph(graph)

	hub := services.NewRealtimeHub()
	tracker := services.NewScanTracker(0)
	tracker.OnChange(hub.ScanStateChanged)
	alerts := services.NewAlertBus(db, hub, nil, log)
	history := services.NewHistoryService(db)
	users := services.NewUserService(db)

	pipeline := services.NewScanPipeline(services.PipelineDeps{
		Profiles: users,
		Store:    history,
		Oracle:   oracle,
		Resolver: resolver,
		Graph:    graph,
		Tracker:  tracker,
		Alerts:   alerts,
	}, log)

	r := SetupRouter(Deps{
		JWTSecret:   testSecret,
		CORSOrigins: []string{"*"},
		Log:         log,
		Scan:        controllers.NewScanController(pipeline),
		Nutrition:   controllers.NewNutritionController(resolver),
		Graph:       controllers.NewGraphController(graph, nil, log),
		History:     controllers.NewHistoryController(history),
		Analytics:   controllers.NewAnalyticsController(services.NewAnalyticsService(db)),
		User:        controllers.NewUserController(users),
		Device:      controllers.NewDeviceController(nil),
		Realtime:    controllers.NewRealtimeController(hub, alerts),
	})
	return &testApp{router: r, graph: graph}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (a *testApp) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)
	for _, path := range []string{"/history", "/dashboard", "/graph/edges", "/scan/state"} {
		w := app.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestScanFlow(t *testing.T) {
	app := newTestApp(t)
	const user = "user-42"

	w := app.do(t, http.MethodPut, "/user/profile", user, map[string]any{
		"medical_conditions": []string{"Diabetes"},
		"allergies":          []string{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/scan", user, map[string]any{"barcode": "5000159484695"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.ScanAnalysisResult](t, w)
	assert.Equal(t, "Cola", res.Product)
	assert.Equal(t, "nutrients", res.Breakdown.BaselineOrigin)
	require.NotNil(t, res.DataSource)
	assert.Equal(t, models.SourceOpenFoodFacts, *res.DataSource)
	require.NotEmpty(t, res.HealthConflicts)
	assert.Equal(t, "sugar", res.HealthConflicts[0].Ingredient)
	assert.Equal(t, "diabetes", res.HealthConflicts[0].HealthCondition)
	require.NotEmpty(t, res.ID)

	w = app.do(t, http.MethodGet, "/history", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[struct {
		Scans []models.ScanAnalysisResult `json:"scans"`
	}](t, w)
	require.Len(t, hist.Scans, 1)
	assert.Equal(t, res.ID, hist.Scans[0].ID)

	w = app.do(t, http.MethodGet, "/history/"+res.ID, user, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// other users cannot see it
	w = app.do(t, http.MethodGet, "/history/"+res.ID, "someone-else", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/dashboard", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[services.DashboardMetrics](t, w)
	assert.EqualValues(t, 1, dash.Scans)
	assert.Equal(t, len(res.HealthConflicts), dash.Conflicts)

	w = app.do(t, http.MethodGet, "/scan/state", user, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScanEmptyInputIsBadRequest(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/scan", "u1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanWithImageUsesMockOracle(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/scan", "u1", map[string]any{
		"image_base64": "data:image/jpeg;base64,/9j/4AAQSkZJRg==",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[models.ScanAnalysisResult](t, w)
	assert.Equal(t, "Mock Snack", res.Product)
	assert.Equal(t, 72, res.HealthScore)
	assert.Equal(t, "vision:mock", res.Breakdown.BaselineOrigin)
}

func TestCancelWithoutScanIsNotFound(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodDelete, "/scan/active", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNutritionLookup(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/nutrition?barcode=5000159484695", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[models.NutrientSnapshot](t, w)
	assert.Equal(t, models.SourceOpenFoodFacts, snap.Source)
	require.NotNil(t, snap.Raw)
	assert.InDelta(t, 10.6, *snap.Raw.Sugars, 0.001)

	w = app.do(t, http.MethodGet, "/nutrition?barcode=000", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/nutrition", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphRoutes(t *testing.T) {
	app := newTestApp(t)
	before := app.graph.Len()

	w := app.do(t, http.MethodPost, "/graph/edges", "u1", map[string]any{
		"ingredient": "licorice", "condition": "hypertension",
		"relationship": "increases_risk", "severity": "medium",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, before+1, app.graph.Len())

	w = app.do(t, http.MethodPost, "/graph/edges", "u1", map[string]any{
		"ingredient": "licorice", "condition": "hypertension",
		"relationship": "loves", "severity": "medium",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/graph/edges", "u1", map[string]any{
		"ingredient": "   ", "condition": "hypertension",
		"relationship": "harms", "severity": "low",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, before+1, app.graph.Len())

	w = app.do(t, http.MethodPost, "/graph/edges", "u1", map[string]any{
		"ingredient": " Sodium", "condition": "Hypertension ",
		"relationship": "harms", "severity": "low",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.ConflictEdge](t, w)
	assert.Equal(t, "sodium", created.Ingredient)
	assert.Equal(t, "hypertension", created.Condition)
	assert.Equal(t, before+1, app.graph.Len(), "existing edge is overwritten, not duplicated")

	w = app.do(t, http.MethodPost, "/graph/conflicts", "u1", map[string]any{
		"ingredients": []string{" Licorice "},
		"conditions":  []string{"Hypertension"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[struct {
		Conflicts []models.ConflictMatch `json:"conflicts"`
	}](t, w)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "hypertension", out.Conflicts[0].HealthCondition)
}

func TestDevicesUnavailableWithoutPush(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/user/devices", "u1", map[string]any{"platform": "android", "token": "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
