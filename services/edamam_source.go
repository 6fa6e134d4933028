package services

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bioguard/models"

	"golang.org/x/time/rate"
)

// EdamamSource parses natural-language food names through the Food Database API.
type EdamamSource struct {
	sourceClient
	appID, appKey string
}

func NewEdamamSource(baseURL, appID, appKey string, timeout time.Duration, limiter *rate.Limiter) *EdamamSource {
	return &EdamamSource{
		sourceClient: newSourceClient(models.SourceEdamam, baseURL, timeout, limiter),
		appID:        appID,
		appKey:       appKey,
	}
}

func (s *EdamamSource) ID() string { return models.SourceEdamam }

func (s *EdamamSource) Accepts(q NutritionQuery) bool {
	return strings.TrimSpace(q.Query) != ""
}

// edamamQuantity is either a bare number or {"quantity": n}.
type edamamQuantity struct{ flexFloat }

func (q *edamamQuantity) UnmarshalJSON(b []byte) error {
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Quantity flexFloat `json:"quantity"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		q.flexFloat = obj.Quantity
		return nil
	}
	return q.flexFloat.UnmarshalJSON(b)
}

type edamamNutrients struct {
	EnercKcal edamamQuantity `json:"ENERC_KCAL"`
	Chocdf    edamamQuantity `json:"CHOCDF"`
	Fat       edamamQuantity `json:"FAT"`
	Procnt    edamamQuantity `json:"PROCNT"`
	Sugar     edamamQuantity `json:"SUGAR"`
	Na        edamamQuantity `json:"NA"`
}

func (n edamamNutrients) raw() models.NutrientRaw {
	return models.NutrientRaw{
		Calories:      n.EnercKcal.ptr(),
		Carbohydrates: n.Chocdf.ptr(),
		Fat:           n.Fat.ptr(),
		Protein:       n.Procnt.ptr(),
		Sugars:        n.Sugar.ptr(),
		Sodium:        n.Na.ptr(),
	}
}

type edamamParserResponse struct {
	Hints []struct {
		Food struct {
			FoodID    string          `json:"foodId"`
			Label     string          `json:"label"`
			Nutrients edamamNutrients `json:"nutrients"`
		} `json:"food"`
	} `json:"hints"`
}

func (s *EdamamSource) Lookup(ctx context.Context, q NutritionQuery) SourceResult {
	if s.appID == "" || s.appKey == "" {
		return failed(FailureNotConfigured, "EDAMAM_APP_ID/EDAMAM_APP_KEY is missing")
	}
	params := url.Values{}
	params.Set("ingr", strings.TrimSpace(q.Query))
	params.Set("app_id", s.appID)
	params.Set("app_key", s.appKey)
	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/api/food-database/v2/parser?"+params.Encode(), nil)
	if err != nil {
		return failed(FailureUnavailable, "failed to create edamam parser request: %v", err)
	}

	var pr edamamParserResponse
	if r := s.doJSON(ctx, req, &pr, false); r != nil {
		return *r
	}
	if len(pr.Hints) == 0 {
		return failed(FailureNoData, "edamam: no hints for %q", q.Query)
	}
	food := pr.Hints[0].Food
	return finish(s.ID(), SourceResult{
		Nutrients:   food.Nutrients.raw(),
		ProductName: strings.TrimSpace(food.Label),
	})
}

// EdamamVisionSource sends a photo to Edamam's image endpoint. It shares
// credentials with EdamamSource but has its own id, trust score and limiter.
type EdamamVisionSource struct {
	sourceClient
	appID, appKey string
}

func NewEdamamVisionSource(baseURL, appID, appKey string, timeout time.Duration, limiter *rate.Limiter) *EdamamVisionSource {
	return &EdamamVisionSource{
		sourceClient: newSourceClient(models.SourceEdamamVision, baseURL, timeout, limiter),
		appID:        appID,
		appKey:       appKey,
	}
}

func (s *EdamamVisionSource) ID() string { return models.SourceEdamamVision }

func (s *EdamamVisionSource) Accepts(q NutritionQuery) bool { return len(q.Image) > 0 }

type edamamVisionResponse struct {
	Ingredients []struct {
		Parsed []struct {
			Food      string          `json:"food"`
			FoodID    string          `json:"foodId"`
			Nutrients edamamNutrients `json:"nutrients"`
		} `json:"parsed"`
	} `json:"ingredients"`
}

func (s *EdamamVisionSource) Lookup(ctx context.Context, q NutritionQuery) SourceResult {
	if s.appID == "" || s.appKey == "" {
		return failed(FailureNotConfigured, "EDAMAM_APP_ID/EDAMAM_APP_KEY is missing")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return failed(FailureUnavailable, "failed to build edamam vision form: %v", err)
	}
	if _, err := part.Write(q.Image); err != nil {
		return failed(FailureUnavailable, "failed to build edamam vision form: %v", err)
	}
	if err := mw.Close(); err != nil {
		return failed(FailureUnavailable, "failed to build edamam vision form: %v", err)
	}

	params := url.Values{}
	params.Set("app_id", s.appID)
	params.Set("app_key", s.appKey)
	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/api/food-database/v2/vision?"+params.Encode(), &buf)
	if err != nil {
		return failed(FailureUnavailable, "failed to create edamam vision request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var vr edamamVisionResponse
	if r := s.doJSON(ctx, req, &vr, false); r != nil {
		return *r
	}
	if len(vr.Ingredients) == 0 || len(vr.Ingredients[0].Parsed) == 0 {
		return failed(FailureNoData, "edamam_vision: nothing recognised")
	}
	p := vr.Ingredients[0].Parsed[0]
	return finish(s.ID(), SourceResult{
		Nutrients:   p.Nutrients.raw(),
		ProductName: strings.TrimSpace(p.Food),
	})
}
