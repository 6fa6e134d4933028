package services

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bioguard/models"

	"golang.org/x/time/rate"
)

// OpenFoodFactsSource looks products up by barcode. No credentials needed.
type OpenFoodFactsSource struct {
	sourceClient
	userAgent string
}

func NewOpenFoodFactsSource(baseURL string, timeout time.Duration, limiter *rate.Limiter) *OpenFoodFactsSource {
	return &OpenFoodFactsSource{
		sourceClient: newSourceClient(models.SourceOpenFoodFacts, baseURL, timeout, limiter),
		userAgent:    "BioGuard/1.0 (scan backend)",
	}
}

func (s *OpenFoodFactsSource) ID() string { return models.SourceOpenFoodFacts }

func (s *OpenFoodFactsSource) Accepts(q NutritionQuery) bool {
	return strings.TrimSpace(q.Barcode) != ""
}

type offResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName     string `json:"product_name"`
		IngredientsText string `json:"ingredients_text"`
		Nutriments      struct {
			EnergyKcal100g    flexFloat `json:"energy-kcal_100g"`
			Carbohydrates100g flexFloat `json:"carbohydrates_100g"`
			Fat100g           flexFloat `json:"fat_100g"`
			Proteins100g      flexFloat `json:"proteins_100g"`
			Sugars100g        flexFloat `json:"sugars_100g"`
			Sodium100g        flexFloat `json:"sodium_100g"`
		} `json:"nutriments"`
	} `json:"product"`
}

func (s *OpenFoodFactsSource) Lookup(ctx context.Context, q NutritionQuery) SourceResult {
	code := strings.TrimSpace(q.Barcode)
	u := s.baseURL + "/api/v2/product/" + url.PathEscape(code) + ".json"
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return failed(FailureUnavailable, "failed to create openfoodfacts request: %v", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	var pr offResponse
	if r := s.doJSON(ctx, req, &pr, true); r != nil {
		return *r
	}
	if pr.Status == 0 {
		return failed(FailureNoData, "openfoodfacts: product %s not found", code)
	}

	n := pr.Product.Nutriments
	return finish(s.ID(), SourceResult{
		Nutrients: models.NutrientRaw{
			Calories:      n.EnergyKcal100g.ptr(),
			Carbohydrates: n.Carbohydrates100g.ptr(),
			Fat:           n.Fat100g.ptr(),
			Protein:       n.Proteins100g.ptr(),
			Sugars:        n.Sugars100g.ptr(),
			Sodium:        scaled(n.Sodium100g.ptr(), 1000), // g -> mg
		},
		ProductName: strings.TrimSpace(pr.Product.ProductName),
		Ingredients: splitIngredients(pr.Product.IngredientsText),
	})
}
