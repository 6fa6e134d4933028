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

// FoodDataSource queries USDA FoodData Central by free text.
type FoodDataSource struct {
	sourceClient
	apiKey string
}

func NewFoodDataSource(baseURL, apiKey string, timeout time.Duration, limiter *rate.Limiter) *FoodDataSource {
	return &FoodDataSource{
		sourceClient: newSourceClient(models.SourceFoodData, baseURL, timeout, limiter),
		apiKey:       apiKey,
	}
}

func (s *FoodDataSource) ID() string { return models.SourceFoodData }

func (s *FoodDataSource) Accepts(q NutritionQuery) bool {
	return strings.TrimSpace(q.Query) != ""
}

type fdcNutrient struct {
	NutrientName string    `json:"nutrientName"`
	Name         string    `json:"name"`
	UnitName     string    `json:"unitName"`
	Value        flexFloat `json:"value"`
	Amount       flexFloat `json:"amount"`
}

type fdcSearchResponse struct {
	Foods []struct {
		Description   string        `json:"description"`
		Ingredients   string        `json:"ingredients"`
		FoodNutrients []fdcNutrient `json:"foodNutrients"`
	} `json:"foods"`
}

func (s *FoodDataSource) Lookup(ctx context.Context, q NutritionQuery) SourceResult {
	if s.apiKey == "" {
		return failed(FailureNotConfigured, "USDA_API_KEY is missing")
	}
	params := url.Values{}
	params.Set("query", strings.TrimSpace(q.Query))
	params.Set("pageSize", "1")
	params.Set("api_key", s.apiKey)
	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/fdc/v1/foods/search?"+params.Encode(), nil)
	if err != nil {
		return failed(FailureUnavailable, "failed to create fooddata request: %v", err)
	}

	var sr fdcSearchResponse
	if r := s.doJSON(ctx, req, &sr, false); r != nil {
		return *r
	}
	if len(sr.Foods) == 0 {
		return failed(FailureNoData, "fooddata: no foods for %q", q.Query)
	}

	food := sr.Foods[0]
	var raw models.NutrientRaw
	for _, n := range food.FoodNutrients {
		name := n.NutrientName
		if name == "" {
			name = n.Name
		}
		val := n.Value.ptr()
		if val == nil {
			val = n.Amount.ptr()
		}
		if val == nil {
			continue
		}
		switch name {
		case "Energy":
			// Energy is reported twice, in KCAL and kJ
			if strings.EqualFold(n.UnitName, "KCAL") && raw.Calories == nil {
				raw.Calories = val
			}
		case "Carbohydrate, by difference":
			raw.Carbohydrates = val
		case "Total lipid (fat)":
			raw.Fat = val
		case "Protein":
			raw.Protein = val
		case "Sugars, total including NLEA", "Total Sugars", "Sugars, total":
			if raw.Sugars == nil {
				raw.Sugars = val
			}
		case "Sodium, Na":
			raw.Sodium = val
		}
	}

	return finish(s.ID(), SourceResult{
		Nutrients:   raw,
		ProductName: strings.TrimSpace(food.Description),
		Ingredients: splitIngredients(food.Ingredients),
	})
}
