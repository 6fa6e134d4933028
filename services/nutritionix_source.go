package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bioguard/models"

	"golang.org/x/time/rate"
)

// NutritionixSource resolves natural-language (often voice-derived) food names.
type NutritionixSource struct {
	sourceClient
	appID, apiKey string
}

func NewNutritionixSource(baseURL, appID, apiKey string, timeout time.Duration, limiter *rate.Limiter) *NutritionixSource {
	return &NutritionixSource{
		sourceClient: newSourceClient(models.SourceNutritionix, baseURL, timeout, limiter),
		appID:        appID,
		apiKey:       apiKey,
	}
}

func (s *NutritionixSource) ID() string { return models.SourceNutritionix }

func (s *NutritionixSource) Accepts(q NutritionQuery) bool {
	return strings.TrimSpace(q.Query) != ""
}

type nutritionixResponse struct {
	Foods []struct {
		FoodName            string    `json:"food_name"`
		NfCalories          flexFloat `json:"nf_calories"`
		NfTotalCarbohydrate flexFloat `json:"nf_total_carbohydrate"`
		NfTotalFat          flexFloat `json:"nf_total_fat"`
		NfProtein           flexFloat `json:"nf_protein"`
		NfSugars            flexFloat `json:"nf_sugars"`
		NfSodium            flexFloat `json:"nf_sodium"`
	} `json:"foods"`
}

func (s *NutritionixSource) Lookup(ctx context.Context, q NutritionQuery) SourceResult {
	if s.appID == "" || s.apiKey == "" {
		return failed(FailureNotConfigured, "NUTRITIONIX_APP_ID/NUTRITIONIX_API_KEY is missing")
	}
	b, err := json.Marshal(map[string]string{"query": strings.TrimSpace(q.Query)})
	if err != nil {
		return failed(FailureUnavailable, "failed to marshal nutritionix payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/v2/natural/nutrients", bytes.NewReader(b))
	if err != nil {
		return failed(FailureUnavailable, "failed to create nutritionix request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-app-id", s.appID)
	req.Header.Set("x-app-key", s.apiKey)

	var nr nutritionixResponse
	if r := s.doJSON(ctx, req, &nr, false); r != nil {
		return *r
	}
	if len(nr.Foods) == 0 {
		return failed(FailureNoData, "nutritionix: no foods for %q", q.Query)
	}
	item := nr.Foods[0]
	return finish(s.ID(), SourceResult{
		Nutrients: models.NutrientRaw{
			Calories:      item.NfCalories.ptr(),
			Carbohydrates: item.NfTotalCarbohydrate.ptr(),
			Fat:           item.NfTotalFat.ptr(),
			Protein:       item.NfProtein.ptr(),
			Sugars:        item.NfSugars.ptr(),
			Sodium:        item.NfSodium.ptr(),
		},
		ProductName: strings.TrimSpace(item.FoodName),
	})
}
