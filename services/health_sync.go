package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bioguard/models"
)

// HealthSyncService forwards resolved nutrients to an external health record
// webhook.
type HealthSyncService struct {
	url    string
	client *http.Client
}

func NewHealthSyncService(url string, timeout time.Duration) *HealthSyncService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthSyncService{url: url, client: &http.Client{Timeout: timeout}}
}

type healthSyncPayload struct {
	UserID     string              `json:"user_id"`
	ScanID     string              `json:"scan_id"`
	Product    string              `json:"product"`
	Barcode    string              `json:"barcode,omitempty"`
	Nutrients  *models.NutrientRaw `json:"nutrients"`
	DataSource *string             `json:"data_source"`
	Verdict    models.Verdict      `json:"verdict"`
	RecordedAt time.Time           `json:"recorded_at"`
}

func (s *HealthSyncService) Sync(ctx context.Context, userID string, r *models.ScanAnalysisResult) error {
	body, err := json.Marshal(healthSyncPayload{
		UserID:     userID,
		ScanID:     r.ID,
		Product:    r.Product,
		Barcode:    r.Barcode,
		Nutrients:  r.Nutrients,
		DataSource: r.DataSource,
		Verdict:    r.Verdict,
		RecordedAt: r.CreatedAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health sync request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("health sync returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
