package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bioguard/models"

	"gorm.io/gorm"
)

const defaultHistoryLimit = 10

// HistoryService is the scan store backed by gorm.
type HistoryService struct{ db *gorm.DB }

func NewHistoryService(db *gorm.DB) *HistoryService { return &HistoryService{db: db} }

// Save persists one analysis result for the user.
func (s *HistoryService) Save(ctx context.Context, userID string, r *models.ScanAnalysisResult) error {
	rec, err := models.NewScanRecord(userID, r)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	return nil
}

// ListRecent returns the user's scans, newest first. limit <= 0 means 10.
func (s *HistoryService) ListRecent(ctx context.Context, userID string, limit int) ([]*models.ScanAnalysisResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var rows []models.ScanRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.ScanAnalysisResult, 0, len(rows))
	for i := range rows {
		r, err := rows[i].Result()
		if err != nil {
			return nil, fmt.Errorf("decode scan %s: %w", rows[i].ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns one scan owned by the user.
func (s *HistoryService) Get(ctx context.Context, userID, scanID string) (*models.ScanAnalysisResult, error) {
	var rec models.ScanRecord
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", scanID, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Result()
}

// PruneOlderThan deletes scans created before cutoff and reports how many.
func (s *HistoryService) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ScanRecord{})
	return res.RowsAffected, res.Error
}
