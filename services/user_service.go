package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bioguard/models"

	"gorm.io/gorm"
)

// ProfileInput is a partial update; nil fields are left untouched.
type ProfileInput struct {
	FullName          *string   `json:"full_name"`
	Email             *string   `json:"email"`
	Allergies         *[]string `json:"allergies"`
	MedicalConditions *[]string `json:"medical_conditions"`
	PreferredSources  *[]string `json:"preferred_sources"`
	PreferredVision   *string   `json:"preferred_vision"`
	Region            *string   `json:"region"`
	HealthSync        *bool     `json:"health_sync"`
}

type UserService struct{ db *gorm.DB }

func NewUserService(db *gorm.DB) *UserService { return &UserService{db: db} }

func (s *UserService) find(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetHealthProfile returns the read-only view used by the scan pipeline.
func (s *UserService) GetHealthProfile(ctx context.Context, userID string) (*models.HealthProfile, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// UpsertProfile creates the user on first write and applies the non-nil fields.
func (s *UserService) UpsertProfile(ctx context.Context, userID string, in ProfileInput) (*models.HealthProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if in.PreferredSources != nil {
		for _, id := range *in.PreferredSources {
			if !models.IsKnownSource(strings.ToLower(strings.TrimSpace(id))) {
				return nil, fmt.Errorf("unknown nutrition source %q", id)
			}
		}
	}

	user, err := s.find(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		user = &models.User{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Allergies != nil {
		user.Allergies = models.JoinList(*in.Allergies)
	}
	if in.MedicalConditions != nil {
		user.MedicalConditions = models.JoinList(*in.MedicalConditions)
	}
	if in.PreferredSources != nil {
		ids := make([]string, 0, len(*in.PreferredSources))
		for _, id := range *in.PreferredSources {
			ids = append(ids, strings.ToLower(strings.TrimSpace(id)))
		}
		user.PreferredSources = models.JoinList(ids)
	}
	if in.PreferredVision != nil {
		user.PreferredVision = strings.ToLower(strings.TrimSpace(*in.PreferredVision))
	}
	if in.Region != nil {
		user.Region = strings.ToLower(strings.TrimSpace(*in.Region))
	}
	if in.HealthSync != nil {
		user.HealthSync = *in.HealthSync
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return user.Profile(), nil
}
