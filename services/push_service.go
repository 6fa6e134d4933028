package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bioguard/models"
	"bioguard/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"gorm.io/gorm"
)

// SNSAPI is the part of the SNS client the push service uses.
type SNSAPI interface {
	CreatePlatformEndpoint(ctx context.Context, in *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

type PushService struct {
	db          *gorm.DB
	sns         SNSAPI
	platformArn string
	log         *utils.Logger
}

func NewPushService(ctx context.Context, db *gorm.DB, region, platformArn string, log *utils.Logger) (*PushService, error) {
	if region == "" {
		return nil, errors.New("AWS_REGION is missing")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewPushServiceWithClient(db, awssns.NewFromConfig(cfg), platformArn, log), nil
}

func NewPushServiceWithClient(db *gorm.DB, client SNSAPI, platformArn string, log *utils.Logger) *PushService {
	if log == nil {
		log = utils.NopLogger()
	}
	return &PushService{db: db, sns: client, platformArn: platformArn, log: log.With("service", "push")}
}

type RegisterDeviceReq struct {
	Platform string `json:"platform" binding:"required"` // "android" | "ios"
	Token    string `json:"token" binding:"required"`
}

func tokenHash(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}

func (p *PushService) platformArnFor(platform string) (string, error) {
	switch strings.ToLower(platform) {
	case "android", "ios":
		if p.platformArn == "" {
			return "", errors.New("SNS_FCM_ARN not set")
		}
		return p.platformArn, nil
	default:
		return "", fmt.Errorf("unknown platform %q", platform)
	}
}

// RegisterDevice creates (or refreshes) the SNS endpoint for a device token.
func (p *PushService) RegisterDevice(ctx context.Context, userID, platform, token string) (*models.UserDevice, error) {
	appArn, err := p.platformArnFor(platform)
	if err != nil {
		return nil, err
	}
	out, err := p.sns.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(appArn),
		Token:                  aws.String(token),
	})
	if err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}

	hash := tokenHash(token)
	var dev models.UserDevice
	err = p.db.WithContext(ctx).Where("user_id = ? AND token_hash = ?", userID, hash).First(&dev).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	dev.UserID = userID
	dev.TokenHash = hash
	dev.Platform = strings.ToLower(platform)
	dev.EndpointARN = aws.ToString(out.EndpointArn)
	dev.Enabled = true
	dev.UpdatedAt = time.Now()
	if err := p.db.WithContext(ctx).Save(&dev).Error; err != nil {
		return nil, fmt.Errorf("save device: %w", err)
	}
	return &dev, nil
}

// SetNotifications enables or disables push for all of the user's devices.
func (p *PushService) SetNotifications(ctx context.Context, userID string, enabled bool) (int64, error) {
	res := p.db.WithContext(ctx).Model(&models.UserDevice{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// PushToUser publishes to every enabled device. Per-device failures are
// logged and the last one returned.
func (p *PushService) PushToUser(ctx context.Context, userID, title, body string, data map[string]string) error {
	var devices []models.UserDevice
	if err := p.db.WithContext(ctx).Where("user_id = ? AND enabled = ?", userID, true).Find(&devices).Error; err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}

	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{"title": title, "body": body},
		"data":         data,
	})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]string{"default": body, "GCM": string(gcm)})
	if err != nil {
		return err
	}

	var lastErr error
	for _, d := range devices {
		if _, err := p.sns.Publish(ctx, &awssns.PublishInput{
			MessageStructure: aws.String("json"),
			Message:          aws.String(string(raw)),
			TargetArn:        aws.String(d.EndpointARN),
		}); err != nil {
			p.log.Warn("push publish failed", "user_id", userID, "device", d.ID, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
