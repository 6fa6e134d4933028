package services

import (
	"context"
	"fmt"
	"time"

	"bioguard/models"
	"bioguard/utils"

	"gorm.io/gorm"
)

type AlertBroadcaster interface {
	Broadcast(userID string, payload any)
}

type AlertPusher interface {
	PushToUser(ctx context.Context, userID, title, body string, data map[string]string) error
}

// AlertBus records an Alert for risky scans and fans it out over the
// websocket hub and push. hub and push may be nil.
type AlertBus struct {
	db   *gorm.DB
	hub  AlertBroadcaster
	push AlertPusher
	log  *utils.Logger
}

func NewAlertBus(db *gorm.DB, hub AlertBroadcaster, push AlertPusher, log *utils.Logger) *AlertBus {
	if log == nil {
		log = utils.NopLogger()
	}
	return &AlertBus{db: db, hub: hub, push: push, log: log.With("service", "alert_bus")}
}

// alertFor decides whether a scan deserves an alert: a DANGER verdict or at
// least one high-severity conflict.
func alertFor(r *models.ScanAnalysisResult) (typ, message string, ok bool) {
	var high []models.ConflictMatch
	for _, m := range r.HealthConflicts {
		if m.Severity == string(models.SeverityHigh) {
			high = append(high, m)
		}
	}
	if r.Verdict != models.VerdictDanger && len(high) == 0 {
		return "", "", false
	}
	typ = "warning"
	if r.Verdict == models.VerdictDanger {
		typ = "danger"
	}
	switch {
	case len(high) == 1:
		message = fmt.Sprintf("%s: %s may affect %s", r.Product, high[0].Ingredient, high[0].HealthCondition)
	case len(high) > 1:
		message = fmt.Sprintf("%s: %s may affect %s (+%d more)", r.Product, high[0].Ingredient, high[0].HealthCondition, len(high)-1)
	default:
		message = fmt.Sprintf("%s scored %d/100 (%s)", r.Product, r.HealthScore, r.Verdict)
	}
	return typ, message, true
}

// NotifyScan stores and fans out the alert for a scan, if any. Only the
// database write can fail the call.
func (b *AlertBus) NotifyScan(ctx context.Context, userID string, r *models.ScanAnalysisResult) error {
	typ, message, ok := alertFor(r)
	if !ok {
		return nil
	}
	a := &models.Alert{UserID: userID, ScanID: r.ID, Type: typ, Message: message, CreatedAt: time.Now()}
	if err := b.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("save alert: %w", err)
	}

	if b.hub != nil {
		b.hub.Broadcast(userID, map[string]any{
			"kind":  "alert.created",
			"alert": a,
		})
	}
	if b.push != nil {
		if err := b.push.PushToUser(ctx, userID, "BioGuard alert", message, map[string]string{
			"type": typ, "alertId": fmt.Sprintf("%d", a.ID), "scanId": r.ID,
		}); err != nil {
			b.log.Warn("push failed", "user_id", userID, "alert_id", a.ID, "error", err)
		}
	}
	return nil
}

// Recent lists the user's alerts, newest first.
func (b *AlertBus) Recent(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Alert
	err := b.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}
