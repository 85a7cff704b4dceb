// Package Notifications delivers lifecycle notifications to staff phones
// through Firebase Cloud Messaging.
package Notifications

import (
	"context"
	"fmt"
	"strings"

	"Pitstop/Lifecycle"
	"Pitstop/Models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// multicastLimit is the FCM cap on tokens per multicast request.
const multicastLimit = 500

type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM sends to every registered device of the recipients.
type FCM struct {
	db     *gorm.DB
	client multicaster
	log    *zap.Logger
}

var _ Lifecycle.Notifier = (*FCM)(nil)

// NewFCM initializes the Firebase app from a service account file.
func NewFCM(ctx context.Context, db *gorm.DB, credentialsFile string, log *zap.Logger) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	log.Info("firebase messaging initialized")
	return &FCM{db: db, client: client, log: log}, nil
}

func (f *FCM) tokens(ctx context.Context, recipients []string) ([]string, error) {
	q := f.db.WithContext(ctx).Model(&Models.DeviceToken{})
	if len(recipients) > 0 {
		q = q.Where("employee_id IN ?", recipients)
	}
	var tokens []string
	if err := q.Order("id").Pluck("value", &tokens).Error; err != nil {
		return nil, fmt.Errorf("load device tokens: %w", err)
	}
	return tokens, nil
}

func (f *FCM) Notify(ctx context.Context, n Lifecycle.Notification) error {
	tokens, err := f.tokens(ctx, n.Recipients)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		f.log.Debug("no devices registered for notification", zap.Strings("recipients", n.Recipients))
		return nil
	}

	var stale []string
	failed := 0
	for start := 0; start < len(tokens); start += multicastLimit {
		end := min(start+multicastLimit, len(tokens))
		batch := tokens[start:end]
		resp, err := f.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Data:   n.Data,
			Notification: &messaging.Notification{
				Title: n.Title,
				Body:  n.Body,
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
			},
		})
		if err != nil {
			return fmt.Errorf("send multicast: %w", err)
		}
		for i, r := range resp.Responses {
			if r.Success {
				continue
			}
			failed++
			if messaging.IsUnregistered(r.Error) {
				stale = append(stale, batch[i])
			}
		}
	}

	if len(stale) > 0 {
		if err := f.db.WithContext(ctx).Unscoped().Where("value IN ?", stale).Delete(&Models.DeviceToken{}).Error; err != nil {
			f.log.Warn("could not prune stale device tokens", zap.Error(err))
		}
	}
	f.log.Info("notification sent",
		zap.String("title", n.Title),
		zap.Int("devices", len(tokens)),
		zap.Int("failed", failed),
		zap.Int("pruned", len(stale)))
	if failed == len(tokens) {
		return fmt.Errorf("all %d deliveries failed", failed)
	}
	return nil
}

// RegisterToken binds a device token to an employee. A token that moves to
// another phone user is rebound.
func RegisterToken(ctx context.Context, db *gorm.DB, employeeID, value string) (*Models.DeviceToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty device token")
	}
	token := Models.DeviceToken{EmployeeID: employeeID, Value: value}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "value"}},
		DoUpdates: clause.AssignmentColumns([]string{"employee_id", "updated_at"}),
	}).Create(&token).Error
	if err != nil {
		return nil, fmt.Errorf("register device token: %w", err)
	}
	return &token, nil
}
