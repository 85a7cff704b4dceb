package Models

import "gorm.io/gorm"

// DeviceToken is a staff device registered for push notifications.
type DeviceToken struct {
	gorm.Model
	EmployeeID string `json:"employee_id" gorm:"index"`
	Value      string `json:"value" gorm:"uniqueIndex"`
}

type UpdateTokenRequest struct {
	Value string `json:"value" validate:"required"`
}

// ActionRequest is the idempotency ledger. A retried request with the same
// (Action, RequestKey) replays EntityID instead of repeating the effect.
type ActionRequest struct {
	ID         uint   `gorm:"primaryKey"`
	Action     string `gorm:"uniqueIndex:idx_action_request,priority:1"`
	RequestKey string `gorm:"uniqueIndex:idx_action_request,priority:2"`
	EntityID   uint
	CreatedAt  int64 `gorm:"autoCreateTime"`
}

type EmailConfig struct {
	SMTPServer   string
	SMTPPort     int
	Username     string
	Password     string
	FromEmail    string
	FromName     string
	TLSEnabled   bool
	SkipTLSCheck bool
}

type EmailMessage struct {
	To      []string
	CC      []string
	Subject string
	Body    string
	IsHTML  bool
}
