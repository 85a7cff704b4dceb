package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Urgent severities page staff through push notifications.
func (s Severity) Urgent() bool {
	return s == SeverityHigh || s == SeverityCritical
}

const (
	IssueOpen       = "OPEN"
	IssueInProgress = "IN_PROGRESS"
	IssueResolved   = "RESOLVED"
	IssueClosed     = "CLOSED"
)

func ValidIssueStatus(s string) bool {
	switch s {
	case IssueOpen, IssueInProgress, IssueResolved, IssueClosed:
		return true
	}
	return false
}

type Issue struct {
	gorm.Model
	EquipmentID      uint                        `json:"equipment_id" gorm:"index"`
	WorkstationName  string                      `json:"workstation_name"`
	ZoneName         string                      `json:"zone_name"`
	ReporterID       string                      `json:"reporter_id"`
	Title            string                      `json:"title"`
	Description      string                      `json:"description"`
	Severity         Severity                    `json:"severity"`
	Status           string                      `json:"status" gorm:"index;default:OPEN"`
	Assignee         *string                     `json:"assignee"`
	ResolutionNotes  string                      `json:"resolution_notes"`
	ResolutionPhotos datatypes.JSONSlice[string] `json:"resolution_photos"`
	ResolvedAt       *time.Time                  `json:"resolved_at"`
	ClosedAt         *time.Time                  `json:"closed_at"`
	LinkedTaskID     *uint                       `json:"linked_task_id" gorm:"index"`
}

// IssueComment belongs to an Issue. System messages have no author and are never edited.
type IssueComment struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	IssueID         uint      `json:"issue_id" gorm:"index"`
	AuthorID        *string   `json:"author_id"`
	Content         string    `json:"content"`
	IsSystemMessage bool      `json:"is_system_message"`
	CreatedAt       time.Time `json:"created_at"`
}

func (IssueComment) TableName() string {
	return "issue_comments"
}

// IssueDraft is the optional incident attached to a completion or a move.
type IssueDraft struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity" validate:"required,severity"`
}

type OpenIssueRequest struct {
	EquipmentID    uint     `json:"equipment_id" validate:"required"`
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity" validate:"required,severity"`
	LinkedTaskID   *uint    `json:"linked_task_id"`
	IdempotencyKey string   `json:"idempotency_key"`
}

type IssueStatusRequest struct {
	Status         string `json:"status" validate:"required,issueStatus"`
	IdempotencyKey string `json:"idempotency_key"`
}

type IssueSeverityRequest struct {
	Severity Severity `json:"severity" validate:"required,severity"`
}

type ResolveIssueRequest struct {
	Notes         string   `json:"notes"`
	Photos        []string `json:"photos"`
	FailedUploads []string `json:"failed_uploads"`
}

type CommentRequest struct {
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key"`
}
