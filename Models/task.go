package Models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskType string

const (
	TaskCleaning    TaskType = "CLEANING"
	TaskMaintenance TaskType = "MAINTENANCE"
	TaskRepair      TaskType = "REPAIR"
	TaskCheck       TaskType = "CHECK"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskCleaning, TaskMaintenance, TaskRepair, TaskCheck:
		return true
	}
	return false
}

// Schedulable reports whether tasks of this type are generated from a service interval.
func (t TaskType) Schedulable() bool {
	return t == TaskCleaning || t == TaskMaintenance
}

const (
	TaskPending    = "PENDING"
	TaskInProgress = "IN_PROGRESS"
	TaskCompleted  = "COMPLETED"
	TaskVerified   = "VERIFIED"
	TaskRejected   = "REJECTED"
	TaskSkipped    = "SKIPPED"
)

const (
	VerificationPending  = "PENDING"
	VerificationApproved = "APPROVED"
	VerificationRejected = "REJECTED"
)

// InitialCycle keys the first task of a device that was never serviced.
const InitialCycle = "initial"

type MaintenanceTask struct {
	gorm.Model
	EquipmentID uint     `json:"equipment_id" gorm:"uniqueIndex:idx_task_cycle,priority:1"`
	TaskType    TaskType `json:"task_type" gorm:"uniqueIndex:idx_task_cycle,priority:2"`
	CycleKey    string   `json:"cycle_key" gorm:"uniqueIndex:idx_task_cycle,priority:3"`
	DueDate     string   `json:"due_date" gorm:"index"`
	Status      string   `json:"status" gorm:"index;default:PENDING"`

	// Snapshot of the placement when the task was created or last moved.
	WorkstationID   *uint  `json:"workstation_id"`
	WorkstationName string `json:"workstation_name"`
	ZoneName        string `json:"zone_name"`

	Assignee    string                      `json:"assignee"`
	CompletedAt *time.Time                  `json:"completed_at"`
	CompletedBy string                      `json:"completed_by"`
	Photos      datatypes.JSONSlice[string] `json:"photos"`
	Notes       string                      `json:"notes"`

	LinkedIssueID *uint  `json:"linked_issue_id"`
	ReworkCount   int    `json:"rework_count"`
	SkipReason    string `json:"skip_reason,omitempty"`

	Equipment Equipment `json:"equipment,omitempty" gorm:"foreignKey:EquipmentID"`
}

// TaskSubmission is the reviewer-facing record of one completion. A rejected
// submission stays here with its photos after the task goes back to PENDING.
type TaskSubmission struct {
	ID                 uint                        `json:"id" gorm:"primaryKey"`
	TaskID             uint                        `json:"task_id" gorm:"index"`
	Photos             datatypes.JSONSlice[string] `json:"photos"`
	Notes              string                      `json:"notes"`
	SubmittedBy        string                      `json:"submitted_by"`
	SubmittedAt        time.Time                   `json:"submitted_at"`
	VerificationStatus string                      `json:"verification_status" gorm:"default:PENDING"`
	VerifierID         string                      `json:"verifier_id"`
	VerificationNote   string                      `json:"verification_note"`
	VerifiedAt         *time.Time                  `json:"verified_at"`
	PreviousServicedAt *time.Time                  `json:"previous_serviced_at"`
}

type TaskEvent struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TaskID       uint      `json:"task_id" gorm:"index"`
	Action       string    `json:"action"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	Actor        string    `json:"actor"`
	Note         string    `json:"note"`
	SubmissionID *uint     `json:"submission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskView is the read model returned by ListTasks.
type TaskView struct {
	ID              uint       `json:"id"`
	EquipmentID     uint       `json:"equipment_id"`
	EquipmentName   string     `json:"equipment_name"`
	EquipmentType   string     `json:"equipment_type"`
	TaskType        string     `json:"task_type"`
	DueDate         string     `json:"due_date"`
	Status          string     `json:"status"`
	Overdue         bool       `json:"overdue" gorm:"-"`
	WorkstationName string     `json:"workstation_name"`
	ZoneName        string     `json:"zone_name"`
	Assignee        string     `json:"assignee"`
	CompletedAt     *time.Time `json:"completed_at"`
	CompletedBy     string     `json:"completed_by"`
	LinkedIssueID   *uint      `json:"linked_issue_id"`
	ReworkCount     int        `json:"rework_count"`
}

type TaskHistory struct {
	Task        MaintenanceTask  `json:"task"`
	Submissions []TaskSubmission `json:"submissions"`
	Events      []TaskEvent      `json:"events"`
}

type EnsurePlanRequest struct {
	DateFrom string   `json:"date_from" validate:"required,date"`
	DateTo   string   `json:"date_to" validate:"required,date"`
	TaskType TaskType `json:"task_type" validate:"required,taskType"`
}

type AssignTaskRequest struct {
	Assignee *string `json:"assignee"`
}

type CompleteTaskRequest struct {
	Photos         []string    `json:"photos"`
	FailedUploads  []string    `json:"failed_uploads"`
	Notes          string      `json:"notes"`
	Issue          *IssueDraft `json:"issue"`
	IdempotencyKey string      `json:"idempotency_key"`
}

type ReviewRequest struct {
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	EquipmentID uint     `json:"equipment_id" validate:"required"`
	TaskType    TaskType `json:"task_type" validate:"required,taskType"`
	DueDate     string   `json:"due_date" validate:"omitempty,date"`
	Assignee    string   `json:"assignee"`
	Notes       string   `json:"notes"`
}
