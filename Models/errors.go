package Models

import "fmt"

// ErrorKind classifies a lifecycle failure so the HTTP boundary can map it
// to a status code without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindDependency ErrorKind = "dependency"
)

// Error is the single error type returned by the lifecycle engine.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInterval         = newError(KindValidation, "invalid_interval", "maintenance interval must be at least one day")
	ErrIneligibleEquipmentType = newError(KindValidation, "ineligible_equipment_type", "thermal service applies to PC and CONSOLE equipment only")
	ErrEvidenceRequired        = newError(KindValidation, "evidence_required", "at least one photo is required to complete a task")
	ErrReasonRequired          = newError(KindValidation, "reason_required", "a reason is required")
	ErrNotesRequired           = newError(KindValidation, "notes_required", "resolution notes are required")
	ErrContentRequired         = newError(KindValidation, "content_required", "comment content is required")
	ErrTitleRequired           = newError(KindValidation, "title_required", "issue title is required")
	ErrLinkMismatch            = newError(KindValidation, "link_mismatch", "linked task belongs to different equipment")
	ErrInvalidDateRange        = newError(KindValidation, "invalid_date_range", "date_from must not be after date_to")
	ErrInvalidDate             = newError(KindValidation, "invalid_date", "dates must use the YYYY-MM-DD format")
	ErrInvalidSeverity         = newError(KindValidation, "invalid_severity", "severity must be one of LOW, MEDIUM, HIGH, CRITICAL")
	ErrInvalidStatus           = newError(KindValidation, "invalid_status", "unknown status")
	ErrInvalidTaskType         = newError(KindValidation, "invalid_task_type", "task_type must be one of CLEANING, MAINTENANCE, REPAIR, CHECK")
	ErrUnschedulableType       = newError(KindValidation, "unschedulable_task_type", "only CLEANING and MAINTENANCE tasks are generated from intervals")
	ErrUnknownTimeZone         = newError(KindValidation, "unknown_time_zone", "unknown IANA time zone")

	ErrNoOpMove           = newError(KindConflict, "no_op_move", "equipment is already at the target placement")
	ErrEquipmentInactive  = newError(KindConflict, "equipment_inactive", "equipment is deactivated")
	ErrZoneNotEmpty       = newError(KindConflict, "zone_not_empty", "zone still has workstations")
	ErrDuplicatePlanEntry = newError(KindConflict, "duplicate_plan_entry", "a task already exists for this cycle")
	ErrWorkInProgress     = newError(KindConflict, "work_in_progress", "equipment has a task in progress")

	ErrEquipmentNotFound   = newError(KindNotFound, "equipment_not_found", "equipment not found")
	ErrWorkstationNotFound = newError(KindNotFound, "workstation_not_found", "workstation not found")
	ErrTargetNotFound      = newError(KindNotFound, "target_not_found", "target workstation not found")
	ErrZoneNotFound        = newError(KindNotFound, "zone_not_found", "zone not found")
	ErrTaskNotFound        = newError(KindNotFound, "task_not_found", "task not found")
	ErrIssueNotFound       = newError(KindNotFound, "issue_not_found", "issue not found")

	// ErrInvalidTransition matches every error built by InvalidTransition.
	ErrInvalidTransition = newError(KindConflict, "invalid_transition", "invalid transition")
)

// InvalidTransition reports an action attempted from a state that does not allow it.
func InvalidTransition(current, attempted string) *Error {
	return newError(KindConflict, "invalid_transition",
		fmt.Sprintf("cannot %s from status %s", attempted, current))
}

// DependencyFailure wraps a failure of an external collaborator (push, upload, mail).
func DependencyFailure(collaborator string, err error) *Error {
	return newError(KindDependency, "dependency_failure",
		fmt.Sprintf("%s: %v", collaborator, err))
}
