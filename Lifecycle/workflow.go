package Lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Pitstop/Models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CompleteInput struct {
	Photos         []string
	FailedUploads  []string
	Notes          string
	Issue          *Models.IssueDraft
	IdempotencyKey string
}

type CompleteResult struct {
	Task       Models.MaintenanceTask `json:"task"`
	Submission Models.TaskSubmission  `json:"submission"`
	Issue      *Models.Issue          `json:"issue,omitempty"`
	Replayed   bool                   `json:"replayed"`
}

type CreateTaskInput struct {
	EquipmentID uint
	TaskType    Models.TaskType
	DueDate     string
	Assignee    string
	Notes       string
}

func cleanPhotos(urls []string) datatypes.JSONSlice[string] {
	seen := make(map[string]bool, len(urls))
	out := datatypes.JSONSlice[string]{}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func lockTask(tx *gorm.DB, taskID uint) (*Models.MaintenanceTask, error) {
	var task Models.MaintenanceTask
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, taskID).Error; err != nil {
		return nil, notFound(err, Models.ErrTaskNotFound)
	}
	return &task, nil
}

func guard(task *Models.MaintenanceTask, action string) error {
	if !ValidTaskTransition(action, task.Status) {
		return Models.InvalidTransition(task.Status, action)
	}
	return nil
}

func (e *Engine) event(tx *gorm.DB, taskID uint, action, from, to, actor, note string, submissionID *uint) error {
	ev := Models.TaskEvent{
		TaskID:       taskID,
		Action:       action,
		FromStatus:   from,
		ToStatus:     to,
		Actor:        actor,
		Note:         note,
		SubmissionID: submissionID,
		CreatedAt:    e.Now(),
	}
	if err := tx.Create(&ev).Error; err != nil {
		return fmt.Errorf("write task event: %w", err)
	}
	return nil
}

// serviceColumn names the equipment timestamp a completed task of this type
// advances. REPAIR and CHECK tasks do not touch the service schedule.
func serviceColumn(eq *Models.Equipment, taskType Models.TaskType) (string, *time.Time) {
	switch taskType {
	case Models.TaskCleaning:
		return "last_cleaned_at", eq.LastCleanedAt
	case Models.TaskMaintenance:
		if eq.Type.SupportsThermalService() {
			return "thermal_changed_at", eq.ThermalChangedAt
		}
	}
	return "", nil
}

// restoreService undoes the timestamp written by a completion that is being
// discarded, unless a later completion has already moved it on.
func restoreService(tx *gorm.DB, task *Models.MaintenanceTask, sub *Models.TaskSubmission) error {
	var eq Models.Equipment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&eq, task.EquipmentID).Error; err != nil {
		return notFound(err, Models.ErrEquipmentNotFound)
	}
	column, current := serviceColumn(&eq, task.TaskType)
	if column == "" || current == nil || task.CompletedAt == nil || !current.Equal(*task.CompletedAt) {
		return nil
	}
	return tx.Model(&Models.Equipment{}).Where("id = ?", eq.ID).Update(column, sub.PreviousServicedAt).Error
}

// dropLaterCycles removes untouched pending tasks planned after task's cycle.
// They were scheduled from a completion that is being undone.
func dropLaterCycles(tx *gorm.DB, task *Models.MaintenanceTask) (int, error) {
	if !task.TaskType.Schedulable() {
		return 0, nil
	}
	var later []Models.MaintenanceTask
	err := tx.Where("equipment_id = ? AND task_type = ? AND id <> ? AND status = ? AND rework_count = 0 AND due_date > ?",
		task.EquipmentID, task.TaskType, task.ID, Models.TaskPending, task.DueDate).
		Find(&later).Error
	if err != nil {
		return 0, fmt.Errorf("find later cycles: %w", err)
	}
	for i := range later {
		if err := tx.Where("task_id = ?", later[i].ID).Delete(&Models.TaskEvent{}).Error; err != nil {
			return 0, err
		}
		if err := tx.Model(&Models.Issue{}).Where("linked_task_id = ?", later[i].ID).
			Update("linked_task_id", nil).Error; err != nil {
			return 0, err
		}
		if err := tx.Unscoped().Delete(&later[i]).Error; err != nil {
			return 0, err
		}
	}
	return len(later), nil
}

func latestSubmission(tx *gorm.DB, taskID uint, status string) (*Models.TaskSubmission, error) {
	var sub Models.TaskSubmission
	res := tx.Where("task_id = ? AND verification_status = ?", taskID, status).Order("id DESC").Limit(1).Find(&sub)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (e *Engine) GetTask(ctx context.Context, taskID uint) (*Models.MaintenanceTask, error) {
	var task Models.MaintenanceTask
	if err := e.db(ctx).Preload("Equipment").First(&task, taskID).Error; err != nil {
		return nil, notFound(err, Models.ErrTaskNotFound)
	}
	return &task, nil
}

// CreateTask adds a one-off task, typically REPAIR or CHECK, outside the interval plan.
func (e *Engine) CreateTask(ctx context.Context, in CreateTaskInput, actor string) (*Models.MaintenanceTask, error) {
	if !in.TaskType.Valid() {
		return nil, Models.ErrInvalidTaskType
	}
	if in.DueDate == "" {
		in.DueDate = e.Today()
	}
	if err := validateDate(in.DueDate); err != nil {
		return nil, err
	}

	task := &Models.MaintenanceTask{}
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var eq Models.Equipment
		if err := tx.First(&eq, in.EquipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}
		if !eq.Active {
			return Models.ErrEquipmentInactive
		}
		task.EquipmentID = eq.ID
		task.TaskType = in.TaskType
		task.CycleKey = "adhoc-" + uuid.NewString()
		task.DueDate = in.DueDate
		task.Status = Models.TaskPending
		task.Assignee = strings.TrimSpace(in.Assignee)
		task.Notes = in.Notes
		task.WorkstationID = eq.WorkstationID
		if eq.WorkstationID != nil {
			ws, err := loadWorkstation(tx, *eq.WorkstationID)
			if err != nil {
				return err
			}
			task.WorkstationName = ws.Name
			task.ZoneName = ws.Zone.Name
			if task.Assignee == "" {
				task.Assignee = ws.ResponsibleParty
			}
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return e.event(tx, task.ID, "create", "", Models.TaskPending, actor, string(in.TaskType), nil)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// AssignTask hands an open task to an employee, the shared pool, or nobody.
func (e *Engine) AssignTask(ctx context.Context, taskID uint, party *string, actor string) (*Models.MaintenanceTask, error) {
	value := partyValue(party)
	var task *Models.MaintenanceTask
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := guard(task, "assign"); err != nil {
			return err
		}
		if task.Assignee == value {
			return nil
		}
		note := fmt.Sprintf("%s -> %s", task.Assignee, value)
		if err := tx.Model(task).Update("assignee", value).Error; err != nil {
			return err
		}
		task.Assignee = value
		return e.event(tx, task.ID, "assign", task.Status, task.Status, actor, note, nil)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (e *Engine) StartTask(ctx context.Context, taskID uint, actor string) (*Models.MaintenanceTask, error) {
	var task *Models.MaintenanceTask
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := guard(task, "start"); err != nil {
			return err
		}
		updates := map[string]interface{}{"status": Models.TaskInProgress}
		if task.Assignee == "" || task.Assignee == e.sharedPoolID {
			updates["assignee"] = actor
			task.Assignee = actor
		}
		if err := tx.Model(task).Updates(updates).Error; err != nil {
			return err
		}
		task.Status = Models.TaskInProgress
		return e.event(tx, task.ID, "start", Models.TaskPending, Models.TaskInProgress, actor, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask records a completion with photo evidence and advances the
// device's service timestamp. The optional issue is opened in the same
// transaction and linked both ways. A repeated idempotency key returns the
// first result unchanged.
func (e *Engine) CompleteTask(ctx context.Context, taskID uint, in CompleteInput, actor string) (*CompleteResult, error) {
	photos := cleanPhotos(in.Photos)
	e.logFailedUploads("complete_task", taskID, in.FailedUploads)
	if len(photos) == 0 {
		return nil, Models.ErrEvidenceRequired
	}
	if in.Issue != nil {
		if err := validateDraft(in.Issue); err != nil {
			return nil, err
		}
	}

	result := &CompleteResult{}
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		action := taskAction("complete", taskID)
		replayID, fresh, err := claimRequest(tx, action, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if !fresh {
			result.Replayed = true
			if err := tx.First(&result.Task, taskID).Error; err != nil {
				return notFound(err, Models.ErrTaskNotFound)
			}
			return tx.First(&result.Submission, replayID).Error
		}

		task, err := lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := guard(task, "complete"); err != nil {
			return err
		}

		var eq Models.Equipment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&eq, task.EquipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}

		now := e.Now()
		column, current := serviceColumn(&eq, task.TaskType)
		var previous *time.Time
		if current != nil {
			p := *current
			previous = &p
		}
		if column != "" {
			if err := tx.Model(&Models.Equipment{}).Where("id = ?", eq.ID).Update(column, now).Error; err != nil {
				return fmt.Errorf("advance service timestamp: %w", err)
			}
		}

		from := task.Status
		task.Status = Models.TaskCompleted
		task.CompletedAt = &now
		task.CompletedBy = actor
		task.Photos = photos
		task.Notes = in.Notes
		if err := tx.Model(task).Select("status", "completed_at", "completed_by", "photos", "notes").
			Updates(task).Error; err != nil {
			return fmt.Errorf("complete task: %w", err)
		}

		sub := Models.TaskSubmission{
			TaskID:             task.ID,
			Photos:             photos,
			Notes:              in.Notes,
			SubmittedBy:        actor,
			SubmittedAt:        now,
			VerificationStatus: Models.VerificationPending,
			PreviousServicedAt: previous,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("record submission: %w", err)
		}
		if err := e.event(tx, task.ID, "complete", from, Models.TaskCompleted, actor, "", &sub.ID); err != nil {
			return err
		}

		if in.Issue != nil {
			var ws *Models.Workstation
			if eq.WorkstationID != nil {
				if ws, err = loadWorkstation(tx, *eq.WorkstationID); err != nil {
					return err
				}
			}
			taskRef := task.ID
			issue, err := e.openIssueTx(tx, &eq, ws, issueFields{
				Title:        in.Issue.Title,
				Description:  in.Issue.Description,
				Severity:     in.Issue.Severity,
				LinkedTaskID: &taskRef,
			}, actor)
			if err != nil {
				return err
			}
			if err := tx.Model(task).Update("linked_issue_id", issue.ID).Error; err != nil {
				return err
			}
			task.LinkedIssueID = &issue.ID
			result.Issue = issue
		}

		result.Task = *task
		result.Submission = sub
		return settleRequest(tx, action, in.IdempotencyKey, sub.ID)
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		e.Log.Info("task completed",
			zap.Uint("task_id", taskID),
			zap.String("actor", actor),
			zap.Int("photos", len(photos)))
		if result.Issue != nil {
			e.notifyIssue(ctx, result.Issue, "reported during maintenance")
		}
	}
	return result, nil
}

// VerifyTask approves the pending submission. VERIFIED is final for the cycle.
func (e *Engine) VerifyTask(ctx context.Context, taskID uint, verifier, note string) (*Models.MaintenanceTask, error) {
	var task *Models.MaintenanceTask
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := guard(task, "verify"); err != nil {
			return err
		}
		sub, err := latestSubmission(tx, task.ID, Models.VerificationPending)
		if err != nil {
			return err
		}
		var subID *uint
		if sub != nil {
			now := e.Now()
			if err := tx.Model(sub).Updates(map[string]interface{}{
				"verification_status": Models.VerificationApproved,
				"verifier_id":         verifier,
				"verification_note":   note,
				"verified_at":         &now,
			}).Error; err != nil {
				return err
			}
			subID = &sub.ID
		}
		if err := tx.Model(task).Update("status", Models.TaskVerified).Error; err != nil {
			return err
		}
		task.Status = Models.TaskVerified
		return e.event(tx, task.ID, "verify", Models.TaskCompleted, Models.TaskVerified, verifier, note, subID)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// RejectTask sends a completion back for rework. The submission keeps the
// original photos and the reason; the task returns to PENDING with its
// completion fields cleared and the service timestamp restored.
func (e *Engine) RejectTask(ctx context.Context, taskID uint, verifier, reason string) (*Models.MaintenanceTask, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Models.ErrReasonRequired
	}

	var task *Models.MaintenanceTask
	performer := ""
	dropped := 0
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := guard(task, "reject"); err != nil {
			return err
		}
		performer = task.CompletedBy

		sub, err := latestSubmission(tx, task.ID, Models.VerificationPending)
		if err != nil {
			return err
		}
		var subID *uint
		if sub != nil {
			now := e.Now()
			if err := tx.Model(sub).Updates(map[string]interface{}{
				"verification_status": Models.VerificationRejected,
				"verifier_id":         verifier,
				"verification_note":   reason,
				"verified_at":         &now,
			}).Error; err != nil {
				return err
			}
			if err := restoreService(tx, task, sub); err != nil {
				return err
			}
			subID = &sub.ID
		}
		if dropped, err = dropLaterCycles(tx, task); err != nil {
			return err
		}

		if err := e.event(tx, task.ID, "reject", Models.TaskCompleted, Models.TaskRejected, verifier, reason, subID); err != nil {
			return err
		}

		task.Status = Models.TaskPending
		task.CompletedAt = nil
		task.CompletedBy = ""
		task.Photos = datatypes.JSONSlice[string]{}
		task.Notes = ""
		task.ReworkCount++
		if err := tx.Model(task).
			Select("status", "completed_at", "completed_by", "photos", "notes", "rework_count").
			Updates(task).Error; err != nil {
			return fmt.Errorf("reopen task: %w", err)
		}
		return e.event(tx, task.ID, "rework", Models.TaskRejected, Models.TaskPending, verifier, "", subID)
	})
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		e.Log.Info("later cycles withdrawn",
			zap.Uint("task_id", task.ID),
			zap.Uint("equipment_id", task.EquipmentID),
			zap.Int("tasks", dropped))
	}
	e.notifyRejection(ctx, task, performer, reason)
	return task, nil
}

// UnverifyTask reopens a verified task for review.
func (e *Engine) UnverifyTask(ctx context.Context, taskID uint, reviewer, reason string) (*Models.MaintenanceTask, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Models.ErrReasonRequired
	}

	var task *Models.MaintenanceTask
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := guard(task, "unverify"); err != nil {
			return err
		}
		sub, err := latestSubmission(tx, task.ID, Models.VerificationApproved)
		if err != nil {
			return err
		}
		var subID *uint
		if sub != nil {
			if err := tx.Model(sub).Updates(map[string]interface{}{
				"verification_status": Models.VerificationPending,
				"verifier_id":         "",
				"verification_note":   "",
				"verified_at":         nil,
			}).Error; err != nil {
				return err
			}
			subID = &sub.ID
		}
		if err := tx.Model(task).Update("status", Models.TaskCompleted).Error; err != nil {
			return err
		}
		task.Status = Models.TaskCompleted
		return e.event(tx, task.ID, "unverify", Models.TaskVerified, Models.TaskCompleted, reviewer, reason, subID)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (e *Engine) SkipTask(ctx context.Context, taskID uint, actor, reason string) (*Models.MaintenanceTask, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, Models.ErrReasonRequired
	}
	var task *Models.MaintenanceTask
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if task, err = lockTask(tx, taskID); err != nil {
			return err
		}
		if err := e.skipLocked(tx, task, actor, reason); err != nil {
			return err
		}
		return advanceSkipAnchor(tx, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (e *Engine) skipLocked(tx *gorm.DB, task *Models.MaintenanceTask, actor, reason string) error {
	if err := guard(task, "skip"); err != nil {
		return err
	}
	if err := tx.Model(task).Updates(map[string]interface{}{
		"status":      Models.TaskSkipped,
		"skip_reason": reason,
	}).Error; err != nil {
		return err
	}
	task.Status = Models.TaskSkipped
	task.SkipReason = reason
	return e.event(tx, task.ID, "skip", Models.TaskPending, Models.TaskSkipped, actor, reason, nil)
}

// advanceSkipAnchor moves the device's schedule past a skipped interval
// cycle, so the next plan run starts a fresh cycle instead of finding the
// skipped one again.
func advanceSkipAnchor(tx *gorm.DB, task *Models.MaintenanceTask) error {
	column := skipColumn(task.TaskType)
	if column == "" {
		return nil
	}
	res := tx.Model(&Models.Equipment{}).
		Where("id = ? AND COALESCE("+column+", '') < ?", task.EquipmentID, task.DueDate).
		Update(column, task.DueDate)
	if res.Error != nil {
		return fmt.Errorf("advance %s: %w", column, res.Error)
	}
	return nil
}

// DeleteReport discards a task that is not verified, together with its
// submissions and events. A pending completion is undone first. Issues that
// were linked to it remain.
func (e *Engine) DeleteReport(ctx context.Context, taskID uint, actor string) error {
	var deleted Models.MaintenanceTask
	dropped := 0
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := lockTask(tx, taskID)
		if err != nil {
			return err
		}
		if err := guard(task, "delete"); err != nil {
			return err
		}
		if task.Status == Models.TaskCompleted {
			sub, err := latestSubmission(tx, task.ID, Models.VerificationPending)
			if err != nil {
				return err
			}
			if sub != nil {
				if err := restoreService(tx, task, sub); err != nil {
					return err
				}
			}
			if dropped, err = dropLaterCycles(tx, task); err != nil {
				return err
			}
		}

		if err := tx.Where("task_id = ?", task.ID).Delete(&Models.TaskSubmission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&Models.TaskEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Models.Issue{}).Where("linked_task_id = ?", task.ID).
			Update("linked_task_id", nil).Error; err != nil {
			return err
		}
		deleted = *task
		return tx.Unscoped().Delete(task).Error
	})
	if err != nil {
		return err
	}
	e.Log.Info("task report deleted",
		zap.Uint("task_id", deleted.ID),
		zap.Uint("equipment_id", deleted.EquipmentID),
		zap.String("status", deleted.Status),
		zap.String("due_date", deleted.DueDate),
		zap.Int("later_cycles_withdrawn", dropped),
		zap.String("actor", actor))
	return nil
}

const taskViewOrder = "maintenance_tasks.due_date, maintenance_tasks.zone_name, maintenance_tasks.workstation_name, maintenance_tasks.id"

// taskViews selects TaskView rows: tasks joined with their equipment.
func taskViews(db *gorm.DB) *gorm.DB {
	return db.Table("maintenance_tasks").
		Select(`maintenance_tasks.id, maintenance_tasks.equipment_id, equipment.name AS equipment_name,
			equipment.type AS equipment_type, maintenance_tasks.task_type, maintenance_tasks.due_date,
			maintenance_tasks.status, maintenance_tasks.workstation_name, maintenance_tasks.zone_name,
			maintenance_tasks.assignee, maintenance_tasks.completed_at, maintenance_tasks.completed_by,
			maintenance_tasks.linked_issue_id, maintenance_tasks.rework_count`).
		Joins("JOIN equipment ON equipment.id = maintenance_tasks.equipment_id").
		Where("maintenance_tasks.deleted_at IS NULL")
}

// ListTasks is the read model for a period. With includeOverdue, open tasks
// due before dateFrom are included too.
func (e *Engine) ListTasks(ctx context.Context, dateFrom, dateTo string, includeOverdue bool) ([]Models.TaskView, error) {
	if err := validateDate(dateFrom); err != nil {
		return nil, err
	}
	if err := validateDate(dateTo); err != nil {
		return nil, err
	}
	if dateFrom > dateTo {
		return nil, Models.ErrInvalidDateRange
	}

	open := []string{Models.TaskPending, Models.TaskInProgress}
	q := taskViews(e.db(ctx))
	if includeOverdue {
		q = q.Where("(maintenance_tasks.due_date BETWEEN ? AND ?) OR (maintenance_tasks.due_date < ? AND maintenance_tasks.status IN ?)",
			dateFrom, dateTo, dateFrom, open)
	} else {
		q = q.Where("maintenance_tasks.due_date BETWEEN ? AND ?", dateFrom, dateTo)
	}

	var views []Models.TaskView
	if err := q.Order(taskViewOrder).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	today := e.Today()
	for i := range views {
		v := &views[i]
		v.Overdue = v.DueDate < today && (v.Status == Models.TaskPending || v.Status == Models.TaskInProgress)
	}
	return views, nil
}

func (e *Engine) TaskHistory(ctx context.Context, taskID uint) (*Models.TaskHistory, error) {
	task, err := e.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	h := &Models.TaskHistory{Task: *task}
	if err := e.db(ctx).Where("task_id = ?", taskID).Order("id").Find(&h.Submissions).Error; err != nil {
		return nil, err
	}
	if err := e.db(ctx).Where("task_id = ?", taskID).Order("id").Find(&h.Events).Error; err != nil {
		return nil, err
	}
	return h, nil
}
