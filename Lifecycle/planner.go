package Lifecycle

import (
	"context"
	"fmt"

	"Pitstop/Models"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

type PlanError struct {
	EquipmentID uint   `json:"equipment_id"`
	Message     string `json:"message"`
}

type PlanResult struct {
	Created  int         `json:"created"`
	Existing int         `json:"existing"`
	Errors   []PlanError `json:"errors,omitempty"`
}

// EnsurePlan makes sure every device due within [dateFrom, dateTo] has one
// task for its current cycle. Re-running over the same or an overlapping range
// creates nothing new. A device that is already overdue gets a single task at
// its original due date, never one per missed cycle. Failures are collected
// per device and do not stop the run.
func (e *Engine) EnsurePlan(ctx context.Context, dateFrom, dateTo string, taskType Models.TaskType) (*PlanResult, error) {
	if err := validateDate(dateFrom); err != nil {
		return nil, err
	}
	if err := validateDate(dateTo); err != nil {
		return nil, err
	}
	if dateFrom > dateTo {
		return nil, Models.ErrInvalidDateRange
	}
	if !taskType.Schedulable() {
		return nil, Models.ErrUnschedulableType
	}

	due, err := e.ListDueFor(ctx, dateTo, taskType)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{}
	for i := range due {
		d := &due[i]
		cycle, dueDate := d.DueDate, d.DueDate
		if d.NeverServiced {
			cycle, dueDate = Models.InitialCycle, dateFrom
		}

		created, err := e.ensureTask(ctx, &d.Equipment, taskType, cycle, dueDate)
		if err != nil {
			e.Log.Warn("plan entry not created",
				zap.Uint("equipment_id", d.Equipment.ID),
				zap.String("task_type", string(taskType)),
				zap.Error(err))
			result.Errors = append(result.Errors, PlanError{EquipmentID: d.Equipment.ID, Message: err.Error()})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}

	e.Log.Info("plan ensured",
		zap.String("date_from", dateFrom),
		zap.String("date_to", dateTo),
		zap.String("task_type", string(taskType)),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// ensureTask inserts the task for (equipment, type, cycle) unless it exists.
// The unique cycle index makes concurrent runs safe. An open task from an
// earlier cycle also counts as existing, so a device never has two
// outstanding occurrences. A completion still awaiting review is open: a
// rejection would reopen it.
func (e *Engine) ensureTask(ctx context.Context, eq *Models.Equipment, taskType Models.TaskType, cycle, dueDate string) (bool, error) {
	db := e.db(ctx)

	var open int64
	if err := db.Model(&Models.MaintenanceTask{}).
		Where("equipment_id = ? AND task_type = ? AND cycle_key <> ? AND status IN ?",
			eq.ID, taskType, cycle, []string{Models.TaskPending, Models.TaskInProgress, Models.TaskCompleted}).
		Count(&open).Error; err != nil {
		return false, fmt.Errorf("count open tasks: %w", err)
	}
	if open > 0 {
		return false, nil
	}

	task := Models.MaintenanceTask{
		EquipmentID:   eq.ID,
		TaskType:      taskType,
		CycleKey:      cycle,
		DueDate:       dueDate,
		Status:        Models.TaskPending,
		WorkstationID: eq.WorkstationID,
	}
	if ws := eq.Workstation; ws != nil {
		task.WorkstationName = ws.Name
		task.ZoneName = ws.Zone.Name
		task.Assignee = ws.ResponsibleParty
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&task)
	if res.Error != nil {
		return false, fmt.Errorf("insert task: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
