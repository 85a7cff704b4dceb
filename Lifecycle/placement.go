package Lifecycle

import (
	"context"
	"fmt"

	"Pitstop/Models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MoveInput struct {
	// TargetWorkstationID nil means storage.
	TargetWorkstationID *uint
	Reason              string
	Issue               *Models.IssueDraft
}

type MoveResult struct {
	Equipment      Models.Equipment  `json:"equipment"`
	SwappedWith    *Models.Equipment `json:"swapped_with,omitempty"`
	Issue          *Models.Issue     `json:"issue,omitempty"`
	RefreshedTasks int64             `json:"refreshed_tasks"`
}

// ReplaceToStorage releases a device from its workstation.
func (e *Engine) ReplaceToStorage(ctx context.Context, equipmentID uint, reason string, draft *Models.IssueDraft, actor string) (*MoveResult, error) {
	return e.Move(ctx, equipmentID, MoveInput{Reason: reason, Issue: draft}, actor)
}

// Move places a device at the target workstation. A same-type device already
// there swaps into the mover's previous placement in the same transaction.
func (e *Engine) Move(ctx context.Context, equipmentID uint, in MoveInput, actor string) (*MoveResult, error) {
	if in.Issue != nil {
		if err := validateDraft(in.Issue); err != nil {
			return nil, err
		}
	}

	result := &MoveResult{}
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		eq := &result.Equipment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(eq, equipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}
		if !eq.Active {
			return Models.ErrEquipmentInactive
		}
		if samePlacement(eq.WorkstationID, in.TargetWorkstationID) {
			return Models.ErrNoOpMove
		}

		var target *Models.Workstation
		if in.TargetWorkstationID != nil {
			ws, err := loadWorkstation(tx, *in.TargetWorkstationID)
			if err != nil {
				return notFound(err, Models.ErrTargetNotFound)
			}
			target = ws
		}

		var prior *Models.Workstation
		if eq.WorkstationID != nil {
			ws, err := loadWorkstation(tx, *eq.WorkstationID)
			if err != nil {
				return fmt.Errorf("load current workstation: %w", err)
			}
			prior = ws
		}

		var occupant *Models.Equipment
		if target != nil {
			var found Models.Equipment
			res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("workstation_id = ? AND type = ? AND id <> ? AND active = ?", target.ID, eq.Type, eq.ID, true).
				Order("id").Limit(1).Find(&found)
			if res.Error != nil {
				return fmt.Errorf("find occupant: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				occupant = &found
			}
		}

		group := ""
		if occupant != nil {
			group = uuid.NewString()
		}

		refreshed, err := e.relocate(tx, eq, target, actor, in.Reason, group)
		if err != nil {
			return err
		}
		result.RefreshedTasks += refreshed

		if occupant != nil {
			refreshed, err := e.relocate(tx, occupant, prior, actor, in.Reason, group)
			if err != nil {
				return err
			}
			result.RefreshedTasks += refreshed
			result.SwappedWith = occupant
		}

		if in.Issue != nil {
			issue, err := e.openIssueTx(tx, eq, target, issueFields{
				Title:       in.Issue.Title,
				Description: in.Issue.Description,
				Severity:    in.Issue.Severity,
			}, actor)
			if err != nil {
				return err
			}
			result.Issue = issue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Uint("equipment_id", result.Equipment.ID),
		zap.String("actor", actor),
		zap.Int64("refreshed_tasks", result.RefreshedTasks),
	}
	if result.SwappedWith != nil {
		fields = append(fields, zap.Uint("swapped_with", result.SwappedWith.ID))
	}
	e.Log.Info("equipment moved", fields...)

	if result.Issue != nil {
		e.notifyIssue(ctx, result.Issue, "reported during move")
	}
	return result, nil
}

// relocate writes one device's new placement, refreshes the workstation
// snapshot on its open tasks and appends to the placement log.
func (e *Engine) relocate(tx *gorm.DB, eq *Models.Equipment, target *Models.Workstation, actor, reason, group string) (int64, error) {
	var to *uint
	if target != nil {
		id := target.ID
		to = &id
	}
	from := eq.WorkstationID

	if err := setPlacement(tx, eq.ID, to); err != nil {
		return 0, err
	}
	eq.WorkstationID = to
	eq.Workstation = target

	snapshot := map[string]interface{}{
		"workstation_id":   to,
		"workstation_name": "",
		"zone_name":        "",
	}
	if target != nil {
		snapshot["workstation_name"] = target.Name
		snapshot["zone_name"] = target.Zone.Name
	}
	res := tx.Model(&Models.MaintenanceTask{}).
		Where("equipment_id = ? AND status IN ?", eq.ID, []string{Models.TaskPending, Models.TaskInProgress}).
		Updates(snapshot)
	if res.Error != nil {
		return 0, fmt.Errorf("refresh task snapshots: %w", res.Error)
	}

	entry := Models.PlacementLog{
		EquipmentID:       eq.ID,
		FromWorkstationID: from,
		ToWorkstationID:   to,
		Reason:            reason,
		Actor:             actor,
		SwapGroup:         group,
		CreatedAt:         e.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return 0, fmt.Errorf("write placement log: %w", err)
	}
	return res.RowsAffected, nil
}

func loadWorkstation(tx *gorm.DB, id uint) (*Models.Workstation, error) {
	var ws Models.Workstation
	if err := tx.Preload("Zone").First(&ws, id).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func samePlacement(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PlacementHistory returns the placement log of a device, newest first.
func (e *Engine) PlacementHistory(ctx context.Context, equipmentID uint) ([]Models.PlacementLog, error) {
	if _, err := e.GetEquipment(ctx, equipmentID); err != nil {
		return nil, err
	}
	var logs []Models.PlacementLog
	if err := e.db(ctx).Where("equipment_id = ?", equipmentID).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
