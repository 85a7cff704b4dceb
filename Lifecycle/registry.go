package Lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Pitstop/Clock"
	"Pitstop/Models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ThermalConfig struct {
	IntervalDays *int
	ChangedOn    *string
	Material     *string
	Note         *string
}

func (t *ThermalConfig) empty() bool {
	return t == nil || (t.IntervalDays == nil && t.ChangedOn == nil && t.Material == nil && t.Note == nil)
}

type MaintenanceConfig struct {
	IntervalDays int
	// LastServiced is a venue-local date. Nil keeps the stored value.
	LastServiced *string
	Thermal      *ThermalConfig
}

// DueEquipment is one row of ListDue.
type DueEquipment struct {
	Equipment     Models.Equipment `json:"equipment"`
	DueDate       string           `json:"due_date"`
	NeverServiced bool             `json:"never_serviced"`
}

type EquipmentFilter struct {
	Type            Models.EquipmentType
	WorkstationID   *uint
	InStorage       bool
	IncludeInactive bool
}

// setPlacement is the only writer of Equipment.WorkstationID. Callers have
// already run the placement conflict checks.
func setPlacement(tx *gorm.DB, equipmentID uint, workstationID *uint) error {
	res := tx.Model(&Models.Equipment{}).Where("id = ?", equipmentID).Update("workstation_id", workstationID)
	if res.Error != nil {
		return fmt.Errorf("set placement of equipment %d: %w", equipmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return Models.ErrEquipmentNotFound
	}
	return nil
}

func (e *Engine) SetMaintenanceConfig(ctx context.Context, equipmentID uint, cfg MaintenanceConfig) (*Models.Equipment, error) {
	if cfg.IntervalDays < 1 {
		return nil, Models.ErrInvalidInterval
	}
	if cfg.Thermal != nil && cfg.Thermal.IntervalDays != nil && *cfg.Thermal.IntervalDays < 1 {
		return nil, Models.ErrInvalidInterval
	}

	updates := map[string]interface{}{"cleaning_interval_days": cfg.IntervalDays}
	if cfg.LastServiced != nil {
		at, err := e.serviceInstant(*cfg.LastServiced)
		if err != nil {
			return nil, err
		}
		updates["last_cleaned_at"] = at
		updates["cleaning_skipped_through"] = ""
	}

	var eq Models.Equipment
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&eq, equipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}
		if !cfg.Thermal.empty() {
			if !eq.Type.SupportsThermalService() {
				return Models.ErrIneligibleEquipmentType
			}
			t := cfg.Thermal
			if t.IntervalDays != nil {
				updates["thermal_interval_days"] = *t.IntervalDays
			}
			if t.ChangedOn != nil {
				at, err := e.serviceInstant(*t.ChangedOn)
				if err != nil {
					return err
				}
				updates["thermal_changed_at"] = at
				updates["thermal_skipped_through"] = ""
			}
			if t.Material != nil {
				updates["thermal_material"] = *t.Material
			}
			if t.Note != nil {
				updates["thermal_note"] = *t.Note
			}
		}
		if err := tx.Model(&eq).Updates(updates).Error; err != nil {
			return fmt.Errorf("update maintenance config: %w", err)
		}
		return tx.First(&eq, equipmentID).Error
	})
	if err != nil {
		return nil, err
	}
	return &eq, nil
}

func (e *Engine) SetMaintenanceEnabled(ctx context.Context, equipmentID uint, enabled bool) (*Models.Equipment, error) {
	var eq Models.Equipment
	if err := e.db(ctx).First(&eq, equipmentID).Error; err != nil {
		return nil, notFound(err, Models.ErrEquipmentNotFound)
	}
	if err := e.db(ctx).Model(&eq).Update("maintenance_enabled", enabled).Error; err != nil {
		return nil, err
	}
	eq.MaintenanceEnabled = enabled
	return &eq, nil
}

// schedule returns the interval, last service instant and skip anchor that
// drive taskType for eq. ok is false when the type has no interval on this device.
func schedule(eq *Models.Equipment, taskType Models.TaskType) (interval int, last *time.Time, skipped string, ok bool) {
	switch taskType {
	case Models.TaskCleaning:
		return eq.CleaningIntervalDays, eq.LastCleanedAt, eq.CleaningSkippedThrough, eq.CleaningIntervalDays >= 1
	case Models.TaskMaintenance:
		if !eq.Type.SupportsThermalService() {
			return 0, nil, "", false
		}
		return eq.ThermalIntervalDays, eq.ThermalChangedAt, eq.ThermalSkippedThrough, eq.ThermalIntervalDays >= 1
	}
	return 0, nil, "", false
}

func skipColumn(taskType Models.TaskType) string {
	switch taskType {
	case Models.TaskCleaning:
		return "cleaning_skipped_through"
	case Models.TaskMaintenance:
		return "thermal_skipped_through"
	}
	return ""
}

// dueDate is lastServiced + interval in venue-local days, or skipped +
// interval when a skipped cycle is at least as recent. An empty string means
// the device was never serviced and nothing was skipped.
func (e *Engine) dueDate(interval int, last *time.Time, skipped string) string {
	date := ""
	if last != nil {
		date, _ = Clock.AddDays(e.localDate(*last), interval)
	}
	if skipped != "" && (date == "" || date <= skipped) {
		date, _ = Clock.AddDays(skipped, interval)
	}
	return date
}

// ListDue returns equipment whose cleaning is due on or before asOf.
func (e *Engine) ListDue(ctx context.Context, asOf string) ([]DueEquipment, error) {
	return e.ListDueFor(ctx, asOf, Models.TaskCleaning)
}

// ListDueFor returns maintained equipment whose taskType schedule is due on or
// before asOf. Never-serviced devices are always due.
func (e *Engine) ListDueFor(ctx context.Context, asOf string, taskType Models.TaskType) ([]DueEquipment, error) {
	if err := validateDate(asOf); err != nil {
		return nil, err
	}
	if !taskType.Schedulable() {
		return nil, Models.ErrUnschedulableType
	}

	var candidates []Models.Equipment
	err := e.db(ctx).
		Preload("Workstation.Zone").
		Joins("JOIN workstations ON workstations.id = equipment.workstation_id AND workstations.deleted_at IS NULL").
		Where("equipment.active = ? AND equipment.maintenance_enabled = ?", true, true).
		Where("COALESCE(workstations.responsible_party, '') <> ''").
		Order("equipment.id").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list maintained equipment: %w", err)
	}

	due := make([]DueEquipment, 0, len(candidates))
	for _, eq := range candidates {
		interval, last, skipped, ok := schedule(&eq, taskType)
		if !ok {
			continue
		}
		date := e.dueDate(interval, last, skipped)
		if date == "" {
			due = append(due, DueEquipment{Equipment: eq, DueDate: asOf, NeverServiced: true})
			continue
		}
		if date <= asOf {
			due = append(due, DueEquipment{Equipment: eq, DueDate: date})
		}
	}
	return due, nil
}

func (e *Engine) ListEquipment(ctx context.Context, f EquipmentFilter) ([]Models.Equipment, error) {
	q := e.db(ctx).Preload("Workstation.Zone").Order("id")
	if !f.IncludeInactive {
		q = q.Where("active = ?", true)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.InStorage {
		q = q.Where("workstation_id IS NULL")
	} else if f.WorkstationID != nil {
		q = q.Where("workstation_id = ?", *f.WorkstationID)
	}
	var list []Models.Equipment
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (e *Engine) GetEquipment(ctx context.Context, id uint) (*Models.Equipment, error) {
	var eq Models.Equipment
	if err := e.db(ctx).Preload("Workstation.Zone").First(&eq, id).Error; err != nil {
		return nil, notFound(err, Models.ErrEquipmentNotFound)
	}
	return &eq, nil
}

// Deactivate retires a device without deleting its history: pending tasks are
// skipped, its placement is released to storage and it stops coming due.
func (e *Engine) Deactivate(ctx context.Context, equipmentID uint, actor, reason string) (*Models.Equipment, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "equipment decommissioned"
	}
	var eq Models.Equipment
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&eq, equipmentID).Error; err != nil {
			return notFound(err, Models.ErrEquipmentNotFound)
		}
		if !eq.Active {
			return nil
		}

		var inProgress int64
		if err := tx.Model(&Models.MaintenanceTask{}).
			Where("equipment_id = ? AND status = ?", eq.ID, Models.TaskInProgress).
			Count(&inProgress).Error; err != nil {
			return err
		}
		if inProgress > 0 {
			return Models.ErrWorkInProgress
		}

		var pending []Models.MaintenanceTask
		if err := tx.Where("equipment_id = ? AND status = ?", eq.ID, Models.TaskPending).Find(&pending).Error; err != nil {
			return err
		}
		for i := range pending {
			if err := e.skipLocked(tx, &pending[i], actor, reason); err != nil {
				return err
			}
		}

		if eq.WorkstationID != nil {
			if _, err := e.relocate(tx, &eq, nil, actor, reason, ""); err != nil {
				return err
			}
		}

		if err := tx.Model(&eq).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate equipment %d: %w", eq.ID, err)
		}
		eq.Active = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.Log.Info("equipment deactivated", zap.Uint("equipment_id", eq.ID), zap.String("actor", actor))
	return &eq, nil
}

func partyValue(party *string) string {
	if party == nil {
		return ""
	}
	return strings.TrimSpace(*party)
}

// AssignWorkstation sets who maintains a slot. An empty party disables maintenance there.
func (e *Engine) AssignWorkstation(ctx context.Context, workstationID uint, party *string) (*Models.Workstation, error) {
	var ws Models.Workstation
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ws, workstationID).Error; err != nil {
			return notFound(err, Models.ErrWorkstationNotFound)
		}
		ws.ResponsibleParty = partyValue(party)
		return tx.Model(&ws).Update("responsible_party", ws.ResponsibleParty).Error
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// AssignZone sets the zone's responsible party and, with cascade, every workstation in it.
func (e *Engine) AssignZone(ctx context.Context, zoneID uint, party *string, cascade bool) (*Models.Zone, error) {
	var zone Models.Zone
	value := partyValue(party)
	err := e.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&zone, zoneID).Error; err != nil {
			return notFound(err, Models.ErrZoneNotFound)
		}
		if err := tx.Model(&zone).Update("responsible_party", value).Error; err != nil {
			return err
		}
		zone.ResponsibleParty = value
		if cascade {
			if err := tx.Model(&Models.Workstation{}).Where("zone_id = ?", zone.ID).
				Update("responsible_party", value).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Models.Workstation{}).Where("zone_id = ?", zone.ID).Count(&zone.WorkstationCount).Error
	})
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

func (e *Engine) DeleteZone(ctx context.Context, zoneID uint) error {
	return e.db(ctx).Transaction(func(tx *gorm.DB) error {
		var zone Models.Zone
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&zone, zoneID).Error; err != nil {
			return notFound(err, Models.ErrZoneNotFound)
		}
		var count int64
		if err := tx.Model(&Models.Workstation{}).Where("zone_id = ?", zone.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return Models.ErrZoneNotEmpty
		}
		return tx.Delete(&zone).Error
	})
}

func (e *Engine) ListZones(ctx context.Context) ([]Models.Zone, error) {
	var zones []Models.Zone
	if err := e.db(ctx).Preload("Workstations", func(db *gorm.DB) *gorm.DB {
		return db.Order("name")
	}).Order("name").Find(&zones).Error; err != nil {
		return nil, err
	}
	for i := range zones {
		zones[i].WorkstationCount = int64(len(zones[i].Workstations))
	}
	return zones, nil
}
