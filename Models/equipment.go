package Models

import (
	"time"

	"gorm.io/gorm"
)

type EquipmentType string

const (
	EquipmentPC        EquipmentType = "PC"
	EquipmentMonitor   EquipmentType = "MONITOR"
	EquipmentKeyboard  EquipmentType = "KEYBOARD"
	EquipmentMouse     EquipmentType = "MOUSE"
	EquipmentHeadset   EquipmentType = "HEADSET"
	EquipmentConsole   EquipmentType = "CONSOLE"
	EquipmentTV        EquipmentType = "TV"
	EquipmentVRHeadset EquipmentType = "VR_HEADSET"
	EquipmentMousepad  EquipmentType = "MOUSEPAD"
	EquipmentChair     EquipmentType = "CHAIR"
	EquipmentGamepad   EquipmentType = "GAMEPAD"
	EquipmentCleaning  EquipmentType = "CLEANING"
	EquipmentOther     EquipmentType = "OTHER"
)

// SupportsThermalService reports whether thermal paste / pad service applies.
func (t EquipmentType) SupportsThermalService() bool {
	return t == EquipmentPC || t == EquipmentConsole
}

type Equipment struct {
	gorm.Model
	Name               string        `json:"name"`
	Type               EquipmentType `json:"type" gorm:"index"`
	Active             bool          `json:"active"`
	MaintenanceEnabled bool          `json:"maintenance_enabled"`

	CleaningIntervalDays int        `json:"cleaning_interval_days"`
	LastCleanedAt        *time.Time `json:"last_cleaned_at"`
	// CleaningSkippedThrough is the venue-local due date of the latest skipped
	// cleaning cycle. The next cycle counts from it when it is newer than the
	// last service.
	CleaningSkippedThrough string `json:"cleaning_skipped_through,omitempty"`

	ThermalIntervalDays   int        `json:"thermal_interval_days"`
	ThermalChangedAt      *time.Time `json:"thermal_changed_at"`
	ThermalSkippedThrough string     `json:"thermal_skipped_through,omitempty"`
	ThermalMaterial       string     `json:"thermal_material"`
	ThermalNote           string     `json:"thermal_note"`

	WorkstationID *uint        `json:"workstation_id" gorm:"index"`
	Workstation   *Workstation `json:"workstation,omitempty" gorm:"foreignKey:WorkstationID"`
}

func (Equipment) TableName() string {
	return "equipment"
}

// InStorage is true when the device is not placed at any workstation.
func (e *Equipment) InStorage() bool {
	return e.WorkstationID == nil
}

type Zone struct {
	gorm.Model
	Name             string        `json:"name" gorm:"uniqueIndex"`
	ResponsibleParty string        `json:"responsible_party"`
	Workstations     []Workstation `json:"workstations,omitempty"`
	WorkstationCount int64         `json:"workstation_count" gorm:"-"`
}

// Workstation is a single seat. An empty ResponsibleParty means nobody
// maintains the slot and its equipment never comes due.
type Workstation struct {
	gorm.Model
	Name             string `json:"name" gorm:"uniqueIndex"`
	ZoneID           uint   `json:"zone_id" gorm:"index"`
	Zone             Zone   `json:"zone,omitempty"`
	ResponsibleParty string `json:"responsible_party"`
}

// PlacementLog records every placement change. Both halves of a swap share a SwapGroup.
type PlacementLog struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	EquipmentID       uint      `json:"equipment_id" gorm:"index"`
	FromWorkstationID *uint     `json:"from_workstation_id"`
	ToWorkstationID   *uint     `json:"to_workstation_id"`
	Reason            string    `json:"reason"`
	Actor             string    `json:"actor"`
	SwapGroup         string    `json:"swap_group,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// MaintenanceConfigRequest is the body of PUT /api/equipment/:id/maintenance.
type MaintenanceConfigRequest struct {
	IntervalDays        int     `json:"interval_days"`
	LastServiced        *string `json:"last_serviced" validate:"omitempty,date"`
	ThermalIntervalDays *int    `json:"thermal_interval_days"`
	ThermalChangedOn    *string `json:"thermal_changed_on" validate:"omitempty,date"`
	ThermalMaterial     *string `json:"thermal_material"`
	ThermalNote         *string `json:"thermal_note"`
}

type MoveRequest struct {
	TargetWorkstationID uint        `json:"target_workstation_id" validate:"required"`
	Reason              string      `json:"reason"`
	Issue               *IssueDraft `json:"issue"`
}

type StorageRequest struct {
	Reason string      `json:"reason"`
	Issue  *IssueDraft `json:"issue"`
}

type AssignPartyRequest struct {
	Party   *string `json:"party"`
	Cascade bool    `json:"cascade"`
}

type DeactivateRequest struct {
	Reason string `json:"reason"`
}

type MaintenanceEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
