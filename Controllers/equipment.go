package Controllers

import (
	"strconv"

	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
)

type EquipmentController struct {
	*Handler
}

func NewEquipmentController(h *Handler) *EquipmentController {
	return &EquipmentController{Handler: h}
}

// List filters by type, workstation_id, in_storage and include_inactive.
func (c *EquipmentController) List(ctx *fiber.Ctx) error {
	filter := Lifecycle.EquipmentFilter{Type: Models.EquipmentType(ctx.Query("type"))}
	if raw := ctx.Query("workstation_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.fail(ctx, badRequest("invalid_query", "workstation_id must be a number"))
		}
		ws := uint(id)
		filter.WorkstationID = &ws
	}
	var err error
	if filter.InStorage, err = queryBool(ctx, "in_storage"); err != nil {
		return c.fail(ctx, err)
	}
	if filter.IncludeInactive, err = queryBool(ctx, "include_inactive"); err != nil {
		return c.fail(ctx, err)
	}

	equipment, err := c.Engine.ListEquipment(ctx.UserContext(), filter)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(equipment)
}

func (c *EquipmentController) Get(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	eq, err := c.Engine.GetEquipment(ctx.UserContext(), id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(eq)
}

// Due lists equipment whose next cleaning falls on or before as_of (default today).
func (c *EquipmentController) Due(ctx *fiber.Ctx) error {
	asOf := ctx.Query("as_of", c.Engine.Today())
	due, err := c.Engine.ListDue(ctx.UserContext(), asOf)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(due)
}

func (c *EquipmentController) SetMaintenance(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.MaintenanceConfigRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	cfg := Lifecycle.MaintenanceConfig{
		IntervalDays: req.IntervalDays,
		LastServiced: req.LastServiced,
	}
	if req.ThermalIntervalDays != nil || req.ThermalChangedOn != nil || req.ThermalMaterial != nil || req.ThermalNote != nil {
		cfg.Thermal = &Lifecycle.ThermalConfig{
			IntervalDays: req.ThermalIntervalDays,
			ChangedOn:    req.ThermalChangedOn,
			Material:     req.ThermalMaterial,
			Note:         req.ThermalNote,
		}
	}
	eq, err := c.Engine.SetMaintenanceConfig(ctx.UserContext(), id, cfg)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(eq)
}

func (c *EquipmentController) SetMaintenanceEnabled(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.MaintenanceEnabledRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	eq, err := c.Engine.SetMaintenanceEnabled(ctx.UserContext(), id, *req.Enabled)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(eq)
}

func (c *EquipmentController) Move(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.MoveRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	target := req.TargetWorkstationID
	result, err := c.Engine.Move(ctx.UserContext(), id, Lifecycle.MoveInput{
		TargetWorkstationID: &target,
		Reason:              req.Reason,
		Issue:               req.Issue,
	}, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(result)
}

func (c *EquipmentController) Storage(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.StorageRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	result, err := c.Engine.ReplaceToStorage(ctx.UserContext(), id, req.Reason, req.Issue, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(result)
}

func (c *EquipmentController) Deactivate(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.DeactivateRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	eq, err := c.Engine.Deactivate(ctx.UserContext(), id, middleware.Actor(ctx), req.Reason)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(eq)
}

func (c *EquipmentController) Placements(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	logs, err := c.Engine.PlacementHistory(ctx.UserContext(), id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(logs)
}

func (c *EquipmentController) ListZones(ctx *fiber.Ctx) error {
	zones, err := c.Engine.ListZones(ctx.UserContext())
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(zones)
}

func (c *EquipmentController) AssignZone(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.AssignPartyRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	zone, err := c.Engine.AssignZone(ctx.UserContext(), id, req.Party, req.Cascade)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(zone)
}

func (c *EquipmentController) DeleteZone(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	if err := c.Engine.DeleteZone(ctx.UserContext(), id); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *EquipmentController) AssignWorkstation(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.AssignPartyRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	ws, err := c.Engine.AssignWorkstation(ctx.UserContext(), id, req.Party)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(ws)
}
