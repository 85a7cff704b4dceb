package Controllers

import (
	"strconv"

	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
)

type IssueController struct {
	*Handler
}

func NewIssueController(h *Handler) *IssueController {
	return &IssueController{Handler: h}
}

func (c *IssueController) Open(ctx *fiber.Ctx) error {
	var req Models.OpenIssueRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.OpenIssue(ctx.UserContext(), Lifecycle.OpenIssueInput{
		EquipmentID:    req.EquipmentID,
		Title:          req.Title,
		Description:    req.Description,
		Severity:       req.Severity,
		LinkedTaskID:   req.LinkedTaskID,
		IdempotencyKey: idempotencyKey(ctx, req.IdempotencyKey),
	}, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(issue)
}

func (c *IssueController) List(ctx *fiber.Ctx) error {
	filter := Lifecycle.IssueFilter{
		Status:   ctx.Query("status"),
		Severity: Models.Severity(ctx.Query("severity")),
		Assignee: ctx.Query("assignee"),
	}
	if filter.Status != "" && !Models.ValidIssueStatus(filter.Status) {
		return c.fail(ctx, Models.ErrInvalidStatus)
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return c.fail(ctx, Models.ErrInvalidSeverity)
	}
	if raw := ctx.Query("equipment_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.fail(ctx, badRequest("invalid_query", "equipment_id must be a number"))
		}
		filter.EquipmentID = uint(id)
	}

	issues, err := c.Engine.ListIssues(ctx.UserContext(), filter)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issues)
}

func (c *IssueController) Get(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.GetIssue(ctx.UserContext(), id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issue)
}

func (c *IssueController) ChangeStatus(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.IssueStatusRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.ChangeIssueStatus(ctx.UserContext(), id, req.Status, middleware.Actor(ctx), idempotencyKey(ctx, req.IdempotencyKey))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issue)
}

func (c *IssueController) Assign(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.AssignPartyRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.AssignIssue(ctx.UserContext(), id, req.Party, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issue)
}

func (c *IssueController) ChangeSeverity(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.IssueSeverityRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.ChangeSeverity(ctx.UserContext(), id, req.Severity, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issue)
}

func (c *IssueController) Resolve(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.ResolveIssueRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	issue, err := c.Engine.ResolveIssue(ctx.UserContext(), id, req.Notes, req.Photos, req.FailedUploads, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(issue)
}

func (c *IssueController) AddComment(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.CommentRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	comment, err := c.Engine.AddComment(ctx.UserContext(), id, middleware.Actor(ctx), req.Content, idempotencyKey(ctx, req.IdempotencyKey))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(comment)
}

func (c *IssueController) Comments(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	comments, err := c.Engine.ListComments(ctx.UserContext(), id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(comments)
}
