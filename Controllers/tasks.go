package Controllers

import (
	"context"
	"fmt"

	"Pitstop/Clock"
	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/Reports"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type TaskController struct {
	*Handler
}

func NewTaskController(h *Handler) *TaskController {
	return &TaskController{Handler: h}
}

func (c *TaskController) EnsurePlan(ctx *fiber.Ctx) error {
	var req Models.EnsurePlanRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	result, err := c.Engine.EnsurePlan(ctx.UserContext(), req.DateFrom, req.DateTo, req.TaskType)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(result)
}

// ListTasks returns the task view for a date range. With ensure=true the
// CLEANING and MAINTENANCE plans are brought up to date first.
func (c *TaskController) ListTasks(ctx *fiber.Ctx) error {
	from, to := ctx.Query("date_from"), ctx.Query("date_to")
	includeOverdue, err := queryBool(ctx, "include_overdue")
	if err != nil {
		return c.fail(ctx, err)
	}
	ensure, err := queryBool(ctx, "ensure")
	if err != nil {
		return c.fail(ctx, err)
	}

	if ensure {
		for _, taskType := range []Models.TaskType{Models.TaskCleaning, Models.TaskMaintenance} {
			result, err := c.Engine.EnsurePlan(ctx.UserContext(), from, to, taskType)
			if err != nil {
				return c.fail(ctx, err)
			}
			if len(result.Errors) > 0 {
				c.Log.Warn("plan generated with errors",
					zap.String("task_type", string(taskType)),
					zap.Int("failed", len(result.Errors)),
				)
			}
		}
	}

	tasks, err := c.Engine.ListTasks(ctx.UserContext(), from, to, includeOverdue)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(tasks)
}

func (c *TaskController) CreateTask(ctx *fiber.Ctx) error {
	var req Models.CreateTaskRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	task, err := c.Engine.CreateTask(ctx.UserContext(), Lifecycle.CreateTaskInput{
		EquipmentID: req.EquipmentID,
		TaskType:    req.TaskType,
		DueDate:     req.DueDate,
		Assignee:    req.Assignee,
		Notes:       req.Notes,
	}, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(task)
}

func (c *TaskController) History(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	history, err := c.Engine.TaskHistory(ctx.UserContext(), id)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(history)
}

func (c *TaskController) Assign(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.AssignTaskRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	task, err := c.Engine.AssignTask(ctx.UserContext(), id, req.Assignee, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(task)
}

func (c *TaskController) Start(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	task, err := c.Engine.StartTask(ctx.UserContext(), id, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(task)
}

func (c *TaskController) Complete(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.CompleteTaskRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	result, err := c.Engine.CompleteTask(ctx.UserContext(), id, Lifecycle.CompleteInput{
		Photos:         req.Photos,
		FailedUploads:  req.FailedUploads,
		Notes:          req.Notes,
		Issue:          req.Issue,
		IdempotencyKey: idempotencyKey(ctx, req.IdempotencyKey),
	}, middleware.Actor(ctx))
	if err != nil {
		return c.fail(ctx, err)
	}
	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}
	return ctx.Status(status).JSON(result)
}

func (c *TaskController) Verify(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.ReviewRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	task, err := c.Engine.VerifyTask(ctx.UserContext(), id, middleware.Actor(ctx), req.Note)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(task)
}

func (c *TaskController) Reject(ctx *fiber.Ctx) error {
	return c.review(ctx, c.Engine.RejectTask)
}

func (c *TaskController) Unverify(ctx *fiber.Ctx) error {
	return c.review(ctx, c.Engine.UnverifyTask)
}

func (c *TaskController) Skip(ctx *fiber.Ctx) error {
	return c.review(ctx, c.Engine.SkipTask)
}

type reviewFunc func(ctx context.Context, taskID uint, actor, reason string) (*Models.MaintenanceTask, error)

// review runs a reason-carrying transition.
func (c *TaskController) review(ctx *fiber.Ctx, action reviewFunc) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	var req Models.ReviewRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	task, err := action(ctx.UserContext(), id, middleware.Actor(ctx), req.Reason)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(task)
}

func (c *TaskController) DeleteReport(ctx *fiber.Ctx) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return c.fail(ctx, err)
	}
	if err := c.Engine.DeleteReport(ctx.UserContext(), id, middleware.Actor(ctx)); err != nil {
		return c.fail(ctx, err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// Export streams the tasks of a date range and the issues opened in it as xlsx.
func (c *TaskController) Export(ctx *fiber.Ctx) error {
	from, to := ctx.Query("date_from"), ctx.Query("date_to")
	tasks, err := c.Engine.ListTasks(ctx.UserContext(), from, to, false)
	if err != nil {
		return c.fail(ctx, err)
	}
	all, err := c.Engine.ListIssues(ctx.UserContext(), Lifecycle.IssueFilter{})
	if err != nil {
		return c.fail(ctx, err)
	}

	tz := c.Engine.TimeZone()
	loc, err := Clock.Location(tz)
	if err != nil {
		return c.fail(ctx, err)
	}
	issues := make([]Models.Issue, 0, len(all))
	for _, issue := range all {
		opened, err := Clock.LocalDate(issue.CreatedAt, tz)
		if err != nil {
			return c.fail(ctx, err)
		}
		if opened >= from && opened <= to {
			issues = append(issues, issue)
		}
	}

	buf, err := Reports.Workbook(tasks, issues, loc)
	if err != nil {
		return c.fail(ctx, err)
	}
	ctx.Set(fiber.HeaderContentType, xlsxContentType)
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="tasks_%s_%s.xlsx"`, from, to))
	return ctx.Send(buf.Bytes())
}
