package FiberConfig

import (
	"errors"

	"Pitstop/Controllers"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Handlers groups every controller the router mounts.
type Handlers struct {
	Tasks     *Controllers.TaskController
	Equipment *Controllers.EquipmentController
	Issues    *Controllers.IssueController
	System    *Controllers.SystemController
}

func NewHandlers(h *Controllers.Handler, venue string, digest Controllers.DigestRunner) *Handlers {
	return &Handlers{
		Tasks:     Controllers.NewTaskController(h),
		Equipment: Controllers.NewEquipmentController(h),
		Issues:    Controllers.NewIssueController(h),
		System:    Controllers.NewSystemController(h, venue, digest),
	}
}

// NewApp builds the fiber app with the shared middleware stack.
func NewApp(log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "pitstop",
		ErrorHandler: errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(log))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
		MaxAge:       300,
	}))
	return app
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error",
				zap.String("path", c.Path()),
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   "http_error",
			"message": message,
		})
	}
}

// SetupRoutes mounts the API. Levels: 1 staff, 2 reviewer, 3 admin.
func SetupRoutes(app *fiber.App, h *Handlers, auth *middleware.Auth) {
	api := app.Group("/api")
	api.Get("/health", h.System.Health)

	staff := auth.Verify(middleware.Staff)
	reviewer := auth.Verify(middleware.Reviewer)
	admin := auth.Verify(middleware.Admin)

	api.Post("/plan/ensure", staff, h.Tasks.EnsurePlan)

	// Static paths before /:id.
	tasks := api.Group("/tasks", staff)
	tasks.Get("/", h.Tasks.ListTasks)
	tasks.Post("/", reviewer, h.Tasks.CreateTask)
	tasks.Get("/export", reviewer, h.Tasks.Export)
	tasks.Get("/:id/history", h.Tasks.History)
	tasks.Post("/:id/assign", h.Tasks.Assign)
	tasks.Post("/:id/start", h.Tasks.Start)
	tasks.Post("/:id/complete", h.Tasks.Complete)
	tasks.Post("/:id/verify", reviewer, h.Tasks.Verify)
	tasks.Post("/:id/reject", reviewer, h.Tasks.Reject)
	tasks.Post("/:id/unverify", reviewer, h.Tasks.Unverify)
	tasks.Post("/:id/skip", reviewer, h.Tasks.Skip)
	tasks.Delete("/:id", reviewer, h.Tasks.DeleteReport)

	equipment := api.Group("/equipment", staff)
	equipment.Get("/", h.Equipment.List)
	equipment.Get("/due", h.Equipment.Due)
	equipment.Get("/:id", h.Equipment.Get)
	equipment.Put("/:id/maintenance", admin, h.Equipment.SetMaintenance)
	equipment.Put("/:id/maintenance/enabled", admin, h.Equipment.SetMaintenanceEnabled)
	equipment.Post("/:id/move", h.Equipment.Move)
	equipment.Post("/:id/storage", h.Equipment.Storage)
	equipment.Post("/:id/deactivate", admin, h.Equipment.Deactivate)
	equipment.Get("/:id/placements", h.Equipment.Placements)

	zones := api.Group("/zones", staff)
	zones.Get("/", h.Equipment.ListZones)
	zones.Put("/:id/assign", admin, h.Equipment.AssignZone)
	zones.Delete("/:id", admin, h.Equipment.DeleteZone)
	api.Put("/workstations/:id/assign", admin, h.Equipment.AssignWorkstation)

	issues := api.Group("/issues", staff)
	issues.Post("/", h.Issues.Open)
	issues.Get("/", h.Issues.List)
	issues.Get("/:id", h.Issues.Get)
	issues.Post("/:id/status", h.Issues.ChangeStatus)
	issues.Post("/:id/assign", h.Issues.Assign)
	issues.Post("/:id/severity", h.Issues.ChangeSeverity)
	issues.Post("/:id/resolve", h.Issues.Resolve)
	issues.Post("/:id/comments", h.Issues.AddComment)
	issues.Get("/:id/comments", h.Issues.Comments)

	api.Post("/notifications/token", staff, h.System.RegisterToken)
	api.Get("/digest", reviewer, h.System.PreviewDigest)
	api.Post("/digest/run", admin, h.System.RunDigest)
}
