package Controllers

import (
	"errors"
	"strconv"

	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// Handler is shared by every controller. It carries the engine and the
// request plumbing that turns lifecycle errors into HTTP responses.
type Handler struct {
	Engine    *Lifecycle.Engine
	Log       *zap.Logger
	Validator *Validator
}

func NewHandler(engine *Lifecycle.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Log: log, Validator: NewValidator()}
}

func statusFor(kind Models.ErrorKind) int {
	switch kind {
	case Models.KindValidation:
		return fiber.StatusBadRequest
	case Models.KindConflict:
		return fiber.StatusConflict
	case Models.KindNotFound:
		return fiber.StatusNotFound
	case Models.KindDependency:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err in the {"error","message"} shape.
func (h *Handler) fail(ctx *fiber.Ctx, err error) error {
	var lerr *Models.Error
	if errors.As(err, &lerr) {
		return ctx.Status(statusFor(lerr.Kind)).JSON(fiber.Map{
			"error":   lerr.Code,
			"message": lerr.Message,
		})
	}
	h.Log.Error("request failed",
		zap.String("method", ctx.Method()),
		zap.String("path", ctx.Path()),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.Error(err),
	)
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal",
		"message": "Internal server error",
	})
}

func badRequest(code, message string) *Models.Error {
	return &Models.Error{Kind: Models.KindValidation, Code: code, Message: message}
}

func paramID(ctx *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid_id", "Invalid "+name)
	}
	return uint(id), nil
}

// bind parses the JSON body into dst and validates it.
func (h *Handler) bind(ctx *fiber.Ctx, dst interface{}) error {
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(dst); err != nil {
			return badRequest("invalid_body", err.Error())
		}
	}
	return h.Validator.Struct(dst)
}

func queryBool(ctx *fiber.Ctx, key string) (bool, error) {
	raw := ctx.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("invalid_query", key+" must be true or false")
	}
	return v, nil
}

// idempotencyKey prefers the header over the body field.
func idempotencyKey(ctx *fiber.Ctx, fromBody string) string {
	if key := ctx.Get(idempotencyHeader); key != "" {
		return key
	}
	return fromBody
}

func (h *Handler) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{
		"status":    "ok",
		"time_zone": h.Engine.TimeZone(),
		"today":     h.Engine.Today(),
	})
}
