package Controllers

import (
	"context"

	"Pitstop/Lifecycle"
	"Pitstop/Models"
	"Pitstop/Notifications"
	"Pitstop/middleware"

	"github.com/gofiber/fiber/v2"
)

// DigestRunner publishes the digest immediately. Implemented by CronJobs.DigestScheduler.
type DigestRunner interface {
	RunNow(ctx context.Context) (*Lifecycle.Digest, error)
}

type SystemController struct {
	*Handler
	Venue  string
	Digest DigestRunner
}

func NewSystemController(h *Handler, venue string, digest DigestRunner) *SystemController {
	return &SystemController{Handler: h, Venue: venue, Digest: digest}
}

// RegisterToken stores the caller's push token.
func (c *SystemController) RegisterToken(ctx *fiber.Ctx) error {
	var req Models.UpdateTokenRequest
	if err := c.bind(ctx, &req); err != nil {
		return c.fail(ctx, err)
	}
	token, err := Notifications.RegisterToken(ctx.UserContext(), c.Engine.DB, middleware.Actor(ctx), req.Value)
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(token)
}

func (c *SystemController) PreviewDigest(ctx *fiber.Ctx) error {
	digest, err := c.Engine.BuildDigest(ctx.UserContext())
	if err != nil {
		return c.fail(ctx, err)
	}
	return ctx.JSON(fiber.Map{
		"digest": digest,
		"text":   digest.Render(c.Venue),
	})
}

func (c *SystemController) RunDigest(ctx *fiber.Ctx) error {
	if c.Digest == nil {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "digest_disabled",
			"message": "No digest publisher is configured",
		})
	}
	digest, err := c.Digest.RunNow(ctx.UserContext())
	if digest == nil && err != nil {
		return c.fail(ctx, err)
	}
	if err != nil {
		// Built but at least one publisher failed.
		return c.fail(ctx, Models.DependencyFailure("digest publisher", err))
	}
	return ctx.JSON(digest)
}
