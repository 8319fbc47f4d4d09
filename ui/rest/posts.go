package rest

import (
	"context"

	"github.com/AzielCF/az-post/pkg/utils"
	posts "github.com/AzielCF/az-post/posts/domain"
	scheduler "github.com/AzielCF/az-post/scheduler/domain"
	"github.com/AzielCF/az-post/validations"
	"github.com/gofiber/fiber/v2"
)

type PostService interface {
	Get(ctx context.Context, id string) (*posts.Post, error)
	List(ctx context.Context, req posts.ListRequest) ([]*posts.Post, error)
	Cancel(ctx context.Context, id string) (*posts.Post, error)
}

type SchedulerService interface {
	Tick(ctx context.Context) scheduler.TickReport
	Retry(ctx context.Context, postID string) (*posts.Post, error)
}

type Posts struct {
	Service   PostService
	Scheduler SchedulerService
}

func InitRestPosts(app fiber.Router, service PostService, sched SchedulerService) Posts {
	handler := Posts{Service: service, Scheduler: sched}
	app.Get("/posts", handler.List)
	app.Get("/posts/:id", handler.Get)
	app.Post("/posts/:id/cancel", handler.Cancel)
	app.Post("/posts/:id/retry", handler.Retry)
	app.Post("/scheduler/tick", handler.Tick)
	return handler
}

func (h *Posts) List(c *fiber.Ctx) error {
	var request posts.ListRequest
	parseErr(c.QueryParser(&request))
	panicIfNeeded(validations.ValidateListPosts(c.UserContext(), request))

	list, err := h.Service.List(c.UserContext(), request)
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Posts retrieved",
		Results: list,
	})
}

func (h *Posts) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	panicIfNeeded(validations.ValidatePostID(c.UserContext(), id))

	post, err := h.Service.Get(c.UserContext(), id)
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post retrieved",
		Results: post,
	})
}

func (h *Posts) Cancel(c *fiber.Ctx) error {
	post, err := h.Service.Cancel(c.UserContext(), c.Params("id"))
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post cancelled",
		Results: post,
	})
}

func (h *Posts) Retry(c *fiber.Ctx) error {
	post, err := h.Scheduler.Retry(c.UserContext(), c.Params("id"))
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post re-enqueued",
		Results: post,
	})
}

func (h *Posts) Tick(c *fiber.Ctx) error {
	report := h.Scheduler.Tick(c.UserContext())
	message := "Scheduler tick completed"
	if report.Skipped {
		message = "Scheduler tick skipped, another pass is running"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: report,
	})
}
