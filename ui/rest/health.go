package rest

import (
	"time"

	"github.com/AzielCF/az-post/pkg/msgworker"
	"github.com/AzielCF/az-post/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource exposes the running components for /status. Nil fields are reported as disabled.
type StatusSource struct {
	Version   string
	StartedAt time.Time
	Scheduler interface {
		Started() bool
		Busy() bool
	}
	Pool     *msgworker.Pool
	WhatsApp interface{ Connected() bool }
}

type Health struct {
	Source StatusSource
}

func InitRestHealth(app fiber.Router, source StatusSource, gatherer prometheus.Gatherer) Health {
	handler := Health{Source: source}
	app.Get("/healthz", handler.Healthz)
	app.Get("/status", handler.Status)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return handler
}

func (h *Health) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Health) Status(c *fiber.Ctx) error {
	s := h.Source
	results := fiber.Map{
		"version": s.Version,
		"uptime":  time.Since(s.StartedAt).Round(time.Second).String(),
	}
	if s.Scheduler != nil {
		results["scheduler"] = fiber.Map{"running": s.Scheduler.Started(), "busy": s.Scheduler.Busy()}
	} else {
		results["scheduler"] = fiber.Map{"running": false}
	}
	if s.Pool != nil {
		results["workers"] = s.Pool.Stats()
	}
	if s.WhatsApp != nil {
		results["whatsapp"] = fiber.Map{"connected": s.WhatsApp.Connected()}
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Service status",
		Results: results,
	})
}
