package rest

import (
	"strings"
	"time"

	"github.com/AzielCF/az-post/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
)

type Dependencies struct {
	Posts     PostService
	Scheduler SchedulerService
	Approvals ApprovalActions
	Inbound   Submitter
	Status    StatusSource
	Gatherer  prometheus.Gatherer
}

type Options struct {
	BasePath        string
	BasicAuth       map[string]string
	TwilioAuthToken string
	CorsOrigins     []string
	TrustedProxies  []string
	// Rehosted media is served from here under /public
	PublicDir string
	Debug     bool
}

// ParseBasicAuth reads "user:secret" pairs. Malformed entries are skipped.
func ParseBasicAuth(entries []string) map[string]string {
	accounts := make(map[string]string, len(entries))
	for _, entry := range entries {
		user, secret, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || user == "" || secret == "" {
			continue
		}
		accounts[user] = secret
	}
	return accounts
}

// NewApp builds the HTTP surface. Operator routes under /api require basic auth, except
// the approval actions which carry their own credential in the path.
func NewApp(deps Dependencies, opts Options) *fiber.App {
	cfg := fiber.Config{
		AppName:               "az-post",
		ServerHeader:          "Hidden",
		DisableStartupMessage: true,
		BodyLimit:             1 << 20,
	}
	if len(opts.TrustedProxies) > 0 {
		cfg.EnableTrustedProxyCheck = true
		cfg.TrustedProxies = opts.TrustedProxies
		cfg.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(cfg)

	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	if len(opts.CorsOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opts.CorsOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		}))
	}
	app.Use(helmet.New(helmet.Config{
		XFrameOptions:  "SAMEORIGIN",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	if opts.PublicDir != "" {
		app.Static(opts.BasePath+"/public", opts.PublicDir, fiber.Static{MaxAge: 3600})
	}

	root := app.Group(opts.BasePath)
	InitRestHealth(root, deps.Status, deps.Gatherer)
	if deps.Inbound != nil {
		InitRestWebhooks(root, deps.Inbound, opts.TwilioAuthToken)
	}

	api := root.Group("/api")
	approvalsPrefix := opts.BasePath + "/api/approvals/"
	api.Use(basicauth.New(basicauth.Config{
		Users: opts.BasicAuth,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || strings.HasPrefix(c.Path(), approvalsPrefix)
		},
	}))

	if deps.Approvals != nil {
		InitRestApprovals(root, api, deps.Approvals)
	}
	if deps.Posts != nil && deps.Scheduler != nil {
		InitRestPosts(api, deps.Posts, deps.Scheduler)
	}

	api.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API endpoint not found",
			"path":  c.Path(),
		})
	})
	return app
}
