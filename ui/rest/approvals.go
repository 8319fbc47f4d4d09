package rest

import (
	"context"
	"strings"

	pkgError "github.com/AzielCF/az-post/pkg/error"
	"github.com/AzielCF/az-post/pkg/utils"
	posts "github.com/AzielCF/az-post/posts/domain"
	"github.com/AzielCF/az-post/validations"
	"github.com/gofiber/fiber/v2"
)

// ApprovalActions are the web actions an approval link grants.
type ApprovalActions interface {
	Preview(ctx context.Context, token string) (*posts.Post, error)
	ApproveFromWeb(ctx context.Context, token, postID string) (*posts.Post, error)
	DenyFromWeb(ctx context.Context, token, postID, reason string) (*posts.Post, error)
}

type Approvals struct {
	Actions ApprovalActions
}

// InitRestApprovals registers the token-authenticated routes. login is mounted at the
// application root, api under the API prefix.
func InitRestApprovals(login, api fiber.Router, actions ApprovalActions) Approvals {
	handler := Approvals{Actions: actions}
	login.Get("/manager/login", handler.Login)
	api.Post("/approvals/:token/approve", handler.Approve)
	api.Post("/approvals/:token/deny", handler.Deny)
	return handler
}

func tokenOf(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		utils.PanicIfNeeded(pkgError.UnauthorizedError("approval token is required"))
	}
	return token
}

func (h *Approvals) Login(c *fiber.Ctx) error {
	post, err := h.Actions.Preview(c.UserContext(), tokenOf(c))
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Approval link verified",
		Results: post,
	})
}

func (h *Approvals) Approve(c *fiber.Ctx) error {
	post, err := h.Actions.ApproveFromWeb(c.UserContext(), tokenOf(c), c.Query("post_id"))
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post approved",
		Results: post,
	})
}

func (h *Approvals) Deny(c *fiber.Ctx) error {
	token := tokenOf(c)
	var request posts.DenyRequest
	parseErr(c.BodyParser(&request))
	panicIfNeeded(validations.ValidateDeny(c.UserContext(), request))

	post, err := h.Actions.DenyFromWeb(c.UserContext(), token, c.Query("post_id"), strings.TrimSpace(request.Reason))
	panicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Post denied",
		Results: post,
	})
}
