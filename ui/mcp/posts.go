package mcp

import (
	"context"
	"errors"
	"fmt"

	posts "github.com/AzielCF/az-post/posts/domain"
	scheduler "github.com/AzielCF/az-post/scheduler/domain"
	"github.com/AzielCF/az-post/validations"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type PostService interface {
	Get(ctx context.Context, id string) (*posts.Post, error)
	List(ctx context.Context, req posts.ListRequest) ([]*posts.Post, error)
}

type SchedulerService interface {
	Tick(ctx context.Context) scheduler.TickReport
	Retry(ctx context.Context, postID string) (*posts.Post, error)
}

type PostHandler struct {
	posts     PostService
	scheduler SchedulerService
}

func InitMcpPosts(postService PostService, sched SchedulerService) *PostHandler {
	return &PostHandler{posts: postService, scheduler: sched}
}

func (h *PostHandler) AddPostTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListPosts(), h.handleListPosts)
	mcpServer.AddTool(h.toolGetPost(), h.handleGetPost)
	mcpServer.AddTool(h.toolRetryPost(), h.handleRetryPost)
	mcpServer.AddTool(h.toolTick(), h.handleTick)
}

func (h *PostHandler) toolListPosts() mcp.Tool {
	return mcp.NewTool(
		"posts_list",
		mcp.WithDescription("List posts, newest first, optionally filtered by tenant and status."),
		mcp.WithTitleAnnotation("List Posts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("tenant_id", mcp.Description("Only posts of this tenant.")),
		mcp.WithString("status",
			mcp.Description("Comma separated statuses, e.g. failed or manager_approved,queued."),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of posts (default 50, max 500).")),
	)
}

func (h *PostHandler) handleListPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := posts.ListRequest{
		TenantID: request.GetString("tenant_id", ""),
		Status:   request.GetString("status", ""),
		Limit:    request.GetInt("limit", 50),
	}
	if err := validations.ValidateListPosts(ctx, req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := h.posts.List(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(map[string]any{"posts": list}, fmt.Sprintf("Found %d posts", len(list))), nil
}

func (h *PostHandler) toolGetPost() mcp.Tool {
	return mcp.NewTool(
		"post_get",
		mcp.WithDescription("Fetch one post with its captions, schedule, retry count and platform ids."),
		mcp.WithTitleAnnotation("Get Post"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("post_id", mcp.Description("The post id."), mcp.Required()),
	)
}

func (h *PostHandler) handleGetPost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	post, err := h.posts.Get(ctx, id)
	if errors.Is(err, posts.ErrPostNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("post %s not found", id)), nil
	}
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(post, fmt.Sprintf("Post %s is %s", post.ID, post.Status)), nil
}

func (h *PostHandler) toolRetryPost() mcp.Tool {
	return mcp.NewTool(
		"post_retry",
		mcp.WithDescription("Re-enqueue a failed post after its tenant credentials were fixed. Resets the retry counter."),
		mcp.WithTitleAnnotation("Retry Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("post_id", mcp.Description("The failed post id."), mcp.Required()),
	)
}

func (h *PostHandler) handleRetryPost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	post, err := h.scheduler.Retry(ctx, id)
	if errors.Is(err, scheduler.ErrNotRetryable) || errors.Is(err, posts.ErrPostNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, err
	}
	when := "soon"
	if post.ScheduledFor != nil {
		when = post.ScheduledFor.UTC().Format("2006-01-02 15:04 MST")
	}
	return mcp.NewToolResultStructured(post, fmt.Sprintf("Post %s re-enqueued for %s", post.ID, when)), nil
}

func (h *PostHandler) toolTick() mcp.Tool {
	return mcp.NewTool(
		"scheduler_tick",
		mcp.WithDescription("Run one scheduler pass now: publish due posts inside their posting window and report per-post outcomes."),
		mcp.WithTitleAnnotation("Run Scheduler Tick"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
	)
}

func (h *PostHandler) handleTick(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := h.scheduler.Tick(ctx)
	if report.Skipped {
		return mcp.NewToolResultStructured(report, "Tick skipped: another pass is running"), nil
	}
	fallback := fmt.Sprintf("Tick over %d tenants: %d published, %d deferred, %d failed, %d parked",
		report.Tenants,
		report.Count(scheduler.OutcomePublished),
		report.Count(scheduler.OutcomeDeferred),
		report.Count(scheduler.OutcomeFailed),
		report.Count(scheduler.OutcomeParked))
	return mcp.NewToolResultStructured(report, fallback), nil
}
