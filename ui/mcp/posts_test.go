package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	posts "github.com/AzielCF/az-post/posts/domain"
	scheduler "github.com/AzielCF/az-post/scheduler/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPosts struct {
	lastReq posts.ListRequest
}

func (s *stubPosts) Get(_ context.Context, id string) (*posts.Post, error) {
	if id == "p1" {
		return &posts.Post{ID: "p1", Status: posts.StatusQueued}, nil
	}
	return nil, posts.ErrPostNotFound
}

func (s *stubPosts) List(_ context.Context, req posts.ListRequest) ([]*posts.Post, error) {
	s.lastReq = req
	return []*posts.Post{{ID: "p1"}, {ID: "p2"}}, nil
}

type stubScheduler struct{}

func (stubScheduler) Tick(context.Context) scheduler.TickReport {
	return scheduler.TickReport{Tenants: 2, Results: []scheduler.PostResult{
		{PostID: "a", Outcome: scheduler.OutcomePublished},
		{PostID: "b", Outcome: scheduler.OutcomeDeferred},
	}}
}

func (stubScheduler) Retry(_ context.Context, id string) (*posts.Post, error) {
	if id != "parked" {
		return nil, fmt.Errorf("retry: %w", scheduler.ErrNotRetryable)
	}
	at := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	return &posts.Post{ID: id, Status: posts.StatusManagerApproved, ScheduledFor: &at}, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestPostTools(t *testing.T) {
	ctx := context.Background()
	sp := &stubPosts{}
	h := InitMcpPosts(sp, stubScheduler{})

	res, err := h.handleListPosts(ctx, call(map[string]any{"tenant_id": "salon-a", "status": "failed", "limit": float64(5)}))
	require.NoError(t, err)
	assert.Equal(t, "Found 2 posts", text(t, res))
	assert.Equal(t, posts.ListRequest{TenantID: "salon-a", Status: "failed", Limit: 5}, sp.lastReq)

	res, err = h.handleListPosts(ctx, call(map[string]any{"status": "lost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.handleGetPost(ctx, call(map[string]any{"post_id": "p1"}))
	require.NoError(t, err)
	assert.Equal(t, "Post p1 is queued", text(t, res))

	res, err = h.handleGetPost(ctx, call(map[string]any{"post_id": "zzz"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	_, err = h.handleGetPost(ctx, call(map[string]any{}))
	assert.Error(t, err)
}

func TestRetryAndTickTools(t *testing.T) {
	ctx := context.Background()
	h := InitMcpPosts(&stubPosts{}, stubScheduler{})

	res, err := h.handleRetryPost(ctx, call(map[string]any{"post_id": "parked"}))
	require.NoError(t, err)
	assert.Equal(t, "Post parked re-enqueued for 2026-03-02 15:30 UTC", text(t, res))

	res, err = h.handleRetryPost(ctx, call(map[string]any{"post_id": "p1"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = h.handleTick(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, "Tick over 2 tenants: 1 published, 1 deferred, 0 failed, 0 parked", text(t, res))
}
