package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	conversation "github.com/AzielCF/az-post/conversation/domain"
	coreconfig "github.com/AzielCF/az-post/core/config"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *coreconfig.Config {
	dir := t.TempDir()
	return &coreconfig.Config{
		App: coreconfig.AppConfig{
			Version:         "test",
			BaseUrl:         "http://localhost:3000",
			PublicBaseUrl:   "http://localhost:3000",
			DefaultTimezone: "UTC",
		},
		Paths: coreconfig.PathsConfig{
			BaseDir: dir,
			Public:  filepath.Join(dir, "public"),
			Mirror:  filepath.Join(dir, "posts.json"),
		},
		Database:   coreconfig.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(dir, "db", "test.db")},
		Scheduler:  coreconfig.SchedulerConfig{Enabled: true, Interval: time.Minute, MaxRecoveryRetries: 3, DefaultSpacingMin: 20, DefaultSpacingMax: 45},
		Session:    coreconfig.SessionConfig{Backend: "memory", TTL: time.Hour},
		Mirror:     coreconfig.MirrorConfig{Backend: "file", PollInterval: time.Second, BatchSize: 10},
		Approval:   coreconfig.ApprovalConfig{TokenTTL: time.Hour},
		Captions:   coreconfig.CaptionsConfig{SecondaryCTA: "Book via link in bio.", MaxLength: 2200},
		AI:         coreconfig.AIConfig{CaptionProvider: "gemini", Timeout: time.Second},
		WorkerPool: coreconfig.WorkerPoolConfig{Size: 2, QueueSize: 4},
	}
}

func TestBuildApplication_WithoutCaptionProvider(t *testing.T) {
	ctx := context.Background()
	app, err := buildApplication(ctx, testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.migrate(ctx))

	assert.NotNil(t, app.engine)
	assert.NotNil(t, app.relay, "file mirror is the default backend")
	assert.Nil(t, app.whatsapp)
	assert.Nil(t, app.router.Twilio)
	assert.Nil(t, app.machine, "inbound flow needs a caption provider")
	assert.False(t, app.submit(conversation.InboundEvent{ConversationID: "+15550001", Channel: "twilio"}))
}

func TestBuildApplication_OpenAIFallback(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.APIKeys.OpenAI = "sk-test"
	cfg.Mirror.Backend = "none"

	app, err := buildApplication(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.machine)
	assert.NotNil(t, app.ingress)
	assert.Nil(t, app.relay)
}

func TestMigrate_TenantRoundTrip(t *testing.T) {
	ctx := context.Background()
	app, err := buildApplication(ctx, testConfig(t))
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, app.migrate(ctx))

	require.NoError(t, app.tenants.Save(ctx, &tenants.Tenant{
		ID:             "salon-1",
		Name:           "Salon One",
		Timezone:       "America/Chicago",
		PostingStart:   "10:00",
		PostingEnd:     "18:00",
		FacebookPageID: "123",
	}))

	policy, err := app.policies.Get(ctx, "salon-1")
	require.NoError(t, err)
	assert.Equal(t, "salon-1", policy.TenantID)
	assert.Equal(t, "America/Chicago", policy.Location.String())
}
