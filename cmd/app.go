package cmd

import (
	"context"
	"fmt"
	"time"

	approvalApp "github.com/AzielCF/az-post/approval/application"
	approvalRepo "github.com/AzielCF/az-post/approval/repository"
	conversationApp "github.com/AzielCF/az-post/conversation/application"
	conversation "github.com/AzielCF/az-post/conversation/domain"
	conversationRepo "github.com/AzielCF/az-post/conversation/repository"
	coreconfig "github.com/AzielCF/az-post/core/config"
	coreDB "github.com/AzielCF/az-post/core/database"
	identityApp "github.com/AzielCF/az-post/identity/application"
	identityRepo "github.com/AzielCF/az-post/identity/repository"
	"github.com/AzielCF/az-post/infrastructure/media"
	"github.com/AzielCF/az-post/infrastructure/messaging"
	"github.com/AzielCF/az-post/infrastructure/twilio"
	"github.com/AzielCF/az-post/infrastructure/valkey"
	"github.com/AzielCF/az-post/infrastructure/whatsapp"
	"github.com/AzielCF/az-post/integrations/gemini"
	"github.com/AzielCF/az-post/integrations/meta"
	"github.com/AzielCF/az-post/integrations/openai"
	"github.com/AzielCF/az-post/pkg/crypto"
	"github.com/AzielCF/az-post/pkg/msgworker"
	postsApp "github.com/AzielCF/az-post/posts/application"
	posts "github.com/AzielCF/az-post/posts/domain"
	postsRepo "github.com/AzielCF/az-post/posts/repository"
	schedulerApp "github.com/AzielCF/az-post/scheduler/application"
	tenantsApp "github.com/AzielCF/az-post/tenants/application"
	tenantsRepo "github.com/AzielCF/az-post/tenants/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	policyCacheTTL     = 5 * time.Minute
	credentialPurgeGap = time.Hour
)

// application is the wired object graph shared by every subcommand.
type application struct {
	cfg       *coreconfig.Config
	startedAt time.Time

	db     *gorm.DB
	valkey *valkey.Client

	tenants     *tenantsRepo.TenantGormRepository
	policies    *tenantsApp.PolicyProvider
	identityDB  *identityRepo.IdentityGormRepository
	identities  *identityApp.Resolver
	credentials *approvalRepo.CredentialGormRepository
	issuer      *approvalApp.Issuer
	postsDB     *postsRepo.PostGormRepository
	postService *postsApp.Service

	media    *media.Store
	twilio   *twilio.Client
	whatsapp *whatsapp.Client
	router   *messaging.Router

	registry *prometheus.Registry
	engine   *schedulerApp.Engine
	relay    *postsApp.OutboxRelay

	// Conversation side, nil when no caption provider is configured
	machine *conversationApp.Machine
	pool    *msgworker.Pool
	ingress *conversationApp.Ingress

	closers []func()
}

// buildApplication connects storage and assembles every component from cfg.
func buildApplication(ctx context.Context, cfg *coreconfig.Config) (*application, error) {
	a := &application{cfg: cfg, startedAt: time.Now()}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if cfg.Valkey.Enabled {
		client, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("valkey: %w", err)
		}
		a.valkey = client
		a.closers = append(a.closers, client.Close)
		logrus.Infof("[VALKEY] connected to %s", cfg.Valkey.Address)
	}

	sealer, err := crypto.NewSealer(cfg.Security.SecretKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("sealer: %w", err)
	}
	if cfg.Security.SecretKey == "" {
		logrus.Warn("[CONFIG] APP_SECRET_KEY is empty, page tokens are stored unsealed")
	}

	a.tenants = tenantsRepo.NewTenantGormRepository(db, sealer)
	defaults := tenantsApp.DefaultPolicyDefaults()
	defaults.Timezone = cfg.App.DefaultTimezone
	defaults.SpacingMin = cfg.Scheduler.DefaultSpacingMin
	defaults.SpacingMax = cfg.Scheduler.DefaultSpacingMax
	a.policies = tenantsApp.NewPolicyProvider(a.tenants, defaults, policyCacheTTL)

	a.identityDB = identityRepo.NewIdentityGormRepository(db)
	a.identities = identityApp.NewResolver(a.identityDB)
	a.credentials = approvalRepo.NewCredentialGormRepository(db)
	a.issuer = approvalApp.NewIssuer(a.credentials, cfg.App.BaseUrl, cfg.Approval.TokenTTL)
	a.postsDB = postsRepo.NewPostGormRepository(db)
	a.postService = postsApp.NewService(a.postsDB)

	a.media = media.NewStore(media.Config{
		PublicDir:        cfg.Paths.Public,
		PublicBaseURL:    cfg.App.PublicBaseUrl + cfg.App.BasePath,
		TwilioAccountSID: cfg.Twilio.AccountSID,
		TwilioAuthToken:  cfg.Twilio.AuthToken,
	})

	a.buildMessaging()
	a.buildScheduler()
	a.buildRelay()
	if err := a.buildConversation(ctx); err != nil {
		logrus.Warnf("[CONVERSATION] inbound flow disabled: %v", err)
	}
	return a, nil
}

func (a *application) buildMessaging() {
	cfg := a.cfg
	a.twilio = twilio.NewClient(twilio.Config{
		AccountSID:          cfg.Twilio.AccountSID,
		AuthToken:           cfg.Twilio.AuthToken,
		FromNumber:          cfg.Twilio.FromNumber,
		MessagingServiceSID: cfg.Twilio.MessagingServiceSID,
		BaseURL:             cfg.Twilio.BaseURL,
	})

	a.router = &messaging.Router{}
	if a.twilio.Configured() {
		a.router.Twilio = a.twilio
	} else {
		logrus.Warn("[TWILIO] credentials not configured, SMS replies disabled")
	}

	if cfg.Whatsapp.Enabled {
		a.whatsapp = whatsapp.NewClient(whatsapp.Config{
			StoreURI: cfg.Whatsapp.StoreURI,
			LogLevel: cfg.Whatsapp.LogLevel,
		}, a.media, a.submit)
		a.router.WhatsApp = a.whatsapp
	}
}

func (a *application) buildScheduler() {
	cfg := a.cfg
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	graph := meta.Config{
		BaseURL:      cfg.Meta.GraphBaseURL,
		Timeout:      cfg.Meta.HTTPTimeout,
		PollInterval: cfg.Meta.ContainerPollInterval,
		PollTimeout:  cfg.Meta.ContainerPollTimeout,
	}
	fbCfg, igCfg := graph, graph
	fbCfg.Version = cfg.Meta.FacebookGraphVersion
	igCfg.Version = cfg.Meta.InstagramGraphVersion

	deps := schedulerApp.Dependencies{
		Posts:     a.postsDB,
		Policies:  a.policies,
		Primary:   meta.NewFacebookClient(fbCfg),
		Secondary: meta.NewInstagramClient(igCfg),
		Rehoster:  a.media,
		Notifier:  a.router,
		Metrics:   schedulerApp.NewMetrics(a.registry),
	}
	if cfg.Scheduler.DistributedLock && a.valkey != nil {
		deps.Locker = valkey.NewLocker(a.valkey)
	}
	a.engine = schedulerApp.NewEngine(deps, schedulerApp.Options{
		Interval:           cfg.Scheduler.Interval,
		ForcePostNow:       cfg.Scheduler.ForcePostNow,
		IgnoreWindow:       cfg.Scheduler.IgnoreWindow,
		MaxRecoveryRetries: cfg.Scheduler.MaxRecoveryRetries,
	})
}

func (a *application) buildRelay() {
	var mirror posts.Mirror
	switch a.cfg.Mirror.Backend {
	case "file":
		mirror = postsRepo.NewFileMirror(a.cfg.Paths.Mirror)
	case "valkey":
		if a.valkey == nil {
			logrus.Warn("[MIRROR] valkey mirror requested but VALKEY_ENABLED is false, mirror disabled")
			return
		}
		mirror = postsRepo.NewValkeyMirror(a.valkey)
	default:
		return
	}
	a.relay = postsApp.NewOutboxRelay(a.postsDB, mirror, postsApp.RelayOptions{
		Interval:    a.cfg.Mirror.PollInterval,
		BatchSize:   a.cfg.Mirror.BatchSize,
		MaxAttempts: a.cfg.Mirror.MaxAttempts,
		Retention:   a.cfg.Mirror.Retention,
	})
}

func (a *application) buildConversation(ctx context.Context) error {
	cfg := a.cfg

	captioner, err := a.newCaptioner(ctx)
	if err != nil {
		return err
	}

	var moderator conversation.Moderator = openai.Permissive{}
	if cfg.APIKeys.OpenAI != "" {
		moderator = openai.NewModerator(openai.Config{APIKey: cfg.APIKeys.OpenAI})
	} else {
		logrus.Warn("[MODERATION] OPENAI_API_KEY is empty, captions are not screened")
	}

	var sessions conversation.SessionStore
	if cfg.Session.Backend == "valkey" && a.valkey != nil {
		sessions = conversationRepo.NewValkeySessionStore(a.valkey)
	} else {
		mem := conversationRepo.NewMemorySessionStore()
		a.closers = append(a.closers, mem.Close)
		sessions = mem
	}

	a.machine = conversationApp.NewMachine(conversationApp.Dependencies{
		Identities: a.identities,
		Policies:   a.policies,
		Posts:      a.postsDB,
		Sessions:   sessions,
		Issuer:     a.issuer,
		Captioner:  captioner,
		Moderator:  moderator,
		Messenger:  a.router,
		Enqueuer:   a.engine,
	}, conversationApp.Options{
		SessionTTL:     cfg.Session.TTL,
		CaptionTimeout: cfg.AI.Timeout,
		SecondaryCTA:   cfg.Captions.SecondaryCTA,
		MaxCaptionLen:  cfg.Captions.MaxLength,
	})
	a.pool = msgworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	a.ingress = conversationApp.NewIngress(a.pool, a.machine)
	return nil
}

func (a *application) newCaptioner(ctx context.Context) (conversation.Captioner, error) {
	cfg := a.cfg
	useOpenAI := cfg.AI.CaptionProvider == "openai" || (cfg.APIKeys.Gemini == "" && cfg.APIKeys.OpenAI != "")
	if useOpenAI {
		return openai.NewCaptioner(openai.Config{APIKey: cfg.APIKeys.OpenAI, Model: cfg.AI.OpenAIModel}, a.media)
	}
	return gemini.NewCaptioner(ctx, gemini.Config{APIKey: cfg.APIKeys.Gemini, Model: cfg.AI.GeminiModel}, a.media)
}

// submit hands an inbound event to the per-conversation worker pool.
func (a *application) submit(ev conversation.InboundEvent) bool {
	if a.ingress == nil {
		logrus.Warnf("[INGRESS] dropping %s message from %s: inbound flow disabled", ev.Channel, ev.ConversationID)
		return false
	}
	return a.ingress.Submit(ev)
}

// migrate creates or updates every table the engine owns.
func (a *application) migrate(ctx context.Context) error {
	schemas := []struct {
		name string
		init func(context.Context) error
	}{
		{"tenants", a.tenants.InitSchema},
		{"identities", a.identityDB.InitSchema},
		{"credentials", a.credentials.InitSchema},
		{"posts", a.postsDB.InitSchema},
	}
	for _, s := range schemas {
		if err := s.init(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", s.name, err)
		}
		logrus.Debugf("[MIGRATE] %s schema ready", s.name)
	}
	return nil
}

// startWorkers runs the background side: inbound pool, WhatsApp device, outbox relay,
// credential purge and, when enabled, the scheduler loop.
func (a *application) startWorkers(ctx context.Context, withScheduler bool) {
	if a.pool != nil {
		a.pool.Start(ctx)
	}
	if a.whatsapp != nil {
		if err := a.whatsapp.Start(ctx); err != nil {
			logrus.Errorf("[WHATSAPP] failed to start: %v", err)
		}
	}
	if a.relay != nil {
		go a.relay.Run(ctx)
	}
	go a.purgeCredentials(ctx)

	if !withScheduler || !a.cfg.Scheduler.Enabled {
		return
	}
	if n, err := a.engine.Recover(ctx); err != nil {
		logrus.Errorf("[SCHEDULER] recovery sweep failed: %v", err)
	} else if n > 0 {
		logrus.Infof("[SCHEDULER] recovery sweep requeued %d posts", n)
	}
	a.engine.Start(ctx)
}

func (a *application) purgeCredentials(ctx context.Context) {
	ticker := time.NewTicker(credentialPurgeGap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.issuer.PurgeExpired(ctx); err != nil {
				logrus.Warnf("[APPROVAL] purge failed: %v", err)
			} else if n > 0 {
				logrus.Debugf("[APPROVAL] purged %d expired credentials", n)
			}
		}
	}
}

// Close stops background work then releases storage, in reverse build order.
func (a *application) Close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.whatsapp != nil {
		a.whatsapp.Stop()
	}
	if a.pool != nil {
		a.pool.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
