package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	billingUsecases "github.com/meterline/meterline/internal/application/billing/usecases"
	credentialUsecases "github.com/meterline/meterline/internal/application/credential/usecases"
	meteringUsecases "github.com/meterline/meterline/internal/application/metering/usecases"
	"github.com/meterline/meterline/internal/infrastructure/analytics"
	"github.com/meterline/meterline/internal/infrastructure/cache"
	"github.com/meterline/meterline/internal/infrastructure/config"
	"github.com/meterline/meterline/internal/infrastructure/repository"
	"github.com/meterline/meterline/internal/interfaces/http/handlers"
	"github.com/meterline/meterline/internal/shared/logger"

	billingDomain "github.com/meterline/meterline/internal/domain/billing"
	credentialDomain "github.com/meterline/meterline/internal/domain/credential"
	meteringDomain "github.com/meterline/meterline/internal/domain/metering"
)

// Container wires infrastructure, repositories, use cases and handlers for
// the HTTP surface. It owns the redis client and provides Shutdown for
// graceful termination.
type Container struct {
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	repos *repositories
	ucs   *allUseCases
	hdlrs *allHandlers
}

type repositories struct {
	subscriptionRepo billingDomain.SubscriptionRepository
	itemRepo         billingDomain.SubscriptionItemRepository
	planRepo         billingDomain.PlanVersionRepository
	invoiceRepo      billingDomain.InvoiceRepository
	apiKeyRepo       credentialDomain.APIKeyRepository
	usageEventRepo   meteringDomain.UsageEventRepository
	usageStatsRepo   meteringDomain.UsageStatsRepository
}

type allUseCases struct {
	resolveAPIKey *credentialUsecases.ResolveAPIKeyUseCase
	createAPIKey  *credentialUsecases.CreateAPIKeyUseCase
	revokeAPIKey  *credentialUsecases.RevokeAPIKeyUseCase

	createPlan     *billingUsecases.CreatePlanVersionUseCase
	listPlans      *billingUsecases.ListPlanVersionsUseCase
	deactivatePlan *billingUsecases.DeactivatePlanVersionUseCase
	createSub      *billingUsecases.CreateSubscriptionUseCase
	getSub         *billingUsecases.GetSubscriptionUseCase
	cancelSub      *billingUsecases.CancelSubscriptionUseCase
	billingStats   *billingUsecases.GetBillingStatsUseCase
	handleWebhook  *billingUsecases.HandlePaymentWebhookUseCase

	reportUsage        *meteringUsecases.ReportUsageUseCase
	resolveEntitlement *meteringUsecases.ResolveEntitlementUseCase
	getAggregatedUsage *meteringUsecases.GetAggregatedUsageUseCase
	getDailyUsage      *meteringUsecases.GetDailyUsageUseCase
}

type allHandlers struct {
	usage   *handlers.UsageHandler
	billing *handlers.BillingHandler
	apiKey  *handlers.APIKeyHandler
	webhook *handlers.WebhookHandler
}

// NewContainer builds the full HTTP dependency graph.
func NewContainer(db *gorm.DB, cfg *config.Config, log logger.Interface) *Container {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	c.redis = initRedis(cfg, log)

	c.repos = &repositories{
		subscriptionRepo: repository.NewSubscriptionRepository(db, log),
		itemRepo:         repository.NewSubscriptionItemRepository(db, log),
		planRepo:         repository.NewPlanVersionRepository(db, log),
		invoiceRepo:      repository.NewInvoiceRepository(db, log),
		apiKeyRepo:       repository.NewAPIKeyRepository(db, log),
		usageEventRepo:   repository.NewUsageEventRepository(db, log),
		usageStatsRepo:   repository.NewUsageStatsRepository(db, log),
	}

	apiKeyCache := cache.NewAPIKeyCache(
		c.redis,
		time.Duration(cfg.Credential.FreshTTLSeconds)*time.Second,
		time.Duration(cfg.Credential.StaleTTLSeconds)*time.Second,
	)
	entitlementCache := cache.NewEntitlementCache(c.redis)
	idempotencyStore := cache.NewIdempotencyStore(c.redis)

	usageSink := analytics.NewRedisStreamSink(c.redis, cfg.Analytics.StreamKey, int64(cfg.Analytics.BufferSize), log)
	usageReader := analytics.NewAggregateReader(c.repos.usageEventRepo)

	resolveEntitlementUC := meteringUsecases.NewResolveEntitlementUseCase(
		c.repos.subscriptionRepo, c.repos.itemRepo, c.repos.planRepo,
		usageReader, entitlementCache, log,
	)

	c.ucs = &allUseCases{
		resolveAPIKey: credentialUsecases.NewResolveAPIKeyUseCase(c.repos.apiKeyRepo, apiKeyCache, cfg.Credential.HashSecret, log),
		createAPIKey:  credentialUsecases.NewCreateAPIKeyUseCase(c.repos.apiKeyRepo, cfg.Credential.HashSecret, log),
		revokeAPIKey:  credentialUsecases.NewRevokeAPIKeyUseCase(c.repos.apiKeyRepo, log),

		createPlan:     billingUsecases.NewCreatePlanVersionUseCase(c.repos.planRepo, log),
		listPlans:      billingUsecases.NewListPlanVersionsUseCase(c.repos.planRepo, log),
		deactivatePlan: billingUsecases.NewDeactivatePlanVersionUseCase(c.repos.planRepo, log),
		createSub:      billingUsecases.NewCreateSubscriptionUseCase(c.repos.subscriptionRepo, c.repos.itemRepo, c.repos.planRepo, log),
		getSub:         billingUsecases.NewGetSubscriptionUseCase(c.repos.subscriptionRepo, log),
		cancelSub:      billingUsecases.NewCancelSubscriptionUseCase(c.repos.subscriptionRepo, entitlementCache, log),
		billingStats:   billingUsecases.NewGetBillingStatsUseCase(c.repos.subscriptionRepo, log),
		handleWebhook:  billingUsecases.NewHandlePaymentWebhookUseCase(c.repos.subscriptionRepo, c.repos.planRepo, c.repos.invoiceRepo, entitlementCache, log),

		resolveEntitlement: resolveEntitlementUC,
		reportUsage:        meteringUsecases.NewReportUsageUseCase(c.repos.usageEventRepo, resolveEntitlementUC, idempotencyStore, usageSink, log),
		getAggregatedUsage: meteringUsecases.NewGetAggregatedUsageUseCase(c.repos.usageEventRepo),
		getDailyUsage:      meteringUsecases.NewGetDailyUsageUseCase(c.repos.usageStatsRepo),
	}

	c.hdlrs = &allHandlers{
		usage:   handlers.NewUsageHandler(c.ucs.reportUsage, c.ucs.resolveEntitlement, c.ucs.getAggregatedUsage, c.ucs.getDailyUsage, log),
		billing: handlers.NewBillingHandler(c.ucs.createPlan, c.ucs.listPlans, c.ucs.deactivatePlan, c.ucs.createSub, c.ucs.getSub, c.ucs.cancelSub, c.ucs.billingStats, log),
		apiKey:  handlers.NewAPIKeyHandler(c.ucs.createAPIKey, c.ucs.revokeAPIKey, log),
		webhook: handlers.NewWebhookHandler(c.ucs.handleWebhook, cfg.Payment.WebhookSecret, log),
	}

	return c
}

// initRedis creates and tests the redis client connection.
func initRedis(cfg *config.Config, log logger.Interface) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	log.Infow("redis connection established")

	return client
}

// Shutdown releases container-owned resources.
func (c *Container) Shutdown() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warnw("failed to close redis client", "error", err)
		}
	}
}
