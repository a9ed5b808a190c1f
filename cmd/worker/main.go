package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	billingUsecases "github.com/meterline/meterline/internal/application/billing/usecases"
	meteringUsecases "github.com/meterline/meterline/internal/application/metering/usecases"
	"github.com/meterline/meterline/internal/infrastructure/analytics"
	"github.com/meterline/meterline/internal/infrastructure/cache"
	"github.com/meterline/meterline/internal/infrastructure/config"
	"github.com/meterline/meterline/internal/infrastructure/database"
	"github.com/meterline/meterline/internal/infrastructure/payment"
	"github.com/meterline/meterline/internal/infrastructure/repository"
	"github.com/meterline/meterline/internal/infrastructure/scheduler"
	"github.com/meterline/meterline/internal/shared/biztime"
	"github.com/meterline/meterline/internal/shared/logger"
)

func main() {
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Infow("starting billing worker", "environment", env)

	if err := biztime.Init(cfg.Billing.Timezone); err != nil {
		log.Fatalw("failed to initialize business timezone", "error", err)
	}

	if err := database.Init(&cfg.Database); err != nil {
		log.Fatalw("failed to initialize database", "error", err)
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	log.Infow("redis connection established", "address", cfg.Redis.Addr())

	db := database.Get()
	subscriptionRepo := repository.NewSubscriptionRepository(db, log)
	itemRepo := repository.NewSubscriptionItemRepository(db, log)
	planRepo := repository.NewPlanVersionRepository(db, log)
	invoiceRepo := repository.NewInvoiceRepository(db, log)
	usageEventRepo := repository.NewUsageEventRepository(db, log)
	usageStatsRepo := repository.NewUsageStatsRepository(db, log)

	entitlementCache := cache.NewEntitlementCache(redisClient)
	usageReader := analytics.NewAggregateReader(usageEventRepo)
	paymentClient := payment.NewClient(&cfg.Payment, log)

	processBillingUC := billingUsecases.NewProcessBillingUseCase(
		subscriptionRepo, itemRepo, planRepo, invoiceRepo,
		paymentClient, usageReader, entitlementCache, log,
	)
	cancelUC := billingUsecases.NewCancelSubscriptionUseCase(subscriptionRepo, entitlementCache, log)
	downgradeUC := billingUsecases.NewDowngradeSubscriptionUseCase(subscriptionRepo, planRepo, entitlementCache, log)

	batchSize := cfg.Billing.ReconcileBatchSize
	billDueUC := billingUsecases.NewBillDueSubscriptionsUseCase(subscriptionRepo, processBillingUC, batchSize, log)
	reconcileUC := billingUsecases.NewReconcilePastDueUseCase(
		subscriptionRepo, invoiceRepo, paymentClient,
		processBillingUC, cancelUC, downgradeUC, batchSize, log,
	)
	activateTrialsUC := billingUsecases.NewActivateTrialsUseCase(subscriptionRepo, batchSize, log)
	rollupUC := meteringUsecases.NewRollupUsageUseCase(usageEventRepo, usageStatsRepo, cfg.Billing.UsageRetentionDays, log)

	manager, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		log.Fatalw("failed to create scheduler", "error", err)
	}

	dueScanInterval := time.Duration(cfg.Billing.DueScanIntervalMinutes) * time.Minute
	reconcileInterval := time.Duration(cfg.Billing.ReconcileIntervalHours) * time.Hour

	if err := manager.RegisterBillingJobs(billDueUC, dueScanInterval); err != nil {
		log.Fatalw("failed to register billing jobs", "error", err)
	}
	if err := manager.RegisterReconciliationJobs(reconcileUC, reconcileInterval); err != nil {
		log.Fatalw("failed to register reconciliation jobs", "error", err)
	}
	if err := manager.RegisterTrialJobs(activateTrialsUC); err != nil {
		log.Fatalw("failed to register trial jobs", "error", err)
	}
	if err := manager.RegisterUsageJobs(rollupUC); err != nil {
		log.Fatalw("failed to register usage jobs", "error", err)
	}

	manager.Start()
	log.Infow("billing worker started",
		"due_scan_interval", dueScanInterval,
		"reconcile_interval", reconcileInterval,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Infow("received signal, shutting down", "signal", sig)
	if err := manager.Stop(); err != nil {
		log.Errorw("failed to stop scheduler", "error", err)
	}
	log.Infow("billing worker stopped")
}
