package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"storefront-builder-service/internal/ai"
	"storefront-builder-service/internal/assets"
	"storefront-builder-service/internal/cache"
	"storefront-builder-service/internal/clients"
	"storefront-builder-service/internal/clients/bigcommerce"
	"storefront-builder-service/internal/clients/etsy"
	"storefront-builder-service/internal/clients/shopify"
	"storefront-builder-service/internal/config"
	"storefront-builder-service/internal/events"
	"storefront-builder-service/internal/generation"
	"storefront-builder-service/internal/handlers"
	"storefront-builder-service/internal/middleware"
	"storefront-builder-service/internal/repository"
	"storefront-builder-service/internal/secrets"
	"storefront-builder-service/internal/services"
	"storefront-builder-service/internal/store"
	"storefront-builder-service/internal/wizard"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()
	checks := map[string]handlers.Check{}

	// Local cache
	local, err := repository.OpenLocalCache(cfg.LocalCacheDSN)
	if err != nil {
		logger.Fatalf("Failed to open local cache: %v", err)
	}
	defer local.Close()
	checks["local_cache"] = local.Ping

	// Cloud document store (optional - stores stay local-only without it)
	var cloud repository.DocumentStore
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if err := repository.AutoMigrate(db); err != nil {
			logger.Warnf("Auto-migration failed: %v", err)
		} else {
			logger.Info("Database models migrated")
		}
		sqlDB, err := db.DB()
		if err != nil {
			logger.Fatalf("Failed to get database handle: %v", err)
		}
		defer sqlDB.Close()
		checks["database"] = sqlDB.PingContext
		cloud = repository.NewDocumentRepository(db)
	} else {
		logger.Info("No database configured, cloud sync disabled")
	}

	// Slug registry (optional)
	var slugs store.SlugReserver
	if cfg.RedisURL != "" {
		registry, err := cache.NewSlugRegistry(cfg.RedisURL)
		if err != nil {
			logger.Warnf("Failed to initialize slug registry: %v", err)
		} else {
			defer registry.Close()
			checks["redis"] = registry.Ping
			slugs = registry
			logger.Info("Slug registry initialized")
		}
	}

	// Sync event publisher (optional - service works without NATS)
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(ctx, cfg.NATSURL, logger)
		if err != nil {
			logger.Warnf("Failed to initialize event publisher: %v. Events will not be published.", err)
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
			logger.Info("Event publisher initialized")
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	// Asset pipeline
	var blobs assets.BlobStorage
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		supabaseStorage, err := assets.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.AssetBucket)
		if err != nil {
			logger.Warnf("Failed to initialize blob storage: %v. Images will use the placeholder.", err)
		} else {
			blobs = supabaseStorage
		}
	}
	pipeline := assets.NewPipeline(blobs, assets.Config{
		PlaceholderURL: cfg.PlaceholderImageURL,
		MirrorRemote:   cfg.MirrorRemoteImages,
	}, logger)

	// Stored provider credentials (optional)
	var credentials secrets.CredentialStore
	if cfg.GCPProjectID != "" {
		secretManager, err := secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Warnf("Failed to initialize GCP Secret Manager: %v", err)
		} else {
			defer secretManager.Close()
			credentials = secretManager
			logger.Info("GCP Secret Manager initialized")
		}
	}

	// Dual-write store
	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = cfg.CloudSyncMaxRetries
	retry.InitialBackoff = cfg.CloudSyncRetryDelay
	stores := store.NewDualWriteStore(local, cloud, slugs, pipeline, publisher, store.Config{Retry: retry}, logger)

	// Generation
	aiService := ai.NewOpenAIService(ai.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		ImageModel: cfg.OpenAIImageModel,
	}, logger)
	orchestrator := generation.NewOrchestrator(aiService, stores, generation.Config{
		PlaceholderImage: cfg.PlaceholderImageURL,
		Assets:           pipeline,
	}, logger)

	// Catalog import wizard, one manager per merchant
	rps := float64(cfg.ProviderRateLimit)
	opts := wizard.Options{PageSize: cfg.PreviewPageSize}
	newWizard := func() *wizard.Manager {
		return wizard.NewManager(
			wizard.NewMachine[shopify.Credentials](shopify.NewShopifyClient(rps), shopify.ParseCredentials, stores, opts, logger),
			wizard.NewMachine[bigcommerce.Credentials](bigcommerce.NewBigCommerceClient(rps), bigcommerce.ParseCredentials, stores, opts, logger),
			wizard.NewMachine[etsy.Credentials](etsy.NewEtsyClient(rps), etsy.ParseCredentials, stores, opts, logger),
		)
	}

	builder := services.NewBuilder(stores, orchestrator, newWizard, credentials, services.NewMerchantLimiter(nil), logger)

	// Resume cloud phases interrupted by the last shutdown
	if scheduled, err := stores.RetryPending(ctx); err != nil {
		logger.Warnf("Failed to schedule pending syncs: %v", err)
	} else if scheduled > 0 {
		logger.Infof("Scheduled %d pending store syncs", scheduled)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(checks, builder.LimiterStats)
	wizardHandler := handlers.NewWizardHandler(builder)
	generationHandler := handlers.NewGenerationHandler(builder)
	storeHandler := handlers.NewStoreHandler(builder)

	router := setupRouter(cfg, logger, healthHandler, wizardHandler, generationHandler, storeHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Storefront builder service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	// Let in-flight cloud phases finish before the backends close
	stores.Wait()
	logger.Info("Server shutdown complete")
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	wizardHandler *handlers.WizardHandler,
	generationHandler *handlers.GenerationHandler,
	storeHandler *handlers.StoreHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.MerchantMiddleware())

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		// Catalog import wizard
		wizards := v1.Group("/wizard")
		{
			wizards.GET("/providers", wizardHandler.Providers)
			wizards.GET("/:provider", wizardHandler.Get)
			wizards.POST("/:provider/open", wizardHandler.Open)
			wizards.POST("/:provider/advance", wizardHandler.Advance)
			wizards.POST("/:provider/load-more", wizardHandler.LoadMore)
			wizards.POST("/:provider/finalize", wizardHandler.Finalize)
			wizards.POST("/:provider/cancel", wizardHandler.Cancel)
			wizards.DELETE("/:provider/credentials", middleware.RequireMerchantID(), wizardHandler.Disconnect)
		}

		// Prompt generation
		generations := v1.Group("/generations")
		{
			generations.POST("", generationHandler.Start)
			generations.GET("/:id", generationHandler.Get)
			generations.GET("/:id/progress", generationHandler.Progress)
			generations.POST("/:id/resume", generationHandler.Resume)
			generations.POST("/:id/cancel", generationHandler.Cancel)
		}

		// Stores
		stores := v1.Group("/stores")
		{
			stores.GET("", storeHandler.List)
			stores.POST("", storeHandler.Create)
			stores.POST("/refresh", middleware.RequireMerchantID(), storeHandler.Refresh)
			stores.GET("/:id", storeHandler.Get)
			stores.PATCH("/:id", storeHandler.Update)
			stores.DELETE("/:id", storeHandler.Delete)
			stores.PATCH("/:id/products/:productId", storeHandler.UpdateProduct)
			stores.DELETE("/:id/products/:productId", storeHandler.DeleteProduct)
		}
	}

	return router
}
