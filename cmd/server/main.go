package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/71220903/coredev-finance-flow-sub001/internal/adapters"
	"github.com/71220903/coredev-finance-flow-sub001/internal/cache"
	"github.com/71220903/coredev-finance-flow-sub001/internal/catalog"
	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
	"github.com/71220903/coredev-finance-flow-sub001/internal/encoding"
	"github.com/71220903/coredev-finance-flow-sub001/internal/errors"
	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
	"github.com/71220903/coredev-finance-flow-sub001/internal/middleware"
	"github.com/71220903/coredev-finance-flow-sub001/internal/monitoring"
	"github.com/71220903/coredev-finance-flow-sub001/internal/pricing"
	"github.com/71220903/coredev-finance-flow-sub001/internal/privacy"
	"github.com/71220903/coredev-finance-flow-sub001/internal/ratelimit"
	"github.com/71220903/coredev-finance-flow-sub001/internal/resilience"
	"github.com/71220903/coredev-finance-flow-sub001/internal/risk"
	"github.com/71220903/coredev-finance-flow-sub001/internal/security"
	"github.com/71220903/coredev-finance-flow-sub001/internal/trust"
	"github.com/71220903/coredev-finance-flow-sub001/internal/types"
)

// application bundles every long-lived service the HTTP layer depends on.
type application struct {
	db             *database.DB
	userService    *database.UserService
	privacyService *privacy.PrivacyService
	catalog        *catalog.Service
	indexer        *adapters.IndexerAdapter
	oracle         *adapters.OracleAdapter
	rateLimiter    *ratelimit.RateLimiter
	security       *security.SecurityMiddleware
	compression    *middleware.CompressionMiddleware
	cache          *cache.Cache
	encoder        *encoding.OptimizedJSONEncoder
	metrics        *monitoring.Metrics
	logger         *monitoring.Logger
	memoryMonitor  *monitoring.MemoryMonitor
}

func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "change-me-in-production")
	port := getEnvOrDefault("PORT", "8080")
	catalogSource := getEnvOrDefault("CATALOG_SOURCE", "seed")
	indexerURL := os.Getenv("INDEXER_URL")
	indexerAPIKey := os.Getenv("INDEXER_API_KEY")
	oracleURL := getEnvOrDefault("ORACLE_URL", "https://rates.coredev.finance")
	oracleAPIKey := os.Getenv("ORACLE_API_KEY")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	refreshInterval := getEnvDuration("CATALOG_REFRESH_INTERVAL", 10*time.Minute)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Initialize database and user service
	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	userService := database.NewUserService(repo, jwtSecret)
	privacyService := privacy.NewService(db)

	// Monitoring
	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	memoryMonitor := monitoring.NewMemoryMonitor(5*time.Second, 50*1024*1024, appLogger, appMetrics) // 50MB GC threshold
	memoryMonitor.Start()

	monitoring.InitGlobalTracer("coredev-finance", appLogger)
	monitoring.InitGlobalAlertManager(appLogger, appMetrics, 30*time.Second)

	// Add Slack notifier (configure webhook URL in production)
	slackNotifier := monitoring.NewSlackNotifier(os.Getenv("SLACK_WEBHOOK_URL"))
	if slackNotifier.WebhookURL != "" {
		monitoring.GetGlobalAlertManager().AddNotifier(slackNotifier)
	}
	monitoring.StartGlobalAlerting(rootCtx)

	// External adapters
	indexerAdapter := adapters.NewIndexerAdapter(indexerURL, indexerAPIKey)
	oracleAdapter := adapters.NewOracleAdapterWithKey(oracleURL, oracleAPIKey)

	// Catalogue service fed by the configured source
	var source catalog.Source
	switch catalogSource {
	case "store":
		source = catalog.NewStoreSource(repo)
	case "indexer":
		if indexerURL == "" {
			slog.Error("CATALOG_SOURCE=indexer requires INDEXER_URL")
			os.Exit(1)
		}
		source = indexerAdapter
	default:
		seedCount := getEnvInt("SEED_MARKET_COUNT", 48)
		source = catalog.NewSeedSource(1, seedCount)
	}

	responseCache := cache.NewCache(15 * time.Minute)

	catalogService := catalog.NewService(source)
	catalogService.SetMetrics(appMetrics)
	catalogService.OnRefresh(responseCache.Clear)
	if err := catalogService.Refresh(rootCtx); err != nil {
		slog.Warn("Initial catalogue refresh failed, serving empty snapshot", "error", err)
	}
	catalogService.StartAutoRefresh(rootCtx, refreshInterval)

	// Schedule data cleanup (runs daily)
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if err := privacyService.ScheduleDataCleanup(365); err != nil {
					slog.Error("Failed to run data cleanup", "error", err)
				}
			}
		}
	}()

	// Rate limiting with Redis, falling back to in-memory token buckets
	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, 0)
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting runs in fallback mode", "error", err)
	}
	rateLimiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	// Security middleware setup
	securityMiddleware := security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	securityMiddleware.SetUserService(userService)
	securityMiddleware.Cleanup()

	// Register external services for degradation management
	resilience.RegisterService("chain-indexer", func(ctx context.Context) error {
		if indexerURL == "" {
			return nil
		}
		_, _, err := indexerAdapter.FetchMarkets(ctx, 1, 0)
		return err
	})

	resilience.RegisterService("rates-oracle", func(ctx context.Context) error {
		// FetchConditions degrades to synthetic data, so probe the raw call
		if !oracleAdapter.IsAuthenticated() {
			return nil
		}
		return oracleAdapter.ValidateCredentials(ctx)
	})
	resilience.StartHealthChecks(rootCtx)

	app := &application{
		db:             db,
		userService:    userService,
		privacyService: privacyService,
		catalog:        catalogService,
		indexer:        indexerAdapter,
		oracle:         oracleAdapter,
		rateLimiter:    rateLimiter,
		security:       securityMiddleware,
		compression:    middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		cache:          responseCache,
		encoder:        encoding.NewOptimizedJSONEncoder(),
		metrics:        appMetrics,
		logger:         appLogger,
		memoryMonitor:  memoryMonitor,
	}

	r := app.setupRouter()

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port, "catalog_source", catalogSource)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close adapter connection pools
	indexerAdapter.Close()
	oracleAdapter.Close()

	// Stop memory monitor
	memoryMonitor.Stop()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// setupRouter assembles the middleware chain and every route.
func (app *application) setupRouter() *gin.Engine {
	r := gin.New()

	// Monitoring middleware first, to capture all requests
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	if tracer := monitoring.GetGlobalTracer(); tracer != nil {
		r.Use(monitoring.TracingMiddleware(tracer))
	}
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger))

	// Error handling
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	// Security
	r.Use(app.security.SecurityHeaders)
	r.Use(app.security.RequestTimeout)
	r.Use(app.security.ValidateContentType)
	r.Use(app.security.CORSConfig())
	r.Use(app.security.OptionalAuth)

	// Rate limiting: per-IP everywhere, per-user daily quota on scoring
	r.Use(app.rateLimiter.IPRateLimitMiddleware())
	r.Use(app.rateLimiter.UserRateLimitMiddleware())

	// Response compression and read-path caching
	r.Use(app.compression.Handler())
	r.Use(app.cache.Middleware(app.metrics))

	r.GET("/health", app.handleHealth)
	r.GET("/health/services", app.handleServiceHealth)

	// Market catalogue
	r.GET("/markets", app.security.ValidateSearchQuery, app.handleListMarkets)
	r.GET("/markets/stats", app.handleMarketStats)
	r.GET("/markets/:id", app.handleGetMarket)

	// Scoring endpoints (per-user daily quota applies)
	r.POST("/trust/score", app.handleTrustScore)
	r.POST("/risk/assess", app.handleRiskAssess)
	r.POST("/pricing/suggest", app.handlePricingSuggest)
	r.GET("/pricing/conditions", app.handlePricingConditions)

	// Rate limit status for the calling client
	r.GET("/ratelimit/status", app.rateLimiter.HandleRateLimitStatus())

	// Privacy endpoints
	r.GET("/privacy/policy", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.privacyService.GetDataRetentionInfo())
	})
	r.GET("/privacy/settings/:address", app.handlePrivacySettings)

	// Swagger documentation routes. The UI ships inline scripts, so it
	// gets a nonce-based CSP instead of the global static policy.
	r.GET("/swagger/*any", security.CSPMiddleware(), ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Operational endpoints
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.metrics.GetStats())
	})
	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.cache.Stats())
	})
	r.GET("/pools/indexer", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "indexer", "stats": app.indexer.GetPoolStats()})
	})
	r.GET("/pools/oracle", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "oracle", "stats": app.oracle.GetPoolStats()})
	})
	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "database", "stats": app.db.GetPoolStats()})
	})
	r.GET("/pools/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "json", "stats": app.encoder.GetStats()})
	})
	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pool": "compression", "stats": app.compression.GetStats()})
	})
	r.GET("/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.memoryMonitor.GetStats())
	})
	r.POST("/memory/optimize", func(c *gin.Context) {
		app.memoryMonitor.OptimizeMemory()
		c.JSON(http.StatusOK, gin.H{"message": "memory optimization triggered"})
	})

	// Tracing endpoint to get current traces
	r.GET("/debug/traces", func(c *gin.Context) {
		tracer := monitoring.GetGlobalTracer()
		if tracer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracing not initialized"})
			return
		}

		traces := make(map[string]interface{})
		for spanID, span := range tracer.GetSpans() {
			traces[string(spanID)] = span
		}

		c.JSON(http.StatusOK, gin.H{
			"traces":    traces,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Alerting endpoints
	r.GET("/alerts", func(c *gin.Context) {
		alertManager := monitoring.GetGlobalAlertManager()
		if alertManager == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerting not initialized"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"alerts":    alertManager.GetAlerts(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Admin routes
	admin := r.Group("/admin", app.security.RequireAuth, app.security.RequireAdmin)
	{
		admin.POST("/users", app.handleCreateUser)
		admin.GET("/users", app.handleListUsers)
		admin.POST("/users/:userID/deactivate", app.handleDeactivateUser)
		admin.POST("/users/:userID/reactivate", app.handleReactivateUser)

		admin.POST("/markets/refresh", app.handleRefreshCatalogue)

		admin.GET("/ratelimits", app.rateLimiter.HandleAdminRateLimits())
		admin.GET("/ratelimits/metrics", app.rateLimiter.HandleAdminRateLimitMetrics())
		admin.POST("/ratelimits/reset/:userID", app.rateLimiter.HandleAdminResetRateLimit())
		admin.POST("/ratelimits/invalidate/user/:userID", app.rateLimiter.HandleAdminInvalidateUser())
		admin.POST("/ratelimits/invalidate/ip/:ip", app.rateLimiter.HandleAdminInvalidateIP())

		admin.POST("/privacy/delete/:address", app.handleDeleteBorrowerData)
		admin.PUT("/privacy/settings/:address", app.handleSetProfileVisibility)

		admin.POST("/alerts/:id/silence", app.handleSilenceAlert)
	}

	// Force GC endpoint (development only)
	if os.Getenv("ENABLE_GC_CONTROL") == "true" {
		r.POST("/memory/gc", func(c *gin.Context) {
			app.memoryMonitor.ForceGC()
			c.JSON(http.StatusOK, gin.H{"message": "garbage collection triggered"})
		})
	}

	// Performance profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r
}

func (app *application) handleHealth(c *gin.Context) {
	services := resilience.GetAllServiceHealth()

	healthResponse := gin.H{
		"status":              "ok",
		"timestamp":           time.Now().Format(time.RFC3339),
		"version":             "1.0.0",
		"services":            services,
		"metrics":             app.metrics.GetStats(),
		"catalogue_size":      app.catalog.Size(),
		"catalogue_refreshed": app.catalog.RefreshedAt().Format(time.RFC3339),
	}

	for _, service := range services {
		if service.Level == resilience.LevelEmergency {
			healthResponse["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, healthResponse)
			return
		}
	}

	c.JSON(http.StatusOK, healthResponse)
}

func (app *application) handleServiceHealth(c *gin.Context) {
	response := gin.H{
		"services":         resilience.GetAllServiceHealth(),
		"circuit_breakers": resilience.GetCircuitBreakerStats(),
		"timestamp":        time.Now().Format(time.RFC3339),
	}
	if alertManager := monitoring.GetGlobalAlertManager(); alertManager != nil {
		response["active_alerts"] = alertManager.GetActiveAlerts()
	}
	c.JSON(http.StatusOK, response)
}

func (app *application) handleListMarkets(c *gin.Context) {
	filters := market.DefaultFilters()
	if err := c.ShouldBindQuery(&filters); err != nil {
		appErr := errors.NewValidationError("invalid filter parameters", err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if sanitized, ok := c.Get("sanitized_query"); ok {
		filters.Query = sanitized.(string)
	}

	markets := app.catalog.Query(filters)
	c.JSON(http.StatusOK, gin.H{
		"markets":      markets,
		"total":        len(markets),
		"refreshed_at": app.catalog.RefreshedAt().Format(time.RFC3339),
	})
}

func (app *application) handleMarketStats(c *gin.Context) {
	c.JSON(http.StatusOK, app.catalog.Stats())
}

func (app *application) handleGetMarket(c *gin.Context) {
	m, err := app.catalog.Get(c.Param("id"))
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (app *application) handleTrustScore(c *gin.Context) {
	var req types.TrustScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	start := time.Now()
	score, err := trust.ComputeScore(req.Factors)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.metrics.IncrementScoreComputation()
	app.logger.ScoringLogger(c.ClientIP(), "trust", float64(score.TotalScore), time.Since(start), false)

	c.JSON(http.StatusOK, score)
}

func (app *application) handleRiskAssess(c *gin.Context) {
	var req types.RiskAssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	start := time.Now()
	assessment, err := risk.ComputeAssessment(req.Factors)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.metrics.IncrementScoreComputation()
	app.logger.ScoringLogger(c.ClientIP(), "risk", assessment.RiskScore, time.Since(start), false)

	c.JSON(http.StatusOK, assessment)
}

func (app *application) handlePricingSuggest(c *gin.Context) {
	var req types.PricingSuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	start := time.Now()
	rate, err := pricing.SuggestRate(req.Conditions, float64(req.TrustScore), req.RiskScore)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.metrics.IncrementScoreComputation()
	app.logger.ScoringLogger(c.ClientIP(), "pricing", rate, time.Since(start), false)

	c.JSON(http.StatusOK, types.PricingSuggestResponse{
		SuggestedRate: rate,
		SuggestedBps:  pricing.RateToBps(rate),
	})
}

func (app *application) handlePricingConditions(c *gin.Context) {
	conditions, err := app.oracle.FetchConditions(c.Request.Context())
	if err != nil {
		resilience.RecordError("rates-oracle", err)
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	resilience.RecordRequest("rates-oracle", true)
	c.JSON(http.StatusOK, conditions)
}

func (app *application) handlePrivacySettings(c *gin.Context) {
	address := c.Param("address")
	settings, err := app.privacyService.GetPrivacySettings(address)
	if err != nil {
		app.logger.APIErrorLogger(err, "GET", "/privacy/settings/"+address, c.ClientIP(), http.StatusNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "privacy settings not found"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (app *application) handleCreateUser(c *gin.Context) {
	var req types.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	user, err := app.userService.CreateUser(req.Email, req.Role)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (app *application) handleListUsers(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	users, err := app.userService.ListUsers(limit)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

func (app *application) handleDeactivateUser(c *gin.Context) {
	if err := app.userService.DeactivateUser(c.Param("userID")); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deactivated"})
}

func (app *application) handleReactivateUser(c *gin.Context) {
	if err := app.userService.ReactivateUser(c.Param("userID")); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user reactivated"})
}

func (app *application) handleRefreshCatalogue(c *gin.Context) {
	refresh := app.catalog.Refresh
	if tracer := monitoring.GetGlobalTracer(); tracer != nil {
		refresh = func(ctx context.Context) error {
			return monitoring.TraceOperation(ctx, tracer, "catalogue.refresh", app.catalog.Refresh)
		}
	}
	if err := refresh(c.Request.Context()); err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	// Cached catalogue responses are stale once the snapshot changes.
	app.cache.Clear()

	c.JSON(http.StatusOK, gin.H{
		"message": "catalogue refreshed",
		"markets": app.catalog.Size(),
	})
}

func (app *application) handleDeleteBorrowerData(c *gin.Context) {
	address := c.Param("address")
	if err := app.privacyService.DeleteBorrowerData(address); err != nil {
		app.logger.APIErrorLogger(err, "POST", "/admin/privacy/delete/"+address, c.ClientIP(), http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete borrower data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "borrower data deleted"})
}

func (app *application) handleSetProfileVisibility(c *gin.Context) {
	var requestBody struct {
		Visible *bool `json:"visible" binding:"required"`
	}
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	address := c.Param("address")
	if err := app.privacyService.SetProfileVisibility(address, *requestBody.Visible); err != nil {
		app.logger.APIErrorLogger(err, "PUT", "/admin/privacy/settings/"+address, c.ClientIP(), http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile visibility"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "profile visibility updated", "visible": *requestBody.Visible})
}

func (app *application) handleSilenceAlert(c *gin.Context) {
	alertManager := monitoring.GetGlobalAlertManager()
	if alertManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerting not initialized"})
		return
	}

	alertID := c.Param("id")
	duration := 30 * time.Minute

	if durationParam := c.Query("duration"); durationParam != "" {
		if d, err := time.ParseDuration(durationParam); err == nil {
			duration = d
		}
	}

	alertManager.SilenceAlert(alertID, duration)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Alert silenced",
		"alert_id": alertID,
		"duration": duration.String(),
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
