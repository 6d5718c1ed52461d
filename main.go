package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"histeeria-backend/internal/authn"
	"histeeria-backend/internal/cache"
	"histeeria-backend/internal/config"
	"histeeria-backend/internal/conversation"
	"histeeria-backend/internal/database"
	"histeeria-backend/internal/delivery"
	"histeeria-backend/internal/fileproxy"
	"histeeria-backend/internal/httpx"
	"histeeria-backend/internal/identity"
	"histeeria-backend/internal/keys"
	"histeeria-backend/internal/message"
	"histeeria-backend/internal/notifyprefs"
	"histeeria-backend/internal/poll"
	"histeeria-backend/internal/reaction"
	"histeeria-backend/internal/realtime"
	"histeeria-backend/internal/repository/postgres"
	"histeeria-backend/internal/storage"
	"histeeria-backend/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// ============================================
	// 1. LOAD CONFIGURATION
	// ============================================
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("[Config] failed to load configuration: %v", err)
	}

	if cfg.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// 2. INITIALIZE CACHE PROVIDER (Redis or in-memory)
	// ============================================
	var cacheProvider cache.CacheProvider
	var redisProvider *cache.RedisProvider
	redisConnected := false

	if cfg.Redis.Host != "" {
		rp, err := cache.NewRedisProvider(&cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Printf("[Cache] failed to connect to Redis: %v (using in-memory cache)", err)
			cacheProvider = cache.NewMemoryProvider()
		} else if !rp.IsAvailable() {
			log.Printf("[Cache] Redis not available (using in-memory cache)")
			cacheProvider = cache.NewMemoryProvider()
		} else {
			cacheProvider = rp
			redisProvider = rp
			redisConnected = true
			log.Println("[Cache] Redis connected")
		}
	} else {
		log.Println("[Cache] no Redis configured, using in-memory cache")
		cacheProvider = cache.NewMemoryProvider()
	}

	var redisClient *redis.Client
	if redisProvider != nil {
		redisClient = redisProvider.GetClient()
	}

	// ============================================
	// 3. INITIALIZE STORAGE PROVIDER (R2, Supabase, local)
	// ============================================
	var storageSvc *storage.StorageService

	if accountID := config.GetEnv("R2_ACCOUNT_ID", ""); accountID != "" {
		r2 := storage.NewR2Provider(storage.R2Config{
			AccountID:       accountID,
			AccessKeyID:     config.GetEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: config.GetEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      config.GetEnv("R2_BUCKET_NAME", "histeeria-media"),
			PublicURL:       config.GetEnv("R2_PUBLIC_URL", ""),
		})
		storageSvc = storage.NewStorageService(r2)
		log.Println("[Storage] R2 configured as primary storage")

		if projectURL := config.GetEnv("SUPABASE_URL", ""); projectURL != "" {
			supabase := storage.NewSupabaseProvider(storage.SupabaseConfig{
				ProjectURL: projectURL,
				ServiceKey: config.GetEnv("SUPABASE_SERVICE_KEY", ""),
				BucketName: "media",
			})
			storageSvc.SetFallback(supabase)
			log.Println("[Storage] Supabase configured as fallback storage")
		}
	} else if projectURL := config.GetEnv("SUPABASE_URL", ""); projectURL != "" {
		supabase := storage.NewSupabaseProvider(storage.SupabaseConfig{
			ProjectURL: projectURL,
			ServiceKey: config.GetEnv("SUPABASE_SERVICE_KEY", ""),
			BucketName: "media",
		})
		storageSvc = storage.NewStorageService(supabase)
		log.Println("[Storage] Supabase configured as primary storage")
	} else {
		local, err := storage.NewLocalProvider(storage.LocalConfig{
			BasePath: "./uploads",
			BaseURL:  "http://localhost:" + cfg.Server.Port + "/uploads",
		})
		if err != nil {
			log.Fatalf("[Storage] failed to initialize local storage: %v", err)
		}
		storageSvc = storage.NewStorageService(local)
		log.Println("[Storage] local filesystem configured (development mode)")
	}

	// ============================================
	// 4. OPEN THE RELATIONAL STORE AND REPOSITORIES
	// ============================================
	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.NewPool(openCtx, &cfg.Postgres)
	cancel()
	if err != nil {
		log.Fatalf("[Database] failed to open connection pool: %v", err)
	}

	convRepo := postgres.NewConversationRepo(pool.Pool)
	msgRepo := postgres.NewMessageRepo(pool.Pool)
	pollRepo := postgres.NewPollRepo(pool.Pool)
	prefsRepo := postgres.NewPreferencesRepo(pool.Pool)
	userRepo := postgres.NewUserRepo(pool.Pool)
	blockRepo := postgres.NewBlockRepo(pool.Pool)
	keyRepo := postgres.NewKeyRepo(pool.Pool)

	log.Println("[Repositories] all repositories initialized")

	// ============================================
	// 5. CORE SERVICES (auth, cache, rate limiting)
	// ============================================
	jwtSvc := authn.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 30*24*time.Hour)
	identitySvc := identity.NewService(userRepo, cacheProvider)
	messageCache := cache.NewMessageCacheService(redisClient)

	var rateLimiter *cache.HybridRateLimiter
	if redisConnected {
		rateLimiter = cache.NewHybridRateLimiterFromProvider(redisProvider, 2)
		log.Println("[RateLimit] using distributed (Redis) rate limiting")
	} else {
		rateLimiter = cache.NewHybridRateLimiter(nil, 2)
		log.Println("[RateLimit] using in-memory rate limiting (single instance only)")
	}

	window, err := time.ParseDuration(cfg.RateLimit.Window)
	if err != nil || window <= 0 {
		window = time.Minute
	}

	// ============================================
	// 6. REALTIME FANOUT PLANE
	// ============================================
	rt := realtime.NewManager(realtime.Hooks{
		OnJoinConversation: func(ctx context.Context, userID, conversationID string) bool {
			member, err := convRepo.GetMember(ctx, conversationID, userID)
			return err == nil && member != nil
		},
		OnTyping: func(ctx context.Context, userID, conversationID string, isTyping bool) {
			if isTyping {
				_ = messageCache.SetTyping(ctx, conversationID, userID)
			} else {
				_ = messageCache.ClearTyping(ctx, conversationID, userID)
			}
		},
	})
	go rt.Run()

	// ============================================
	// 7. ENGINES AND THEIR HTTP HANDLERS
	// ============================================
	conversationSvc := conversation.NewService(convRepo, userRepo, identitySvc, messageCache, rt)
	messageSvc := message.NewService(msgRepo, convRepo, blockRepo, messageCache, rt, storageSvc)
	deliverySvc := delivery.NewService(msgRepo, convRepo, messageCache, rt)

	rt.SetOnlineHooks(func(ctx context.Context, userID string) {
		_ = messageCache.SetUserOnline(ctx, userID)
		deliverySvc.PromoteSentToDelivered(ctx, userID)
	}, func(ctx context.Context, userID string) {
		_ = messageCache.SetUserOffline(ctx, userID)
	})

	reactionSvc := reaction.NewService(msgRepo, convRepo, rt)
	pollSvc := poll.NewService(pollRepo, msgRepo, convRepo, rt)
	notifyprefsSvc := notifyprefs.NewService(prefsRepo, convRepo)
	keysSvc := keys.NewService(keyRepo, convRepo, messageCache, rt)

	conversationHandlers := conversation.NewHandlers(conversationSvc)
	messageHandlers := message.NewHandlers(messageSvc)
	deliveryHandlers := delivery.NewHandlers(deliverySvc)
	reactionHandlers := reaction.NewHandlers(reactionSvc)
	pollHandlers := poll.NewHandlers(pollSvc)
	notifyprefsHandlers := notifyprefs.NewHandlers(notifyprefsSvc)
	keysHandlers := keys.NewHandlers(keysSvc)
	realtimeHandlers := realtime.NewHandlers(rt, jwtSvc, identitySvc)
	fileproxyHandlers := fileproxy.NewHandlers(storageSvc, jwtSvc, cfg.ObjectStore)

	// ============================================
	// 8. HEALTH CHECKS AND BACKGROUND CLEANUP
	// ============================================
	healthChecker := utils.NewHealthChecker(redisClient)
	healthChecker.AddDatabaseCheck("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	cleanup := utils.NewCleanupScheduler()
	cleanup.AddTask("stale-presence", 5*time.Minute, messageCache.CleanupStalePresence)
	cleanup.AddTask("expired-typing", time.Minute, messageCache.CleanupExpiredTyping)
	cleanup.Start()

	shutdownMgr := utils.NewShutdownManager(30 * time.Second)

	// ============================================
	// 9. ROUTER AND MIDDLEWARE
	// ============================================
	r := gin.New()
	r.Use(utils.PanicRecoveryMiddleware())
	r.Use(utils.RequestIDMiddleware())
	r.Use(gin.Logger())
	r.Use(utils.SecurityHeadersMiddleware())

	allowedOrigins := cfg.GetCORSOrigins()
	log.Printf("[CORS] allowed origins: %v", allowedOrigins)
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version", "Sec-WebSocket-Protocol", "Sec-WebSocket-Extensions"},
		ExposeHeaders:    []string{"Content-Length", "Upgrade", "Connection", "Sec-WebSocket-Accept", "X-New-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.MaxMultipartMemory = 8 << 20

	r.Use(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		httpx.IPRateLimit(rateLimiter, 100, time.Minute)(c)
	})

	r.GET("/health", healthChecker.HealthHandler())
	r.GET("/health/ready", healthChecker.ReadinessHandler())
	r.GET("/health/live", healthChecker.LivenessHandler())
	r.GET("/metrics", healthChecker.MetricsHandler())

	// ============================================
	// 10. AUTHENTICATED API ROUTES
	// ============================================
	api := r.Group("/api/v1")
	api.Use(authn.Middleware(jwtSvc, identitySvc))

	conversationHandlers.SetupRoutes(api)
	deliveryHandlers.SetupRoutes(api)
	pollHandlers.SetupRoutes(api)
	notifyprefsHandlers.SetupRoutes(api)
	fileproxyHandlers.SetupRoutes(api)
	realtimeHandlers.SetupRoutes(api)

	messagesLimited := api.Group("")
	messagesLimited.Use(httpx.UserRateLimit(rateLimiter, cache.MessageRateLimitKey, cfg.RateLimit.MessagesPerMin, window))
	messageHandlers.SetupRoutes(messagesLimited)

	reactionsLimited := api.Group("")
	reactionsLimited.Use(httpx.UserRateLimit(rateLimiter, cache.ReactionRateLimitKey, cfg.RateLimit.ReactionsPerMin, window))
	reactionHandlers.SetupRoutes(reactionsLimited)

	keysLimited := api.Group("")
	keysLimited.Use(func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			httpx.UserRateLimit(rateLimiter, cache.EncryptionReadRateLimitKey, cfg.RateLimit.EncryptionReadsMin, window)(c)
			return
		}
		httpx.UserRateLimit(rateLimiter, cache.EncryptionMutationRateLimitKey, cfg.RateLimit.EncryptionMutationsMin, window)(c)
	})
	keysHandlers.SetupRoutes(keysLimited)

	log.Println("[Routes] all routes registered")

	// ============================================
	// 11. START SERVER WITH GRACEFUL SHUTDOWN
	// ============================================
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownMgr.Register("http-server", 100, server.Shutdown)
	shutdownMgr.Register("realtime-manager", 90, func(ctx context.Context) error {
		rt.Shutdown()
		return nil
	})
	shutdownMgr.Register("cleanup-scheduler", 60, func(ctx context.Context) error {
		cleanup.Stop()
		return nil
	})
	shutdownMgr.Register("rate-limiter", 50, func(ctx context.Context) error {
		rateLimiter.Stop()
		return nil
	})
	shutdownMgr.Register("cache", 40, func(ctx context.Context) error {
		return cacheProvider.Close()
	})
	shutdownMgr.Register("postgres-pool", 30, func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	go func() {
		log.Printf("[Server] starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Server] failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] shutdown signal received")
	if err := shutdownMgr.Shutdown(); err != nil {
		log.Printf("[Server] shutdown completed with errors: %v", err)
	}
}
