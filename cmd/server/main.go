package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tapdash/internal/api/handlers"
	"tapdash/internal/config"
	"tapdash/internal/game"
	"tapdash/internal/jobs"
	"tapdash/internal/repository"
	"tapdash/internal/service"
	ws "tapdash/internal/websocket"
	"tapdash/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize PostgreSQL with connection pooling
	db, err := initPostgres(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	log.Println("✓ Connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("✓ Connected to Redis")

	// Initialize repositories
	postgresRepo := repository.NewPostgresRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient)

	// Run migrations
	if err := postgresRepo.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("✓ Database migrations completed")

	// Settlement pool: async persistence of finished races
	settlementPool := worker.NewSettlementPool(10, 500, postgresRepo, redisRepo)
	settlementPool.Start()

	// Connection registry + session engine
	registry := ws.NewRegistry()
	engine := game.NewEngine(cfg.Game, registry, settlementPool)
	registry.OnDisconnect = engine.HandleDisconnect

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	// Services
	leaderboardService := service.NewLeaderboardService(redisRepo, postgresRepo)
	accountService := service.NewAccountService(postgresRepo, cfg.Auth.TokenSecret)

	// Warm the Redis leaderboard from Postgres
	if err := leaderboardService.SyncRedisFromPostgres(ctx); err != nil {
		log.Printf("⚠️ Failed to warm leaderboard: %v", err)
	}

	// Optional bot load driver
	var bots *jobs.BotManager
	if os.Getenv("ENABLE_BOTS") == "true" {
		bots = jobs.NewBotManager(engine, jobs.BotConfig{})
		if err := bots.Start(ctx); err != nil {
			log.Printf("⚠️ Failed to start bot driver: %v", err)
		}
	}

	// Initialize handlers
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "TapDash Racing Server",
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Routes
	api := app.Group("/api/v1")
	api.Get("/leaderboard", leaderboardHandler.GetLeaderboard)
	api.Get("/search/:handle", leaderboardHandler.SearchPlayer)
	api.Get("/health", leaderboardHandler.HealthCheck)

	// WebSocket route: authenticate during the upgrade, reject before the
	// connection ever reaches the core.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		identity, err := accountService.Authenticate(c.Context(), c.Query("token"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid handshake token")
		}
		c.Locals("identity", identity)
		return c.Next()
	})
	app.Get("/ws", fiberws.New(func(c *fiberws.Conn) {
		identity := c.Locals("identity").(game.Identity)
		ws.ServeWS(registry, engine, c, identity)
	}))

	// Root route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "TapDash Racing Server",
			"version": "1.0.0",
			"endpoints": []string{
				"GET /api/v1/leaderboard",
				"GET /api/v1/search/:handle",
				"GET /api/v1/health",
				"WS /ws?token=...",
			},
			"online":         registry.Count(),
			"active_matches": engine.ActiveMatches(),
			"queue_depth":    engine.QueueLen(),
		})
	})

	// Graceful shutdown with settlement flushing
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("\n🛑 Shutting down server...")

		if bots != nil {
			bots.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}

		// Stop the engine's sweep loop, then flush pending settlements.
		cancel()
		log.Println("🔄 Flushing settlement pool (pending writes)...")
		if err := settlementPool.Shutdown(30 * time.Second); err != nil {
			log.Printf("Settlement pool shutdown error: %v", err)
		}

		if err := postgresRepo.Close(); err != nil {
			log.Printf("Error closing PostgreSQL: %v", err)
		}
		if err := redisRepo.Close(); err != nil {
			log.Printf("Error closing Redis: %v", err)
		}

		log.Println("✓ Server shutdown complete")
	}()

	// Start server
	port := cfg.Server.Port
	log.Printf("🚀 Server starting on port %d...", port)
	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Max connections sized for the settlement pool plus API reads.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Request failed",
		"message": err.Error(),
	})
}
