package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"tapdash/internal/auth"
	"tapdash/internal/config"
	"tapdash/internal/models"
	"tapdash/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	TotalUsers   = 1000
	BatchSize    = 500
	MinRating    = 800
	MaxRating    = 2200
	HandlePrefix = "racer_"
)

func main() {
	log.Println("🌱 Starting seeder for TapDash...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize PostgreSQL
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

	ctx := context.Background()

	log.Printf("🌱 Generating %d racers...", TotalUsers)
	users := generateUsers(TotalUsers)

	log.Println("📦 Inserting racers into PostgreSQL...")
	if err := seedPostgres(ctx, postgresRepo, users); err != nil {
		log.Fatalf("Failed to seed PostgreSQL: %v", err)
	}

	log.Println("⚡ Populating Redis leaderboard...")
	if err := seedRedis(ctx, redisRepo, users); err != nil {
		log.Fatalf("Failed to seed Redis: %v", err)
	}

	// Verify seeding
	total, err := redisRepo.GetTotalPlayers(ctx)
	if err != nil {
		log.Fatalf("Failed to verify Redis: %v", err)
	}

	log.Printf("✅ Seeding completed successfully!")
	log.Printf("   - PostgreSQL: %d racers", TotalUsers)
	log.Printf("   - Redis: %d racers", total)

	// Show sample of top 10
	log.Println("\n📊 Top 10 Racers:")
	topPlayers, err := redisRepo.GetTopPlayers(ctx, 0, 10)
	if err != nil {
		log.Fatalf("Failed to get top players: %v", err)
	}
	for i, p := range topPlayers {
		handle := p.Member.(string)
		rating, err := redisRepo.GetRating(ctx, handle)
		if err != nil {
			log.Printf("   %d. %s - Rating: ERROR (%v)", i+1, handle, err)
			continue
		}
		log.Printf("   %d. %s - Rating: %d", i+1, handle, rating)
	}

	// A couple of dev handshake tokens so you can connect right away
	log.Println("\n🔑 Dev handshake tokens (valid 24h):")
	for id := uint(1); id <= 2; id++ {
		token := auth.Sign(id, time.Now().Add(24*time.Hour), cfg.Auth.TokenSecret)
		log.Printf("   user %d: /ws?token=%s", id, token)
	}

	postgresRepo.Close()
	redisRepo.Close()

	log.Println("\n🎉 Seeder finished!")
}

// generateUsers creates random racers with ratings between MinRating and MaxRating
func generateUsers(count int) []models.User {
	users := make([]models.User, count)
	for i := 0; i < count; i++ {
		users[i] = models.User{
			Handle: fmt.Sprintf("%s%d", HandlePrefix, i+1),
			Rating: rand.Intn(MaxRating-MinRating+1) + MinRating,
		}
	}
	return users
}

// seedPostgres inserts racers into PostgreSQL in batches
func seedPostgres(ctx context.Context, repo *repository.PostgresRepository, users []models.User) error {
	startTime := time.Now()

	if err := repo.BulkInsertUsers(ctx, users, BatchSize); err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	duration := time.Since(startTime)
	log.Printf("   ✓ Inserted %d racers in %v (%.0f racers/sec)",
		len(users), duration, float64(len(users))/duration.Seconds())
	return nil
}

// seedRedis populates the Redis leaderboard using pipelining
func seedRedis(ctx context.Context, repo *repository.RedisRepository, users []models.User) error {
	startTime := time.Now()

	playerMap := make(map[string]int, len(users))
	for _, user := range users {
		playerMap[user.Handle] = user.Rating
	}
	if err := repo.BulkUpdateRatings(ctx, playerMap); err != nil {
		return fmt.Errorf("bulk update failed: %w", err)
	}

	duration := time.Since(startTime)
	log.Printf("   ✓ Populated Redis with %d racers in %v (%.0f racers/sec)",
		len(users), duration, float64(len(users))/duration.Seconds())
	return nil
}

// initPostgres initializes PostgreSQL connection
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

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     50,
		MinIdleConns: 10,
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
