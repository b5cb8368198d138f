package service

import (
	"context"
	"fmt"
	"log"

	"tapdash/internal/models"
	"tapdash/internal/repository"

	"github.com/redis/go-redis/v9"
)

// LeaderboardService serves the rating leaderboard read path. Ratings are
// written by the settlement pool; this service only reads.
type LeaderboardService struct {
	redisRepo    *repository.RedisRepository
	postgresRepo *repository.PostgresRepository
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(redisRepo *repository.RedisRepository, postgresRepo *repository.PostgresRepository) *LeaderboardService {
	return &LeaderboardService{
		redisRepo:    redisRepo,
		postgresRepo: postgresRepo,
	}
}

// GetLeaderboard retrieves the leaderboard with tie-aware ranking (1224)
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, offset, limit int) (*models.LeaderboardResponse, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	players, err := s.redisRepo.GetTopPlayers(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top players: %w", err)
	}

	total, err := s.redisRepo.GetTotalPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get total players: %w", err)
	}

	entries := s.applyTieAwareRanking(ctx, players, offset)

	return &models.LeaderboardResponse{
		Data:   entries,
		Offset: offset,
		Limit:  limit,
		Total:  total,
	}, nil
}

// SearchPlayer returns a player's global rank and rating
func (s *LeaderboardService) SearchPlayer(ctx context.Context, handle string) (*models.SearchResponse, error) {
	rank, err := s.redisRepo.GetPlayerRank(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to get player rank: %w", err)
	}

	rating, err := s.redisRepo.GetRating(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to get player rating: %w", err)
	}

	return &models.SearchResponse{
		GlobalRank: rank,
		Handle:     handle,
		Rating:     rating,
	}, nil
}

// applyTieAwareRanking applies the 1224 ranking system: players with the
// same rating share a rank, and the next rank is offset by the number of
// players sharing the previous one.
func (s *LeaderboardService) applyTieAwareRanking(ctx context.Context, players []redis.Z, offset int) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(players))
	if len(players) == 0 {
		return entries
	}

	handles := make([]string, len(players))
	for i, p := range players {
		handles[i] = p.Member.(string)
	}

	ratings, err := s.redisRepo.GetRatingBatch(ctx, handles)
	if err != nil {
		log.Printf("Failed to fetch ratings for tie-aware ranking: %v", err)
		return entries
	}

	currentRank := offset + 1
	var previousRating int
	sameRankCount := 0

	for i, p := range players {
		handle := p.Member.(string)
		rating := ratings[handle]

		if i == 0 {
			previousRating = rating
			sameRankCount = 1
		} else if rating == previousRating {
			sameRankCount++
		} else {
			currentRank += sameRankCount
			previousRating = rating
			sameRankCount = 1
		}

		entries = append(entries, models.LeaderboardEntry{
			Rank:   currentRank,
			Handle: handle,
			Rating: rating,
		})
	}

	return entries
}

// SyncRedisFromPostgres syncs all ratings from PostgreSQL to Redis.
// Useful for initialization or recovery.
func (s *LeaderboardService) SyncRedisFromPostgres(ctx context.Context) error {
	users, err := s.postgresRepo.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to get users from PostgreSQL: %w", err)
	}
	if len(users) == 0 {
		log.Println("No users to sync")
		return nil
	}

	playerMap := make(map[string]int, len(users))
	for _, user := range users {
		playerMap[user.Handle] = user.Rating
	}

	if err := s.redisRepo.BulkUpdateRatings(ctx, playerMap); err != nil {
		return fmt.Errorf("failed to sync to Redis: %w", err)
	}

	log.Printf("Successfully synced %d players to Redis", len(users))
	return nil
}

// HealthCheck checks the health of both Redis and PostgreSQL
func (s *LeaderboardService) HealthCheck(ctx context.Context) error {
	if err := s.redisRepo.Ping(ctx); err != nil {
		return fmt.Errorf("Redis health check failed: %w", err)
	}
	if err := s.postgresRepo.Ping(ctx); err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}
	return nil
}
