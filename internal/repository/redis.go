package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// LeaderboardKey is the Redis sorted set key for the rating leaderboard
	LeaderboardKey = "leaderboard:ratings"

	// MetadataKey is the Redis hash key for per-handle display ratings
	MetadataKey = "leaderboard:metadata"

	// VersionKey tracks the global leaderboard version for change detection
	VersionKey = "leaderboard:version"

	// TimestampDivisor scales a unix-seconds timestamp into a fraction
	// below one rating point for the composite score
	TimestampDivisor = 10_000_000_000
)

// RedisRepository handles all Redis operations
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

// ComputeCompositeScore folds the update timestamp (unix seconds) into
// the sorted-set score so that of two equally rated players, the one who
// reached the rating earlier ranks higher.
func ComputeCompositeScore(rating int, timestamp int64) float64 {
	return float64(rating) + (1.0 - float64(timestamp)/TimestampDivisor)
}

// ExtractBaseScore extracts the integer rating from a composite score
func ExtractBaseScore(compositeScore float64) int {
	return int(compositeScore)
}

// UpdateRating writes a player's post-settlement rating to the leaderboard
func (r *RedisRepository) UpdateRating(ctx context.Context, handle string, rating int) error {
	timestamp := time.Now().Unix()
	compositeScore := ComputeCompositeScore(rating, timestamp)

	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, LeaderboardKey, redis.Z{
		Score:  compositeScore,
		Member: handle,
	})
	pipe.HSet(ctx, MetadataKey, handle, rating)
	pipe.Incr(ctx, VersionKey)

	_, err := pipe.Exec(ctx)
	return err
}

// GetRating retrieves a player's rating from the metadata hash
func (r *RedisRepository) GetRating(ctx context.Context, handle string) (int, error) {
	ratingStr, err := r.client.HGet(ctx, MetadataKey, handle).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("player not found")
		}
		return 0, err
	}

	rating, err := strconv.Atoi(ratingStr)
	if err != nil {
		return 0, fmt.Errorf("invalid rating format: %w", err)
	}
	return rating, nil
}

// GetRatingBatch retrieves ratings for multiple players using HMGET
func (r *RedisRepository) GetRatingBatch(ctx context.Context, handles []string) (map[string]int, error) {
	if len(handles) == 0 {
		return make(map[string]int), nil
	}

	results, err := r.client.HMGet(ctx, MetadataKey, handles...).Result()
	if err != nil {
		return nil, err
	}

	ratings := make(map[string]int, len(handles))
	for i, result := range results {
		if result == nil {
			continue // player not found
		}
		ratingStr, ok := result.(string)
		if !ok {
			continue
		}
		rating, err := strconv.Atoi(ratingStr)
		if err != nil {
			continue
		}
		ratings[handles[i]] = rating
	}
	return ratings, nil
}

// GetPlayerRank calculates a player's rank using composite score comparison.
// Returns the rank (1-indexed) or error if the player is not found.
func (r *RedisRepository) GetPlayerRank(ctx context.Context, handle string) (int, error) {
	compositeScore, err := r.client.ZScore(ctx, LeaderboardKey, handle).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("player not found")
		}
		return 0, err
	}

	// Count players with composite score strictly greater than this one;
	// earlier timestamps rank higher among equals.
	count, err := r.client.ZCount(ctx, LeaderboardKey, fmt.Sprintf("(%f", compositeScore), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

// GetLeaderboardVersion returns the current global version number
func (r *RedisRepository) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	version, err := r.client.Get(ctx, VersionKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil // version not set yet
		}
		return 0, err
	}
	return version, nil
}

// GetTopPlayers retrieves a leaderboard page sorted by composite score
// in descending order
func (r *RedisRepository) GetTopPlayers(ctx context.Context, offset, limit int) ([]redis.Z, error) {
	start := int64(offset)
	stop := int64(offset + limit - 1)

	results, err := r.client.ZRevRangeWithScores(ctx, LeaderboardKey, start, stop).Result()
	if err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Score = float64(ExtractBaseScore(results[i].Score))
	}
	return results, nil
}

// GetTotalPlayers returns the total number of ranked players
func (r *RedisRepository) GetTotalPlayers(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, LeaderboardKey).Result()
}

// BulkUpdateRatings updates multiple players efficiently using a pipeline
func (r *RedisRepository) BulkUpdateRatings(ctx context.Context, players map[string]int) error {
	pipe := r.client.Pipeline()
	timestamp := time.Now().Unix()

	for handle, rating := range players {
		pipe.ZAdd(ctx, LeaderboardKey, redis.Z{
			Score:  ComputeCompositeScore(rating, timestamp),
			Member: handle,
		})
		pipe.HSet(ctx, MetadataKey, handle, rating)
		// Small timestamp increment for deterministic ordering within batch
		timestamp++
	}
	pipe.Incr(ctx, VersionKey)

	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks if Redis is reachable
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
