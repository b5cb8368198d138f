package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tapdash/internal/game"
	"tapdash/internal/models"
	"tapdash/internal/repository"
)

// SettlementPool persists finished-match results asynchronously so the
// match loops never block on storage. It implements game.SettlementRecorder.
type SettlementPool struct {
	jobs         chan game.MatchResult
	workerCount  int
	postgresRepo *repository.PostgresRepository
	redisRepo    *repository.RedisRepository
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	retry        retryConfig
	metrics      *PoolMetrics
}

// PoolMetrics tracks settlement pool performance
type PoolMetrics struct {
	mu              sync.RWMutex
	processed       int64
	failed          int64
	backpressure    int64
	totalProcessing time.Duration
}

// retryConfig controls backoff for transient persistence failures.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  100 * time.Millisecond,
	maxDelay:   2 * time.Second,
}

// NewSettlementPool creates a new settlement pool
func NewSettlementPool(workerCount, queueSize int, postgresRepo *repository.PostgresRepository, redisRepo *repository.RedisRepository) *SettlementPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &SettlementPool{
		jobs:         make(chan game.MatchResult, queueSize),
		workerCount:  workerCount,
		postgresRepo: postgresRepo,
		redisRepo:    redisRepo,
		ctx:          ctx,
		cancel:       cancel,
		retry:        defaultRetryConfig,
		metrics:      &PoolMetrics{},
	}
}

// Start initializes and starts all worker goroutines
func (sp *SettlementPool) Start() {
	log.Printf("🚀 Starting settlement pool with %d workers and queue size %d", sp.workerCount, cap(sp.jobs))

	for i := 1; i <= sp.workerCount; i++ {
		sp.wg.Add(1)
		go sp.worker(i)
	}
}

// Record queues a finished-match result for persistence. Non-blocking: a
// full queue is backpressure, logged for manual reconciliation rather than
// stalling the caller. The match has already reported match_end to both
// clients, so a settlement gap is never surfaced as a race failure.
func (sp *SettlementPool) Record(result game.MatchResult) {
	select {
	case sp.jobs <- result:
	default:
		log.Printf("⚠️ BACKPRESSURE: settlement queue full, match %s needs manual reconciliation", result.MatchID)
		sp.metrics.incrementBackpressure()
	}
}

// worker is the main worker loop that processes settlement jobs
func (sp *SettlementPool) worker(id int) {
	defer sp.wg.Done()

	for {
		select {
		case <-sp.ctx.Done():
			return
		case result, ok := <-sp.jobs:
			if !ok {
				return
			}
			sp.processResult(id, result)
		}
	}
}

// processResult persists one settlement: the race record (idempotently
// keyed by match id), the updated user ratings and the Redis leaderboard.
func (sp *SettlementPool) processResult(workerID int, result game.MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Settlement worker #%d PANIC recovered: %v (match: %s)", workerID, r, result.MatchID)
			sp.metrics.incrementFailed()
		}
	}()

	startTime := time.Now()
	record := buildRecord(result)

	err := sp.withRetry(func(ctx context.Context) error {
		return sp.postgresRepo.InsertRaceRecord(ctx, record)
	})
	if err == nil && !result.Cancelled {
		for _, s := range result.Standings {
			standing := s
			newRating := standing.Identity.Rating + standing.RatingDelta
			if rerr := sp.withRetry(func(ctx context.Context) error {
				if perr := sp.postgresRepo.UpdateRating(ctx, standing.Identity.ID, standing.Identity.Handle, newRating); perr != nil {
					return perr
				}
				return sp.redisRepo.UpdateRating(ctx, standing.Identity.Handle, newRating)
			}); rerr != nil {
				err = rerr
			}
		}
	}

	processingTime := time.Since(startTime)
	if err != nil {
		log.Printf("❌ Settlement worker #%d exhausted retries for match %s: %v, flagging for manual reconciliation",
			workerID, result.MatchID, err)
		sp.metrics.incrementFailed()
		return
	}

	sp.metrics.recordSuccess(processingTime)
}

// withRetry runs fn with exponential backoff + jitter for transient
// storage failures.
func (sp *SettlementPool) withRetry(fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= sp.retry.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(sp.ctx, 5*time.Second)
		lastErr = fn(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt < sp.retry.maxRetries {
			time.Sleep(backoffDelay(sp.retry, attempt))
		}
	}
	return lastErr
}

// backoffDelay computes delay = baseDelay * 2^attempt capped at maxDelay,
// plus jitter in [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(cfg.baseDelay))
	return delay + jitter
}

// buildRecord maps a match result onto the persistence model.
func buildRecord(result game.MatchResult) *models.RaceRecord {
	record := &models.RaceRecord{
		MatchID:    result.MatchID,
		Cancelled:  result.Cancelled,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	for _, s := range result.Standings {
		record.Results = append(record.Results, models.RaceResult{
			MatchID:      result.MatchID,
			UserID:       s.Identity.ID,
			Handle:       s.Identity.Handle,
			Distance:     s.Distance,
			Taps:         s.Taps,
			Rank:         s.Rank,
			DNF:          s.DNF,
			RatingBefore: s.Identity.Rating,
			RatingDelta:  s.RatingDelta,
		})
	}
	return record
}

// Shutdown gracefully stops the pool, flushing pending settlements.
func (sp *SettlementPool) Shutdown(timeout time.Duration) error {
	log.Printf("🛑 Shutting down settlement pool...")

	close(sp.jobs)
	done := make(chan struct{})
	go func() {
		sp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		sp.printMetrics()
		return nil
	case <-time.After(timeout):
		sp.cancel()
		log.Printf("⚠️ Settlement pool shutdown timed out after %v", timeout)
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// GetMetrics returns a snapshot of the pool metrics
func (sp *SettlementPool) GetMetrics() map[string]interface{} {
	sp.metrics.mu.RLock()
	defer sp.metrics.mu.RUnlock()

	avgProcessing := time.Duration(0)
	if sp.metrics.processed > 0 {
		avgProcessing = sp.metrics.totalProcessing / time.Duration(sp.metrics.processed)
	}

	return map[string]interface{}{
		"processed":           sp.metrics.processed,
		"failed":              sp.metrics.failed,
		"backpressure_events": sp.metrics.backpressure,
		"avg_processing_time": avgProcessing.String(),
		"queue_utilization":   fmt.Sprintf("%d/%d", len(sp.jobs), cap(sp.jobs)),
	}
}

func (sp *SettlementPool) printMetrics() {
	metrics := sp.GetMetrics()
	log.Printf("📊 Settlement Pool Metrics:")
	log.Printf("   - Processed: %v", metrics["processed"])
	log.Printf("   - Failed: %v", metrics["failed"])
	log.Printf("   - Backpressure Events: %v", metrics["backpressure_events"])
	log.Printf("   - Avg Processing Time: %v", metrics["avg_processing_time"])
}

func (pm *PoolMetrics) recordSuccess(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processed++
	pm.totalProcessing += duration
}

func (pm *PoolMetrics) incrementFailed() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failed++
}

func (pm *PoolMetrics) incrementBackpressure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.backpressure++
}
