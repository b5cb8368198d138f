package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tapdash/internal/game"
)

// BotManager drives synthetic racers straight into the engine, bypassing
// the transport, to load-test matchmaking and match loops. Bots join the
// queue, tap on a ticker until their race ends, and re-queue.
type BotManager struct {
	engine  *game.Engine
	bots    []game.Identity
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// Metrics
	tapsSent   atomic.Int64
	tapErrors  atomic.Int64
	queueJoins atomic.Int64
	startTime  time.Time

	// Configuration
	tapInterval  time.Duration
	requeueEvery time.Duration
}

// BotConfig holds configuration for the bot driver
type BotConfig struct {
	Count        int           // number of bots (default 10)
	TapInterval  time.Duration // per-bot tap cadence (default 80ms)
	RequeueEvery time.Duration // how often idle bots retry join_queue (default 500ms)
	BaseRating   int           // rating given to bot identities (default 1200)
}

// NewBotManager creates a bot driver over the given engine.
func NewBotManager(engine *game.Engine, config BotConfig) *BotManager {
	if config.Count == 0 {
		config.Count = 10
	}
	if config.TapInterval == 0 {
		config.TapInterval = 80 * time.Millisecond
	}
	if config.RequeueEvery == 0 {
		config.RequeueEvery = 500 * time.Millisecond
	}
	if config.BaseRating == 0 {
		config.BaseRating = 1200
	}

	bm := &BotManager{
		engine:       engine,
		stopCh:       make(chan struct{}),
		tapInterval:  config.TapInterval,
		requeueEvery: config.RequeueEvery,
	}
	// Bot ids live far above real user ids so they never collide.
	for i := 0; i < config.Count; i++ {
		bm.bots = append(bm.bots, game.Identity{
			ID:     uint(1_000_000 + i),
			Handle: fmt.Sprintf("bot-%03d", i),
			Rating: config.BaseRating,
		})
	}
	return bm
}

// Start launches one goroutine per bot.
func (bm *BotManager) Start(ctx context.Context) error {
	if bm.running.Load() {
		return fmt.Errorf("bot driver already running")
	}
	bm.running.Store(true)
	bm.startTime = time.Now()

	log.Printf("🤖 Bot driver started: %d bots, tap every %v", len(bm.bots), bm.tapInterval)

	for _, bot := range bm.bots {
		bm.wg.Add(1)
		go bm.runBot(ctx, bot)
	}

	bm.wg.Add(1)
	go bm.metricsReporter(ctx)
	return nil
}

// Stop gracefully stops the bot driver.
func (bm *BotManager) Stop() {
	if !bm.running.Load() {
		return
	}
	bm.running.Store(false)
	close(bm.stopCh)
	bm.wg.Wait()

	elapsed := time.Since(bm.startTime)
	log.Printf("✅ Bot driver stopped: %d taps (%d errors), %d queue joins over %v",
		bm.tapsSent.Load(), bm.tapErrors.Load(), bm.queueJoins.Load(), elapsed.Round(time.Second))
}

// runBot is one bot's life: queue, tap until the match is over, requeue.
func (bm *BotManager) runBot(ctx context.Context, bot game.Identity) {
	defer bm.wg.Done()

	bm.engine.HandleConnect(bot)
	tapTicker := time.NewTicker(bm.tapInterval)
	defer tapTicker.Stop()
	requeueTicker := time.NewTicker(bm.requeueEvery)
	defer requeueTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bm.stopCh:
			return

		case <-tapTicker.C:
			err := bm.engine.Tap(bot.ID, "", time.Now().UnixMilli())
			if err == nil {
				bm.tapsSent.Add(1)
				continue
			}
			if ge, ok := game.AsGameError(err); ok {
				// Not racing yet / no match are normal between races.
				if ge.Code != game.CodeNotRacingYet && ge.Code != game.CodeNotFound {
					bm.tapErrors.Add(1)
				}
			}

		case <-requeueTicker.C:
			// The engine drops bot identities after each race because bots
			// have no live connection; re-register before re-queueing.
			bm.engine.HandleConnect(bot)
			if err := bm.engine.JoinQueue(bot.ID); err == nil {
				bm.queueJoins.Add(1)
			}
		}
	}
}

// metricsReporter logs throughput periodically.
func (bm *BotManager) metricsReporter(ctx context.Context) {
	defer bm.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bm.stopCh:
			return
		case <-ticker.C:
			elapsed := time.Since(bm.startTime)
			taps := bm.tapsSent.Load()
			log.Printf("📊 Bot driver: %d taps (%.1f/sec), %d joins, %d active matches",
				taps, float64(taps)/elapsed.Seconds(), bm.queueJoins.Load(), bm.engine.ActiveMatches())
		}
	}
}
