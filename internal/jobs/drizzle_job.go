package jobs

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"mana-market/internal/services"

	"github.com/google/uuid"
)

// DrizzleJob periodically releases randomized slices of contract subsidy
// pools into live liquidity. Each contract is processed in its own
// transaction, so a failure on one contract never aborts the batch, and the
// job is safe to run at any cadence, including overlapping invocations: a
// pool drained by a concurrent run is simply skipped.
type DrizzleJob struct {
	liquidity *services.LiquidityService
	interval  time.Duration
	workers   int
	rng       *rand.Rand
	rngMu     sync.Mutex
	stopChan  chan struct{}
}

// NewDrizzleJob creates a new drizzle job. workers bounds how many
// contracts are processed in parallel, to cap load on the storage layer.
func NewDrizzleJob(liquidity *services.LiquidityService, interval time.Duration, workers int) *DrizzleJob {
	return &DrizzleJob{
		liquidity: liquidity,
		interval:  interval,
		workers:   workers,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan:  make(chan struct{}),
	}
}

// Start begins the drizzle loop
func (dj *DrizzleJob) Start() {
	log.Printf("[Drizzle] Starting subsidy drizzle job (interval: %v, workers: %d)", dj.interval, dj.workers)

	ticker := time.NewTicker(dj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dj.RunOnce(context.Background())
		case <-dj.stopChan:
			log.Println("[Drizzle] Stopping subsidy drizzle job")
			return
		}
	}
}

// Stop stops the drizzle loop
func (dj *DrizzleJob) Stop() {
	close(dj.stopChan)
}

// RunOnce executes a single drizzle pass over all eligible contracts and
// answers.
func (dj *DrizzleJob) RunOnce(ctx context.Context) {
	contractIDs, answerIDs, err := dj.liquidity.ListDrizzleTargets(ctx)
	if err != nil {
		log.Printf("[Drizzle] Error listing drizzle targets: %v", err)
		return
	}
	if len(contractIDs) == 0 && len(answerIDs) == 0 {
		return
	}

	log.Printf("[Drizzle] Drizzling %d contracts, %d answers", len(contractIDs), len(answerIDs))

	dj.forEach(contractIDs, func(id uuid.UUID) {
		if err := dj.liquidity.DrizzleContract(ctx, id, dj.random()); err != nil {
			log.Printf("[Drizzle] Error drizzling contract %s: %v", id, err)
		}
	})
	dj.forEach(answerIDs, func(id uuid.UUID) {
		if err := dj.liquidity.DrizzleAnswer(ctx, id, dj.random()); err != nil {
			log.Printf("[Drizzle] Error drizzling answer %s: %v", id, err)
		}
	})
}

// forEach runs fn over ids with a bounded worker pool. Contracts are
// independent, so order across them does not matter.
func (dj *DrizzleJob) forEach(ids []uuid.UUID, fn func(uuid.UUID)) {
	sem := make(chan struct{}, dj.workers)
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(id)
		}(id)
	}
	wg.Wait()
}

func (dj *DrizzleJob) random() float64 {
	dj.rngMu.Lock()
	defer dj.rngMu.Unlock()
	return dj.rng.Float64()
}
