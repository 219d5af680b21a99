package webhooks

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ManuelReschke/MeliDesk/internal/pkg/cache"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/metrics"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/retry"
	"github.com/gofiber/fiber/v2/log"
)

// Handler processes one queued webhook. QuestionProcessor.ProcessQueued satisfies it.
type Handler func(ctx context.Context, accountID string, event WebhookEvent) error

// BatchConfig controls the pacing of the batch processor.
type BatchConfig struct {
	// BatchSize is the number of webhooks taken from one account per iteration.
	BatchSize int
	// ItemDelay is waited between webhooks of the same iteration.
	ItemDelay time.Duration
	// BatchDelay is waited after every iteration.
	BatchDelay time.Duration
	// StatsSampleRate is the probability of logging cache statistics after an iteration.
	StatsSampleRate float64
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:       1,
		ItemDelay:       5 * time.Second,
		BatchDelay:      10 * time.Second,
		StatsSampleRate: 0.1,
	}
}

// BatchOption customizes a BatchProcessor.
type BatchOption func(b *BatchProcessor)

// WithSleeper replaces the timer based sleep, mostly for tests.
func WithSleeper(sleep retry.Sleeper) BatchOption {
	return func(b *BatchProcessor) { b.sleep = sleep }
}

func WithClock(now func() time.Time) BatchOption {
	return func(b *BatchProcessor) { b.now = now }
}

// WithCacheStats enables the sampled cache statistics log line.
func WithCacheStats(store cache.Store) BatchOption {
	return func(b *BatchProcessor) { b.cacheStats = store }
}

func WithMetrics(m *metrics.Metrics) BatchOption {
	return func(b *BatchProcessor) { b.metrics = m }
}

type queuedWebhook struct {
	event      WebhookEvent
	enqueuedAt time.Time
}

type accountBatch struct {
	accountID string
	webhooks  []queuedWebhook
	createdAt time.Time
}

// BatchStatus is a snapshot of the processor state.
type BatchStatus struct {
	Processing bool                          `json:"processing"`
	Accounts   int                           `json:"accounts"`
	Batches    map[string]AccountBatchStatus `json:"batches"`
}

type AccountBatchStatus struct {
	Pending int   `json:"pending"`
	AgeMs   int64 `json:"ageMs"`
}

// BatchProcessor queues webhooks per account and drains them one at a time.
// Accounts are served round-robin in the order they first got pending work.
type BatchProcessor struct {
	handler Handler
	cfg     BatchConfig

	mu         sync.Mutex
	batches    map[string]*accountBatch
	order      []string
	cursor     int
	processing bool
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sleep      retry.Sleeper
	now        func() time.Time
	rng        *rand.Rand
	cacheStats cache.Store
	metrics    *metrics.Metrics
}

func NewBatchProcessor(handler Handler, cfg BatchConfig, opts ...BatchOption) *BatchProcessor {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &BatchProcessor{
		handler: handler,
		cfg:     cfg,
		batches: make(map[string]*accountBatch),
		ctx:     ctx,
		cancel:  cancel,
		sleep:   retry.Sleep,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddToBatch appends event to the account queue and starts the loop when idle.
func (b *BatchProcessor) AddToBatch(accountID string, event WebhookEvent) {
	b.mu.Lock()
	now := b.now()
	batch, ok := b.batches[accountID]
	if !ok {
		batch = &accountBatch{accountID: accountID, createdAt: now}
		b.batches[accountID] = batch
		b.order = append(b.order, accountID)
	}
	batch.webhooks = append(batch.webhooks, queuedWebhook{event: event, enqueuedAt: now})
	pending := len(batch.webhooks)
	b.reportBacklogLocked()
	b.mu.Unlock()

	log.Debugf("[BatchProcessor] Queued %s for account %s (%d pending)", event.Resource, accountID, pending)
	b.startIfIdle()
}

// Flush starts the loop if it is idle and work is pending. It reports whether a loop was started.
func (b *BatchProcessor) Flush() bool {
	started := b.startIfIdle()
	if started {
		log.Info("[BatchProcessor] Flush started the processing loop")
	}
	return started
}

// GetStatus returns a snapshot for observability.
func (b *BatchProcessor) GetStatus() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	status := BatchStatus{
		Processing: b.processing,
		Accounts:   len(b.batches),
		Batches:    make(map[string]AccountBatchStatus, len(b.batches)),
	}
	for id, batch := range b.batches {
		status.Batches[id] = AccountBatchStatus{
			Pending: len(batch.webhooks),
			AgeMs:   now.Sub(batch.createdAt).Milliseconds(),
		}
	}
	return status
}

// Close stops the loop at its next wait and waits for it to return.
// Webhooks still queued are kept in memory but no longer processed.
func (b *BatchProcessor) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	log.Info("[BatchProcessor] Stopping...")
	b.cancel()
	b.wg.Wait()
	log.Info("[BatchProcessor] Stopped")
}

func (b *BatchProcessor) startIfIdle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.processing || b.closed || len(b.batches) == 0 {
		return false
	}
	b.processing = true
	b.wg.Add(1)
	go b.run()
	return true
}

func (b *BatchProcessor) run() {
	defer b.wg.Done()
	log.Info("[BatchProcessor] Processing loop started")

	for {
		accountID, items, ok := b.next()
		if !ok {
			log.Info("[BatchProcessor] All batches drained, loop stopped")
			return
		}

		for i, item := range items {
			if i > 0 {
				if err := b.sleep(b.ctx, b.cfg.ItemDelay); err != nil {
					b.requeueFront(accountID, items[i:])
					b.stop()
					return
				}
			}
			b.handle(accountID, item)
		}

		b.maybeLogCacheStats()

		if err := b.sleep(b.ctx, b.cfg.BatchDelay); err != nil {
			b.stop()
			return
		}
	}
}

// next pops up to BatchSize webhooks from the account under the cursor. When nothing is
// pending it clears the processing flag under the same lock AddToBatch uses.
func (b *BatchProcessor) next() (string, []queuedWebhook, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.closed && len(b.order) > 0 {
		if b.cursor >= len(b.order) {
			b.cursor = 0
		}
		accountID := b.order[b.cursor]
		batch := b.batches[accountID]
		if batch == nil || len(batch.webhooks) == 0 {
			b.dropLocked(accountID)
			continue
		}

		n := b.cfg.BatchSize
		if n > len(batch.webhooks) {
			n = len(batch.webhooks)
		}
		items := make([]queuedWebhook, n)
		copy(items, batch.webhooks[:n])
		batch.webhooks = batch.webhooks[n:]

		if len(batch.webhooks) == 0 {
			b.dropLocked(accountID)
		} else {
			b.cursor++
		}
		b.reportBacklogLocked()
		return accountID, items, true
	}

	b.processing = false
	return "", nil, false
}

// dropLocked removes the account under the cursor; the cursor then points at its successor.
func (b *BatchProcessor) dropLocked(accountID string) {
	delete(b.batches, accountID)
	b.order = append(b.order[:b.cursor], b.order[b.cursor+1:]...)
}

func (b *BatchProcessor) requeueFront(accountID string, items []queuedWebhook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.batches[accountID]
	if !ok {
		batch = &accountBatch{accountID: accountID, createdAt: items[0].enqueuedAt}
		b.batches[accountID] = batch
		b.order = append(b.order, accountID)
	}
	batch.webhooks = append(append([]queuedWebhook{}, items...), batch.webhooks...)
	b.reportBacklogLocked()
}

func (b *BatchProcessor) stop() {
	b.mu.Lock()
	b.processing = false
	b.mu.Unlock()
	log.Info("[BatchProcessor] Processing loop interrupted")
}

func (b *BatchProcessor) handle(accountID string, item queuedWebhook) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[BatchProcessor] Panic while processing %s for account %s: %v", item.event.Resource, accountID, r)
		}
	}()

	start := b.now()
	if err := b.handler(b.ctx, accountID, item.event); err != nil {
		log.Errorf("[BatchProcessor] Error processing %s for account %s: %v", item.event.Resource, accountID, err)
		return
	}
	log.Debugf("[BatchProcessor] Processed %s for account %s in %s (queued %s)",
		item.event.Resource, accountID, b.now().Sub(start), start.Sub(item.enqueuedAt))
}

func (b *BatchProcessor) maybeLogCacheStats() {
	if b.cacheStats == nil || b.cfg.StatsSampleRate <= 0 {
		return
	}
	if b.rng.Float64() >= b.cfg.StatsSampleRate {
		return
	}
	stats := b.cacheStats.Stats()
	log.Infof("[BatchProcessor] Cache stats: hits=%d misses=%d sets=%d errors=%d hit_rate=%.1f%%",
		stats.Hits, stats.Misses, stats.Sets, stats.Errors, stats.HitRate()*100)
}

func (b *BatchProcessor) reportBacklogLocked() {
	pending := 0
	for _, batch := range b.batches {
		pending += len(batch.webhooks)
	}
	b.metrics.SetBatchBacklog(len(b.batches), pending)
}
