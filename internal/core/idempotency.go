package core

import (
	"OptionLedger/internal/observability"
	"container/list"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProcessedBatchStore is the durable tier of batch deduplication. It reports
// whether batchID was decided at a core sequence below before, so a replay of
// the command stream from the start re-applies every batch exactly once.
type ProcessedBatchStore interface {
	IsProcessed(ctx context.Context, batchID uuid.UUID, before int64) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication on batch ids
type IdempotencyChecker struct {
	// Tier 1: In-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres, optional
	db ProcessedBatchStore

	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewIdempotencyChecker(capacity int, db ProcessedBatchStore, metrics *observability.Metrics, log zerolog.Logger) *IdempotencyChecker {
	lru := NewIdempotencyLRU(capacity)
	if metrics != nil {
		lru.onEvict = metrics.DedupLRUEvictions.Inc
	}
	return &IdempotencyChecker{
		lru:     lru,
		db:      db,
		metrics: metrics,
		log:     log,
	}
}

// IsDuplicate checks if the batch has been decided before (two-tier lookup).
// sequence is the core sequence the batch would be assigned.
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, batchID uuid.UUID, sequence int64) bool {
	if ic.lru.Contains(batchID) {
		ic.recordDuplicate("lru")
		return true
	}

	if ic.db == nil {
		return false
	}
	start := time.Now()
	isDup, err := ic.db.IsProcessed(ctx, batchID, sequence)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// A DB outage must not stall the pipeline; the sequence check still
		// catches replays from the same source.
		ic.log.Warn().Err(err).Str("batch_id", batchID.String()).Msg("tier-2 dedup lookup failed")
		return false
	}
	if isDup {
		ic.recordDuplicate("postgres")
		ic.lru.Add(batchID)
		return true
	}
	return false
}

// MarkProcessed adds the id to the LRU after the batch was decided
func (ic *IdempotencyChecker) MarkProcessed(batchID uuid.UUID) {
	ic.lru.Add(batchID)
	ic.recordSize()
}

// Warm loads recently processed ids, oldest first, on restart.
func (ic *IdempotencyChecker) Warm(ids []uuid.UUID) {
	for _, id := range ids {
		ic.lru.Add(id)
	}
	ic.recordSize()
}

func (ic *IdempotencyChecker) recordDuplicate(tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(tier).Inc()
	}
}

func (ic *IdempotencyChecker) recordSize() {
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU set of batch ids.
// Not thread-safe; only the sequencer goroutine touches it.
type IdempotencyLRU struct {
	capacity int
	cache    map[uuid.UUID]*list.Element
	lruList  *list.List

	evictions int64
	onEvict   func()
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[uuid.UUID]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key uuid.UUID) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
	}
	return exists
}

// Add inserts a key (or promotes if exists)
func (lru *IdempotencyLRU) Add(key uuid.UUID) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}
	lru.cache[key] = lru.lruList.PushFront(key)
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem == nil {
		return
	}
	lru.lruList.Remove(elem)
	delete(lru.cache, elem.Value.(uuid.UUID))
	lru.evictions++
	if lru.onEvict != nil {
		lru.onEvict()
	}
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics)
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
