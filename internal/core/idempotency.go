package core

import (
	"container/list"
	"fmt"
)

// Deduper implements two-tier command deduplication: a hot in-memory LRU
// backed by a cold event-log lookup. Commands are keyed by
// "event_type:idempotency_key".
type Deduper struct {
	lru       *dedupLRU
	dbChecker DBIdempotencyChecker
}

// DBIdempotencyChecker is the cold-tier lookup against the persisted
// event log.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

func NewDeduper(capacity int, dbChecker DBIdempotencyChecker) *Deduper {
	return &Deduper{
		lru:       newDedupLRU(capacity),
		dbChecker: dbChecker,
	}
}

// Dedup tiers, reported as a metric label.
const (
	DedupTierLRU      = "lru"
	DedupTierPostgres = "postgres"
)

// IsDuplicate checks whether the command has already been processed. The
// second return names the tier that caught the duplicate ("" on miss).
func (d *Deduper) IsDuplicate(eventType string, idempotencyKey string) (bool, string) {
	key := fmt.Sprintf("%s:%s", eventType, idempotencyKey)

	if d.lru.contains(key) {
		return true, DedupTierLRU
	}

	if d.dbChecker != nil {
		isDup, err := d.dbChecker.IsDuplicate(eventType, idempotencyKey)
		if err != nil {
			// Conservative: a DB hiccup must not block processing.
			// A true duplicate slipping through is still caught by the
			// ON CONFLICT clauses in the event-log writer.
			return false, ""
		}
		if isDup {
			d.lru.add(key)
			return true, DedupTierPostgres
		}
	}

	return false, ""
}

// MarkProcessed records the key after successful processing.
func (d *Deduper) MarkProcessed(eventType string, idempotencyKey string) {
	d.lru.add(fmt.Sprintf("%s:%s", eventType, idempotencyKey))
}

// WarmFromKeys preloads composite keys saved in a snapshot, avoiding
// cold-path DB lookups right after a restart.
func (d *Deduper) WarmFromKeys(keys []string) {
	for _, key := range keys {
		d.lru.add(key)
	}
}

// Keys returns all cached composite keys (for snapshots).
func (d *Deduper) Keys() []string {
	return d.lru.keys()
}

// Size returns current LRU occupancy.
func (d *Deduper) Size() int {
	return d.lru.list.Len()
}

// dedupLRU is a fixed-capacity LRU of composite keys.
// Not thread-safe — only accessed from the single-threaded core.
type dedupLRU struct {
	capacity int
	index    map[string]*list.Element
	list     *list.List
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		list:     list.New(),
	}
}

func (lru *dedupLRU) contains(key string) bool {
	elem, ok := lru.index[key]
	if ok {
		lru.list.MoveToFront(elem)
	}
	return ok
}

func (lru *dedupLRU) add(key string) {
	if elem, ok := lru.index[key]; ok {
		lru.list.MoveToFront(elem)
		return
	}

	lru.index[key] = lru.list.PushFront(key)

	if lru.list.Len() > lru.capacity {
		oldest := lru.list.Back()
		if oldest != nil {
			lru.list.Remove(oldest)
			delete(lru.index, oldest.Value.(string))
		}
	}
}

func (lru *dedupLRU) keys() []string {
	out := make([]string, 0, lru.list.Len())
	for e := lru.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}
