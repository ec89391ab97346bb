package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	// ShardCount is the number of independently locked shards.
	ShardCount = 16

	// DefaultCapacity is the default number of keys kept per shard.
	DefaultCapacity = 4096
)

// Digest returns the xxhash of a structural key.
func Digest(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Stats describes an intern table.
type Stats struct {
	Entries   int
	Capacity  int // total over all shards
	Shared    uint64
	Created   uint64
	Evictions uint64
}

// ShareRate returns the fraction of Intern calls answered by an existing
// value.
func (s Stats) ShareRate() float64 {
	if total := s.Shared + s.Created; total > 0 {
		return float64(s.Shared) / float64(total)
	}
	return 0
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Intern[%d/%d keys, %.1f%% shared, %d evicted]",
		s.Entries, s.Capacity, s.ShareRate()*100, s.Evictions)
}

// Interner maps structural keys to values, returning the first value stored
// for a key to every later caller.
//
// Keys are spread over ShardCount shards by their digest. Each shard holds
// its own lock and LRU list; once a shard is full its least recently
// interned key is forgotten, after which the next Intern of that key creates
// a fresh value.
type Interner[V any] struct {
	shards   [ShardCount]*shard[V]
	capacity int

	shared    atomic.Uint64
	created   atomic.Uint64
	evictions atomic.Uint64
}

type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	lru     *lruList[string]
}

type entry[V any] struct {
	value V
	node  *lruNode[string]
}

// NewInterner creates an intern table holding up to capacity keys per shard.
// If capacity <= 0, DefaultCapacity is used.
func NewInterner[V any](capacity int) *Interner[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	in := &Interner[V]{capacity: capacity}
	for i := range in.shards {
		in.shards[i] = &shard[V]{
			entries: make(map[string]*entry[V]),
			lru:     newLRUList[string](),
		}
	}
	return in
}

func (in *Interner[V]) shardFor(digest uint64) *shard[V] {
	return in.shards[digest%ShardCount]
}

// Intern returns the value stored under key, or stores and returns the
// result of create. create receives the key's digest and runs with the
// shard lock held, so concurrent callers with equal keys observe a single
// value. shared reports whether an existing value was returned.
func (in *Interner[V]) Intern(key []byte, create func(digest uint64) V) (v V, shared bool) {
	digest := Digest(key)
	s := in.shardFor(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[string(key)]; ok {
		s.lru.MoveToFront(e.node)
		in.shared.Add(1)
		return e.value, true
	}
	in.created.Add(1)

	v = create(digest)
	for s.lru.Len() >= in.capacity {
		oldest, ok := s.lru.RemoveOldest()
		if !ok {
			break
		}
		delete(s.entries, oldest)
		in.evictions.Add(1)
	}
	k := string(key)
	s.entries[k] = &entry[V]{value: v, node: s.lru.PushFront(k)}
	return v, false
}

// Len returns the number of interned keys.
func (in *Interner[V]) Len() int {
	total := 0
	for _, s := range in.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// Stats returns the table's counters.
func (in *Interner[V]) Stats() Stats {
	return Stats{
		Entries:   in.Len(),
		Capacity:  in.capacity * ShardCount,
		Shared:    in.shared.Load(),
		Created:   in.created.Load(),
		Evictions: in.evictions.Load(),
	}
}
