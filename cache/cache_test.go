package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewInterner(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"explicit", 100, 100 * ShardCount},
		{"zero uses default", 0, DefaultCapacity * ShardCount},
		{"negative uses default", -5, DefaultCapacity * ShardCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInterner[int](tt.capacity)
			st := in.Stats()
			if st.Capacity != tt.want {
				t.Errorf("Capacity = %d, want %d", st.Capacity, tt.want)
			}
			if st.Entries != 0 {
				t.Errorf("Entries = %d, want 0", st.Entries)
			}
		})
	}
}

func TestInternSharesEqualKeys(t *testing.T) {
	in := NewInterner[int](0)
	calls := 0
	create := func(v int) func(uint64) int {
		return func(uint64) int { calls++; return v }
	}

	v, shared := in.Intern([]byte("hadamard q0"), create(1))
	if v != 1 || shared {
		t.Fatalf("first Intern = %d, %v, want 1, false", v, shared)
	}
	v, shared = in.Intern([]byte("hadamard q0"), create(2))
	if v != 1 || !shared {
		t.Errorf("second Intern = %d, %v, want 1, true", v, shared)
	}
	v, _ = in.Intern([]byte("hadamard q1"), create(3))
	if v != 3 {
		t.Errorf("distinct key = %d, want 3", v)
	}
	if calls != 2 {
		t.Errorf("create ran %d times, want 2", calls)
	}

	st := in.Stats()
	if st.Shared != 1 || st.Created != 2 || st.Entries != 2 {
		t.Errorf("stats = %+v", st)
	}
	if got := st.ShareRate(); got < 0.33 || got > 0.34 {
		t.Errorf("ShareRate() = %v, want 1/3", got)
	}
}

func TestInternPassesDigest(t *testing.T) {
	in := NewInterner[uint64](0)
	key := []byte("swap 0 1")
	got, _ := in.Intern(key, func(d uint64) uint64 { return d })
	if got != Digest(key) {
		t.Errorf("digest = %#x, want %#x", got, Digest(key))
	}
}

// sameShardKeys returns n keys whose digests select the same shard.
func sameShardKeys(n int) [][]byte {
	var keys [][]byte
	for i := 0; len(keys) < n; i++ {
		k := []byte(fmt.Sprintf("node-%d", i))
		if Digest(k)%ShardCount == 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

func TestInternEvictsLeastRecent(t *testing.T) {
	in := NewInterner[int](2)
	keys := sameShardKeys(3)

	in.Intern(keys[0], func(uint64) int { return 0 })
	in.Intern(keys[1], func(uint64) int { return 1 })
	in.Intern(keys[0], func(uint64) int { return -1 }) // refresh keys[0]
	in.Intern(keys[2], func(uint64) int { return 2 })

	for _, k := range [][]byte{keys[0], keys[2]} {
		if _, shared := in.Intern(k, func(uint64) int { return -1 }); !shared {
			t.Errorf("key %s evicted", k)
		}
	}
	if got := in.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
	if v, shared := in.Intern(keys[1], func(uint64) int { return 5 }); shared || v != 5 {
		t.Errorf("least recent key survived eviction: %d, %v", v, shared)
	}
}

func TestInternConcurrent(t *testing.T) {
	in := NewInterner[int](100)
	var created atomic.Int32
	var wg sync.WaitGroup

	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, key := range []string{"x", "y", "z"} {
				in.Intern([]byte(key), func(uint64) int {
					created.Add(1)
					return len(key)
				})
			}
		}()
	}
	wg.Wait()

	if got := created.Load(); got != 3 {
		t.Errorf("create ran %d times, want 3", got)
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{Entries: 3, Capacity: 64, Shared: 1, Created: 3, Evictions: 2}
	want := "Intern[3/64 keys, 25.0% shared, 2 evicted]"
	if got := s.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestLRUList(t *testing.T) {
	l := newLRUList[string]()

	a := l.PushFront("a")
	b := l.PushFront("b")
	l.PushFront("c")
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	l.MoveToFront(a)
	l.Remove(b)
	l.Remove(b) // detached nodes are ignored
	for _, want := range []string{"c", "a"} {
		if removed, ok := l.RemoveOldest(); !ok || removed != want {
			t.Errorf("RemoveOldest() = %q, %v, want %s, true", removed, ok, want)
		}
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
	if _, ok := l.RemoveOldest(); ok {
		t.Error("RemoveOldest() on empty list should fail")
	}
	l.Remove(nil)
	l.MoveToFront(nil)
}
