package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

func TestWorkerPool_ForRangeCoversEveryIndexOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	for _, n := range []int{0, 1, 100, MinChunk, MinChunk + 1, 10 * MinChunk, 1 << 18} {
		hits := make([]int32, n)
		pool.ForRange(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, h)
			}
		}
	}
}

func TestWorkerPool_ForRangeAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close() // idempotent

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}

	var sum atomic.Int64
	pool.ForRange(1<<16, func(lo, hi int) {
		sum.Add(int64(hi - lo))
	})
	if sum.Load() != 1<<16 {
		t.Errorf("closed pool covered %d cells, want %d", sum.Load(), 1<<16)
	}
}

func BenchmarkWorkerPool_ForRange(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	data := make([]float32, 1<<20)
	b.ResetTimer()
	for b.Loop() {
		pool.ForRange(len(data), func(lo, hi int) {
			for i := lo; i < hi; i++ {
				data[i] += 1
			}
		})
	}
}
