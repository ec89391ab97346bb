// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/qsim/gpucore"
)

// Memory management errors.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the
	// budget even after every pooled buffer was evicted.
	ErrMemoryBudgetExceeded = errors.New("cpu: memory budget exceeded")

	// ErrMemoryManagerClosed is returned when operating on a closed manager.
	ErrMemoryManagerClosed = errors.New("cpu: memory manager closed")

	// ErrBufferNotFound is returned for IDs that are not live.
	ErrBufferNotFound = errors.New("cpu: buffer not found")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default memory budget (256 MB).
	DefaultMaxMemoryMB = 256

	// MinMemoryMB is the minimum allowed budget (16 MB).
	MinMemoryMB = 16
)

// MemoryStats contains buffer memory statistics.
type MemoryStats struct {
	// TotalBytes is the budget in bytes.
	TotalBytes uint64

	// LiveBytes is the size of buffers currently handed out.
	LiveBytes uint64

	// PooledBytes is the size of released buffers kept for reuse.
	PooledBytes uint64

	// LiveBuffers is the number of buffers handed out.
	LiveBuffers int

	// PooledBuffers is the number of released buffers kept for reuse.
	PooledBuffers int

	// Reuses counts allocations served from the pool.
	Reuses uint64

	// Evictions counts pooled buffers dropped to make room.
	Evictions uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d live (%d KB), %d pooled (%d KB), budget %d MB, %d reuses, %d evictions]",
		s.LiveBuffers, s.LiveBytes/1024,
		s.PooledBuffers, s.PooledBytes/1024,
		s.TotalBytes/(1024*1024),
		s.Reuses, s.Evictions)
}

type shapeKey struct {
	width, height int
}

// slab is the host storage behind one buffer.
type slab struct {
	key     shapeKey
	cells   []float32
	element *list.Element // position in the LRU list while pooled
}

func (s *slab) sizeBytes() uint64 {
	return uint64(len(s.cells)) * 4 //nolint:gosec // lengths are non-negative
}

// MemoryManager hands out host slabs for buffers and keeps released slabs in a
// free list keyed by (width, height). Live and pooled slabs together never
// exceed the budget; pooled slabs are evicted least recently released first.
//
// MemoryManager is safe for concurrent use.
type MemoryManager struct {
	mu sync.Mutex

	budgetBytes uint64
	liveBytes   uint64
	pooledBytes uint64

	live map[gpucore.BufferID]*slab
	free map[shapeKey][]*slab

	// front = most recently released, back = least recently released
	lruList *list.List

	nextID    gpucore.BufferID
	reuses    uint64
	evictions uint64

	closed bool
}

// MemoryManagerConfig holds configuration for creating a MemoryManager.
type MemoryManagerConfig struct {
	// MaxMemoryMB is the memory budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int
}

// NewMemoryManager creates a memory manager.
func NewMemoryManager(config MemoryManagerConfig) *MemoryManager {
	maxMB := config.MaxMemoryMB
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}

	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &MemoryManager{
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		live:        make(map[gpucore.BufferID]*slab),
		free:        make(map[shapeKey][]*slab),
		lruList:     list.New(),
	}
}

// Alloc returns a new buffer of width x height cells and its storage.
// The storage content is unspecified; kernels overwrite every cell.
func (m *MemoryManager) Alloc(width, height int) (gpucore.Buffer, []float32, error) {
	if width <= 0 || height <= 0 {
		return gpucore.Buffer{}, nil, fmt.Errorf("cpu: invalid buffer size %dx%d", width, height)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return gpucore.Buffer{}, nil, ErrMemoryManagerClosed
	}

	key := shapeKey{width, height}
	s := m.takePooled(key)
	if s == nil {
		size := uint64(width) * uint64(height) * gpucore.CellBytes //nolint:gosec // sizes are positive
		if err := m.evictIfNeeded(size); err != nil {
			return gpucore.Buffer{}, nil, err
		}
		s = &slab{key: key, cells: make([]float32, width*height*gpucore.Channels)}
	}

	m.nextID++
	m.live[m.nextID] = s
	m.liveBytes += s.sizeBytes()

	buf := gpucore.Buffer{
		ID:     m.nextID,
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA32Float,
	}
	return buf, s.cells, nil
}

// takePooled removes a pooled slab of the given shape. Must be called with
// m.mu held.
func (m *MemoryManager) takePooled(key shapeKey) *slab {
	stack := m.free[key]
	if len(stack) == 0 {
		return nil
	}
	s := stack[len(stack)-1]
	stack[len(stack)-1] = nil
	if len(stack) == 1 {
		delete(m.free, key)
	} else {
		m.free[key] = stack[:len(stack)-1]
	}
	m.lruList.Remove(s.element)
	s.element = nil
	m.pooledBytes -= s.sizeBytes()
	m.reuses++
	return s
}

// evictIfNeeded drops pooled slabs until size more bytes fit in the budget.
// Must be called with m.mu held.
func (m *MemoryManager) evictIfNeeded(size uint64) error {
	for m.liveBytes+m.pooledBytes+size > m.budgetBytes {
		back := m.lruList.Back()
		if back == nil {
			return fmt.Errorf("%w: need %d bytes, %d live of %d",
				ErrMemoryBudgetExceeded, size, m.liveBytes, m.budgetBytes)
		}
		s := back.Value.(*slab) //nolint:errcheck // list holds only *slab
		m.lruList.Remove(back)
		s.element = nil
		m.removeFromFree(s)
		m.pooledBytes -= s.sizeBytes()
		m.evictions++
	}
	return nil
}

// removeFromFree drops s from its free stack. Must be called with m.mu held.
func (m *MemoryManager) removeFromFree(s *slab) {
	stack := m.free[s.key]
	for i, candidate := range stack {
		if candidate == s {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(m.free, s.key)
	} else {
		m.free[s.key] = stack
	}
}

// Lookup returns the storage of a live buffer.
func (m *MemoryManager) Lookup(id gpucore.BufferID) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBufferNotFound, id)
	}
	return s.cells, nil
}

// Free returns a live buffer to the pool.
func (m *MemoryManager) Free(id gpucore.BufferID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBufferNotFound, id)
	}
	delete(m.live, id)
	m.liveBytes -= s.sizeBytes()

	if m.closed {
		return nil
	}
	s.element = m.lruList.PushFront(s)
	m.free[s.key] = append(m.free[s.key], s)
	m.pooledBytes += s.sizeBytes()
	return nil
}

// Stats returns current memory statistics.
func (m *MemoryManager) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		TotalBytes:    m.budgetBytes,
		LiveBytes:     m.liveBytes,
		PooledBytes:   m.pooledBytes,
		LiveBuffers:   len(m.live),
		PooledBuffers: m.lruList.Len(),
		Reuses:        m.reuses,
		Evictions:     m.evictions,
	}
}

// Close drops every pooled slab. Live buffers stay readable until freed.
func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.free = make(map[shapeKey][]*slab)
	m.lruList.Init()
	m.pooledBytes = 0
}
