package buffer

import (
	"sync"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// allocator is a thread-safe free-list of same-kind buffers, bucketed by
// size so Get can hand back a buffer that's already large enough instead
// of always allocating fresh (spec.md §4.1 "may grow... or reuse returned
// buffers").
type allocator struct {
	mu      sync.Mutex
	kind    Kind
	buckets map[uint64][]*Buffer
}

func newAllocator(kind Kind) *allocator {
	return &allocator{kind: kind, buckets: make(map[uint64][]*Buffer)}
}

func (a *allocator) get(size uint64) *Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket := a.buckets[size]
	if len(bucket) > 0 {
		b := bucket[len(bucket)-1]
		a.buckets[size] = bucket[:len(bucket)-1]
		return b
	}
	return NewBuffer(a.kind, size)
}

func (a *allocator) put(b *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := b.Len()
	a.buckets[size] = append(a.buckets[size], b)
}

// MemoryPool is the allocator registry keyed by memory-kind (spec.md
// §4.1). Every Get() call must be matched by exactly one Put().
type MemoryPool struct {
	mu         sync.RWMutex
	allocators map[Kind]*allocator
}

// NewMemoryPool returns an empty pool. Allocators are registered with
// Register and grown elastically on demand (spec.md §9 open question,
// resolved in DESIGN.md: elastic growth).
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{allocators: make(map[Kind]*allocator)}
}

// Register makes kind available to Get. Calling it more than once for
// the same kind is a no-op.
func (p *MemoryPool) Register(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.allocators[kind]; !ok {
		p.allocators[kind] = newAllocator(kind)
	}
}

// Get walks preferred in order and returns the first buffer large enough
// for batchSize*tensor.ByteSize() drawn from a registered allocator of
// that kind. It fails with a Runtime error if none of the preferred
// kinds are registered.
func (p *MemoryPool) Get(preferred []Kind, tensor types.Tensor, batchSize uint64) (*Buffer, error) {
	size := tensor.ByteSize() * batchSize
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, kind := range preferred {
		if a, ok := p.allocators[kind]; ok {
			return a.get(size), nil
		}
	}
	return nil, amderr.New(amderr.Runtime, "no registered allocator for any preferred memory kind")
}

// Put returns b to its kind's allocator for reuse. Safe for concurrent use.
func (p *MemoryPool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.RLock()
	a, ok := p.allocators[b.Kind()]
	p.mu.RUnlock()
	if !ok {
		return
	}
	a.put(b)
}
