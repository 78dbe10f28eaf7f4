package buffer

import (
	"sync"
	"testing"

	"github.com/amdinfer/amdinfer/pkg/types"
)

func TestMemoryPoolGetPutRoundTrip(t *testing.T) {
	p := NewMemoryPool()
	p.Register(Cpu)

	tensor := types.NewTensor("x", []uint64{4}, types.Uint32)
	buf, err := p.Get([]Kind{CpuPinned, Cpu}, tensor, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if buf.Len() != 4*4*2 {
		t.Fatalf("unexpected buffer length %d", buf.Len())
	}
	p.Put(buf)
}

func TestMemoryPoolGetFailsWithoutAllocator(t *testing.T) {
	p := NewMemoryPool()
	tensor := types.NewTensor("x", []uint64{1}, types.Uint32)
	if _, err := p.Get([]Kind{Gpu}, tensor, 1); err == nil {
		t.Fatal("expected error when no preferred kind is registered")
	}
}

func TestMemoryPoolConcurrentUse(t *testing.T) {
	p := NewMemoryPool()
	p.Register(Cpu)
	tensor := types.NewTensor("x", []uint64{8}, types.Uint8)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := p.Get([]Kind{Cpu}, tensor, 1)
			if err != nil {
				t.Error(err)
				return
			}
			p.Put(buf)
		}()
	}
	wg.Wait()
}
