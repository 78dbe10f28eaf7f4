package batcher

import (
	"sync"
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
)

type collectingSink struct {
	mu      sync.Mutex
	batches []*batch.Batch
	seen    chan struct{}
}

func newCollectingSink() *collectingSink {
	return &collectingSink{seen: make(chan struct{}, 16)}
}

func (s *collectingSink) Enqueue(b *batch.Batch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *collectingSink) all() []*batch.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*batch.Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

func newTestPool() *buffer.MemoryPool {
	p := buffer.NewMemoryPool()
	p.Register(buffer.Cpu)
	return p
}

func pendingEcho(n int) []*PendingRequest {
	out := make([]*PendingRequest, n)
	for i := range out {
		req := request.New("r", nil)
		req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), []byte{1, 0, 0, 0}))
		out[i] = &PendingRequest{Req: req, Model: "echo", EnqueueAt: time.Now()}
	}
	return out
}

func TestSoftBatcherFlushesOnSize(t *testing.T) {
	q := NewQueue()
	sink := newCollectingSink()
	inputs := []types.Tensor{types.NewTensor("in", []uint64{1}, types.Uint32)}
	b := New(Config{BatchSize: 2, Timeout: time.Second}, q, newTestPool(), []buffer.Kind{buffer.Cpu}, inputs, sink, "test", nil)
	b.Start()
	defer b.Stop()

	for _, p := range pendingEcho(2) {
		q.Enqueue(p)
	}
	b.Signal()

	select {
	case <-sink.seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batch")
	}

	got := sink.all()
	if len(got) != 1 || got[0].Size() != 2 {
		t.Fatalf("expected one batch of size 2, got %v", got)
	}
}

func TestSoftBatcherFlushesOnTimeout(t *testing.T) {
	q := NewQueue()
	sink := newCollectingSink()
	inputs := []types.Tensor{types.NewTensor("in", []uint64{1}, types.Uint32)}
	b := New(Config{BatchSize: 10, Timeout: 30 * time.Millisecond}, q, newTestPool(), []buffer.Kind{buffer.Cpu}, inputs, sink, "test", nil)
	b.Start()
	defer b.Stop()

	q.Enqueue(pendingEcho(1)[0])
	b.Signal()

	select {
	case <-sink.seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for undersized batch to flush on timeout")
	}

	got := sink.all()
	if len(got) != 1 || got[0].Size() != 1 {
		t.Fatalf("expected one undersized batch, got %v", got)
	}
}

func TestHardBatcherWaitsForFullSize(t *testing.T) {
	q := NewQueue()
	sink := newCollectingSink()
	inputs := []types.Tensor{types.NewTensor("in", []uint64{1}, types.Uint32)}
	b := New(Config{BatchSize: 3, Hard: true}, q, newTestPool(), []buffer.Kind{buffer.Cpu}, inputs, sink, "test", nil)
	b.Start()
	defer b.Stop()

	q.Enqueue(pendingEcho(1)[0])
	b.Signal()

	select {
	case <-sink.seen:
		t.Fatal("hard batcher must not flush before reaching batch_size")
	case <-time.After(100 * time.Millisecond):
	}

	for _, p := range pendingEcho(2) {
		q.Enqueue(p)
	}
	b.Signal()

	select {
	case <-sink.seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for full batch")
	}

	got := sink.all()
	if len(got) != 1 || got[0].Size() != 3 {
		t.Fatalf("expected one batch of size 3, got %v", got)
	}
}

func TestStopFlushesPartialBatch(t *testing.T) {
	q := NewQueue()
	sink := newCollectingSink()
	inputs := []types.Tensor{types.NewTensor("in", []uint64{1}, types.Uint32)}
	b := New(Config{BatchSize: 10, Timeout: time.Hour}, q, newTestPool(), []buffer.Kind{buffer.Cpu}, inputs, sink, "test", nil)
	b.Start()

	q.Enqueue(pendingEcho(1)[0])
	b.Signal()
	time.Sleep(20 * time.Millisecond) // let the batcher start waiting on its timer
	b.Stop()

	got := sink.all()
	if len(got) != 1 || got[0].Size() != 1 {
		t.Fatalf("expected shutdown to flush the partial batch, got %v", got)
	}
}
