package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/telemetry"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// Sink receives assembled batches, handed off to a worker's input
// queue (spec.md §4.2 step 5). WorkerInfo implements this.
type Sink interface {
	Enqueue(b *batch.Batch)
}

// Config holds the tunables of spec.md §4.2: BatchSize applies to both
// variants; Timeout only matters when Hard is false.
type Config struct {
	BatchSize int32
	Timeout   time.Duration
	Hard      bool
}

// Batcher is the long-running stage of spec.md §4.2: it dequeues
// requests, assembles a Batch sized for the worker's declared input
// tensors and allocator preferences, and forwards it to Sink. Set
// Config.Hard to get the strict-size variant (spec.md §4.2.2); leave it
// false for size-or-timeout (spec.md §4.2.1).
type Batcher struct {
	cfg      Config
	queue    *Queue
	pool     *buffer.MemoryPool
	allocs   []buffer.Kind
	inputs   []types.Tensor
	sink     Sink
	endpoint string
	tracer   *telemetry.Provider

	notify chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Batcher. inputs is the worker's declared Metadata.Inputs,
// used to size each input slot's batch-wide buffer. endpoint names the
// owning WorkerInfo for span attributes and metrics labels; tracer may
// be nil, in which case no spans are started (spec.md §9).
func New(cfg Config, queue *Queue, pool *buffer.MemoryPool, allocs []buffer.Kind, inputs []types.Tensor, sink Sink, endpoint string, tracer *telemetry.Provider) *Batcher {
	return &Batcher{
		cfg:      cfg,
		queue:    queue,
		pool:     pool,
		allocs:   allocs,
		inputs:   inputs,
		sink:     sink,
		endpoint: endpoint,
		tracer:   tracer,
		notify:   make(chan struct{}, 256),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the assembly loop in a background goroutine.
func (b *Batcher) Start() {
	b.wg.Add(1)
	go b.loop()
}

// Stop signals shutdown and waits for the loop to flush its in-flight
// partial batch and exit (spec.md §9 open question, resolved:
// flush-then-exit).
func (b *Batcher) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

// Signal wakes the batcher after a new request has been enqueued.
func (b *Batcher) Signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			b.drainRemaining()
			return
		case <-b.notify:
		}

		pending := b.collectBatch()
		if len(pending) == 0 {
			continue
		}
		b.emit(pending)
	}
}

func (b *Batcher) collectBatch() []*PendingRequest {
	size := int(b.cfg.BatchSize)

	if b.cfg.Hard {
		for {
			if b.queue.Depth() >= size {
				return b.queue.DequeueN(size)
			}
			select {
			case <-b.stopCh:
				return b.queue.DequeueN(size)
			case <-b.notify:
			}
		}
	}

	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()
	for {
		if b.queue.Depth() >= size {
			return b.queue.DequeueN(size)
		}
		select {
		case <-b.stopCh:
			return b.queue.DequeueN(size)
		case <-timer.C:
			// Emit even if undersized (spec.md §4.2.1 step 3).
			return b.queue.DequeueN(size)
		case <-b.notify:
		}
	}
}

func (b *Batcher) drainRemaining() {
	size := int(b.cfg.BatchSize)
	for {
		pending := b.queue.DequeueN(size)
		if len(pending) == 0 {
			return
		}
		b.emit(pending)
	}
}

// emit allocates input buffers sized for the whole batch from the
// worker's preferred allocator kinds, copies each request's input data
// into its slot, and forwards the assembled Batch to Sink (spec.md
// §4.2.1 steps 4-5). A buffer-acquisition failure fails every request
// in the batch instead of forwarding it (spec.md §4.2.1 "Errors"). When
// a tracer is configured, this is also where the per-batch span starts
// (spec.md §4.8): its context is serialized into every assembled
// request's Trace so the worker stage that runs the batch can resume
// it as a child span.
func (b *Batcher) emit(pending []*PendingRequest) {
	n := uint64(len(pending))

	if b.tracer != nil {
		ctx := context.Background()
		if len(pending) > 0 {
			ctx = b.tracer.Continue(ctx, pending[0].Req.Trace)
		}
		_, span, traceMap := b.tracer.StartBatch(ctx, b.endpoint, len(pending))
		for _, p := range pending {
			p.Req.Trace = traceMap
		}
		span.End()
	}

	inputBuffers := make([]*buffer.Buffer, len(b.inputs))
	for i, t := range b.inputs {
		buf, err := b.pool.Get(b.allocs, t, n)
		if err != nil {
			for _, p := range pending {
				p.Req.RunCallbackError(p.Model, err.Error())
			}
			return
		}
		inputBuffers[i] = buf
	}

	newBatch := batch.New()
	for j, p := range pending {
		newBatch.AddRequest(p.Req, p.Model, p.EnqueueAt)
		for i, t := range b.inputs {
			if i >= len(p.Req.Inputs) {
				continue
			}
			size := t.ByteSize()
			offset := uint64(j) * size
			dst := inputBuffers[i].Data(offset)[:size]
			copy(dst, p.Req.Inputs[i].Data())
			p.Req.Inputs[i].SetData(dst)
		}
	}
	newBatch.SetBuffers(inputBuffers, nil)

	b.sink.Enqueue(newBatch)
}
