package winfo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/batcher"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/metrics"
	"github.com/amdinfer/amdinfer/pkg/telemetry"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the load-time parameters of spec.md §6 that shape a
// WorkerInfo: Batchers/Workers thread counts, BatchSize, Timeout for
// the soft batcher, and Hard to select the strict-size variant.
type Config struct {
	Batchers  int32
	Workers   int32
	BatchSize int32
	Timeout   time.Duration
	Hard      bool
}

// DefaultConfig fills in the reserved-key defaults of spec.md §6.
func DefaultConfig() Config {
	return Config{Batchers: 1, Workers: 1, BatchSize: 1, Timeout: 100 * time.Millisecond}
}

// WorkerInfo is the per-endpoint supervisor of spec.md §3: an ingress
// queue, N batcher threads, M worker instances, and an optional link to
// a downstream WorkerInfo for ensemble chaining. Ref-counting lets the
// endpoint manager share a single WorkerInfo across repeated loads of
// the same (worker, params) pair (spec.md §4.5).
type WorkerInfo struct {
	Endpoint string

	cfg     Config
	pool    *buffer.MemoryPool
	next    *WorkerInfo
	ingress *batcher.Queue
	input   *BatchQueue

	metrics *metrics.Metrics
	tracer  *telemetry.Provider

	batchers  []*batcher.Batcher
	instances []worker.Worker

	refCount atomic.Int32
	wg       sync.WaitGroup
}

// New constructs and fully initializes a WorkerInfo: it builds
// `cfg.Workers` worker instances from name via the static registry, runs
// DoInit/DoAcquire on each, and wires `cfg.Batchers` batcher threads
// feeding a shared input queue (spec.md §4.5 "construct a fresh
// WorkerInfo... run doInit and doAcquire"). A DoAcquire error on any
// instance is fatal and torn-down instances are released before
// returning the error. m and tracer may be nil, in which case metrics
// are not recorded and no spans are started for this endpoint
// (spec.md §4.8).
func New(endpoint, name string, params *types.ParameterMap, cfg Config, pool *buffer.MemoryPool, next *WorkerInfo, m *metrics.Metrics, tracer *telemetry.Provider) (*WorkerInfo, error) {
	wi := &WorkerInfo{
		Endpoint: endpoint,
		cfg:      cfg,
		pool:     pool,
		next:     next,
		ingress:  batcher.NewQueue(),
		input:    NewBatchQueue(),
		metrics:  m,
		tracer:   tracer,
	}

	for i := int32(0); i < cfg.Workers; i++ {
		instance, err := worker.New(name)
		if err != nil {
			wi.teardownInstances()
			return nil, err
		}
		if err := instance.DoInit(params); err != nil {
			wi.teardownInstances()
			return nil, err
		}
		if err := instance.DoAcquire(params); err != nil {
			wi.teardownInstances()
			return nil, err
		}
		wi.instances = append(wi.instances, instance)
	}

	meta := wi.instances[0].Metadata()
	allocs := wi.instances[0].GetAllocators()

	for i := int32(0); i < cfg.Batchers; i++ {
		b := batcher.New(batcher.Config{BatchSize: cfg.BatchSize, Timeout: cfg.Timeout, Hard: cfg.Hard},
			wi.ingress, pool, allocs, meta.Inputs, wi, endpoint, tracer)
		wi.batchers = append(wi.batchers, b)
	}

	wi.refCount.Store(1)
	return wi, nil
}

// Enqueue implements batcher.Sink: a batcher assembling input for this
// endpoint hands its batch straight to the worker input queue.
func (wi *WorkerInfo) Enqueue(b *batch.Batch) {
	wi.input.Enqueue(b)
}

// Submit enqueues a request into the endpoint's ingress queue and wakes
// its batchers (spec.md §6 "infer").
func (wi *WorkerInfo) Submit(p *batcher.PendingRequest) {
	wi.ingress.Enqueue(p)
	for _, b := range wi.batchers {
		b.Signal()
	}
}

// Start launches the batcher and worker goroutines.
func (wi *WorkerInfo) Start() {
	for _, b := range wi.batchers {
		b.Start()
	}
	for _, instance := range wi.instances {
		wi.wg.Add(1)
		go wi.runWorker(instance)
	}
}

// Stop drains and stops every batcher (flush-then-exit, spec.md §9),
// then closes the shared input queue so worker goroutines exit once
// they've processed whatever the batchers already queued, then runs
// DoRelease/DoDestroy on each instance (spec.md §4.3 worker lifecycle).
func (wi *WorkerInfo) Stop() {
	for _, b := range wi.batchers {
		b.Stop()
	}
	wi.input.Close()
	wi.wg.Wait()
	wi.teardownInstances()
}

func (wi *WorkerInfo) teardownInstances() {
	for _, instance := range wi.instances {
		_ = instance.DoRelease()
		_ = instance.DoDestroy()
	}
}

// IncRef records another shared load() of this endpoint.
func (wi *WorkerInfo) IncRef() int32 { return wi.refCount.Add(1) }

// DecRef records an unload(); the caller should Stop the WorkerInfo
// once this reaches zero.
func (wi *WorkerInfo) DecRef() int32 { return wi.refCount.Add(-1) }

// RefCount returns the current ref count.
func (wi *WorkerInfo) RefCount() int32 { return wi.refCount.Load() }

// QueueDepth reports the current depth of the endpoint's ingress queue,
// for metrics/dashboard reporting (spec.md §9 queue depth).
func (wi *WorkerInfo) QueueDepth() int { return wi.ingress.Depth() }

// runWorker is the per-instance loop contract of spec.md §4.3/§4.4:
// repeat doRun until the input queue closes; on success, forward a
// non-nil result to next_ or, when there is none, respond to every
// request directly. A nil result (e.g. the built-in "responder" worker)
// means the instance already delivered responses itself. A DoRun error
// fails every request in the incoming batch (spec.md §7). The incoming
// batch's buffers are always returned to the pool at the tail of the
// loop (spec.md §4.1 "returnInputBuffers").
func (wi *WorkerInfo) runWorker(instance worker.Worker) {
	defer wi.wg.Done()

	for {
		b, ok := wi.input.Dequeue()
		if !ok {
			return
		}

		newBatch, err := wi.doRun(instance, b)
		switch {
		case err != nil:
			for _, req := range b.Requests() {
				req.RunCallbackError(wi.Endpoint, err.Error())
			}
		case newBatch != nil:
			if wi.next != nil {
				wi.next.Enqueue(newBatch)
			} else {
				worker.Respond(newBatch)
				returnBuffers(wi.pool, newBatch)
			}
		}

		returnBuffers(wi.pool, b)
	}
}

// doRun calls instance.DoRun wrapped with the worker-stage span and
// batch-latency metric of spec.md §4.8: the same site the C++ source
// instruments for batch size/latency, carrying forward whatever span
// context StartBatch attached to the batch's requests so a downstream
// ensemble stage's own span chains off this one.
func (wi *WorkerInfo) doRun(instance worker.Worker, b *batch.Batch) (*batch.Batch, error) {
	var span trace.Span
	if wi.tracer != nil && b.Size() > 0 {
		var traceMap map[string]string
		_, span, traceMap = wi.tracer.StartWorkerStage(context.Background(), instance.Metadata().Name, b.Trace(0))
		for _, req := range b.Requests() {
			req.Trace = traceMap
		}
	}

	start := time.Now()
	newBatch, err := instance.DoRun(b, wi.pool)
	latency := time.Since(start)

	if wi.metrics != nil {
		wi.metrics.RecordBatch(wi.Endpoint, b.Size(), latency)
	}
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		}
		span.End()
	}
	return newBatch, err
}

func returnBuffers(pool *buffer.MemoryPool, b *batch.Batch) {
	for _, buf := range b.InputBuffers() {
		pool.Put(buf)
	}
	for _, buf := range b.OutputBuffers() {
		pool.Put(buf)
	}
}
