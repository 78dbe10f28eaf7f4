// Package winfo implements WorkerInfo, the per-endpoint supervisor of
// spec.md §3/§4.3/§4.4: it owns a worker's batcher threads, worker
// instances, and the queues that bind them, grounded on the teacher's
// Worker service (pkg/worker/server.go) generalized from a single gRPC
// worker process into an in-process pipeline stage that can chain to a
// downstream WorkerInfo.
package winfo

import "github.com/amdinfer/amdinfer/pkg/batch"

// BatchQueue is the shared MPMC queue of assembled batches a
// WorkerInfo's worker threads consume (spec.md §5). Closing it is the
// shutdown sentinel every worker goroutine observes.
type BatchQueue struct {
	ch chan *batch.Batch
}

// NewBatchQueue returns a queue buffered to absorb bursts without
// blocking batchers on slow workers.
func NewBatchQueue() *BatchQueue {
	return &BatchQueue{ch: make(chan *batch.Batch, 256)}
}

// Enqueue pushes b onto the queue, blocking if it is full (spec.md §5
// "Backpressure": a slow downstream worker stalls the batcher).
func (q *BatchQueue) Enqueue(b *batch.Batch) {
	q.ch <- b
}

// Dequeue blocks for the next batch. ok is false once the queue has
// been closed and fully drained, the signal to exit a worker loop.
func (q *BatchQueue) Dequeue() (*batch.Batch, bool) {
	b, ok := <-q.ch
	return b, ok
}

// Close signals shutdown; already-queued batches are still delivered.
func (q *BatchQueue) Close() {
	close(q.ch)
}
