// Package batch implements Batch, the ordered group of requests sharing
// input/output buffers that flows between batchers and workers
// (spec.md §3, §4.3).
package batch

import (
	"time"

	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
)

// Batch is an ordered set of (request, model-name, start-timestamp,
// trace) tuples plus input/output buffers covering the whole batch.
type Batch struct {
	requests   []*request.Request
	models     []string
	startTimes []time.Time
	traces     []map[string]string

	inputBuffers  []*buffer.Buffer
	outputBuffers []*buffer.Buffer
}

// New returns an empty batch.
func New() *Batch { return &Batch{} }

// AddRequest appends a request, its target model name, and its
// arrival timestamp, growing the requests/models/times slices together
// (spec.md §3 invariant); traces track alongside with an empty map for
// requests with no trace. A batch built by Propagate starts with
// per-index models/times/traces but no requests.
func (b *Batch) AddRequest(req *request.Request, model string, start time.Time) {
	b.requests = append(b.requests, req)
	b.models = append(b.models, model)
	b.startTimes = append(b.startTimes, start)
	trace := req.Trace
	if trace == nil {
		trace = map[string]string{}
	}
	b.traces = append(b.traces, trace)
}

// Size returns the number of requests in the batch.
func (b *Batch) Size() int { return len(b.requests) }

// Empty reports whether the batch has zero requests.
func (b *Batch) Empty() bool { return len(b.requests) == 0 }

// Request returns the request at index.
func (b *Batch) Request(index int) *request.Request { return b.requests[index] }

// Requests returns the underlying request slice (read-only by convention).
func (b *Batch) Requests() []*request.Request { return b.requests }

// Model returns the target model name at index.
func (b *Batch) Model(index int) string { return b.models[index] }

// SetModel overwrites the target model name at index.
func (b *Batch) SetModel(index int, model string) { b.models[index] = model }

// AddModel appends a model name directly (used when building a batch
// whose requests were added separately, e.g. propagate()).
func (b *Batch) AddModel(model string) { b.models = append(b.models, model) }

// StartTime returns the arrival timestamp at index.
func (b *Batch) StartTime(index int) time.Time { return b.startTimes[index] }

// Trace returns the trace carrier at index.
func (b *Batch) Trace(index int) map[string]string { return b.traces[index] }

// SetBuffers installs the batch's input and output buffers.
func (b *Batch) SetBuffers(inputs, outputs []*buffer.Buffer) {
	b.inputBuffers = inputs
	b.outputBuffers = outputs
}

// InputBuffers returns the batch's input buffers.
func (b *Batch) InputBuffers() []*buffer.Buffer { return b.inputBuffers }

// OutputBuffers returns the batch's output buffers.
func (b *Batch) OutputBuffers() []*buffer.Buffer { return b.outputBuffers }

// Propagate yields a new batch preserving models/timestamps/traces
// per-index but with no requests and no buffers — used to build a
// downstream batch in an ensemble (spec.md §3, §8 testable property).
func (b *Batch) Propagate() *Batch {
	np := &Batch{
		models:     append([]string(nil), b.models...),
		startTimes: append([]time.Time(nil), b.startTimes...),
		traces:     append([]map[string]string(nil), b.traces...),
	}
	return np
}
