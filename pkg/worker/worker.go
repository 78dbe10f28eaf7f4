// Package worker implements the Worker contract and lifecycle of
// spec.md §4.3: a stage that consumes a Batch, produces a new Batch,
// and either completes requests or forwards downstream. In place of
// the source project's dynamically loaded modules (spec.md §9 Design
// Notes), implementations register themselves in a static,
// name-keyed registry.
package worker

import (
	"fmt"
	"sync"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// Metadata describes a worker's declared input/output tensors, gathered
// during DoAcquire.
type Metadata struct {
	Name    string
	Inputs  []types.Tensor
	Outputs []types.Tensor
}

// Worker is implemented by every model back-end. Lifecycle methods are
// invoked exactly once, in order: DoInit, DoAcquire, then DoRun
// repeatedly until shutdown, then DoRelease, then DoDestroy.
type Worker interface {
	// DoInit parses load-time parameters and sets any batch-size state.
	// It must not perform heavyweight work.
	DoInit(params *types.ParameterMap) error

	// DoAcquire opens model files/device contexts and populates the
	// worker's metadata. A returned error is fatal to the load: the
	// supervisor tears the WorkerInfo down.
	DoAcquire(params *types.ParameterMap) error

	// DoRun consumes one batch and produces the next-stage batch (which
	// may be reshaped, e.g. a dynamic-output worker). Per-request errors
	// must be delivered via that request's RunCallbackOnce/RunCallbackError,
	// not returned, unless the whole batch is structurally unusable (e.g.
	// buffer allocation failed), in which case an error fails every
	// request in the batch (spec.md §7).
	DoRun(b *batch.Batch, pool *buffer.MemoryPool) (*batch.Batch, error)

	// DoRelease releases backend resources.
	DoRelease() error

	// DoDestroy performs final cleanup.
	DoDestroy() error

	// GetAllocators returns the ordered list of memory kinds this worker
	// prefers its input buffers to be drawn from.
	GetAllocators() []buffer.Kind

	// Metadata returns the worker's declared input/output tensor shapes,
	// valid only after DoAcquire has completed.
	Metadata() Metadata
}

// Constructor builds a fresh, unconfigured Worker instance.
type Constructor func() Worker

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register installs a named worker constructor into the static
// registry. It is normally called from an implementation package's
// init() function.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New resolves name to a fresh Worker instance via the static registry,
// the systems-language substitute for the source project's dynamically
// loaded module entry symbol (spec.md §9).
func New(name string) (Worker, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, amderr.New(amderr.InvalidArgument, fmt.Sprintf("no worker registered under name %q", name))
	}
	return ctor(), nil
}

// Known returns the names of all registered workers, for diagnostics.
func Known() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
