package worker

import (
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// Base provides the common bookkeeping most Worker implementations
// need: a parsed batch_size and a metadata holder. Implementations
// embed Base and override DoInit/DoAcquire/DoRun as needed.
type Base struct {
	name      string
	batchSize int32
	metadata  Metadata
	allocs    []buffer.Kind
}

// NewBase returns a Base declaring name and the allocator preference list.
func NewBase(name string, allocs ...buffer.Kind) Base {
	if len(allocs) == 0 {
		allocs = []buffer.Kind{buffer.Cpu}
	}
	return Base{name: name, allocs: allocs, batchSize: 1}
}

// DoInit implements the common part of Worker.DoInit: capture batch_size.
func (b *Base) DoInit(params *types.ParameterMap) error {
	b.batchSize = params.GetInt32("batch_size", 1)
	return nil
}

// DoRelease is a no-op default; override for backends with real handles.
func (b *Base) DoRelease() error { return nil }

// DoDestroy is a no-op default; override for backends with real handles.
func (b *Base) DoDestroy() error { return nil }

// GetAllocators returns the worker's declared allocator preference list.
func (b *Base) GetAllocators() []buffer.Kind { return b.allocs }

// Metadata returns the worker's declared input/output tensor shapes.
func (b *Base) Metadata() Metadata { return b.metadata }

// SetMetadata installs the metadata populated during DoAcquire.
func (b *Base) SetMetadata(m Metadata) { b.metadata = m }

// BatchSize returns the configured batch size.
func (b *Base) BatchSize() int32 { return b.batchSize }
