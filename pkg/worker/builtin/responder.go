package builtin

import (
	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func init() {
	worker.Register("responder", func() worker.Worker { return newResponder() })
}

// responderWorker is the explicit terminal stage of spec.md §4.3: it
// calls worker.Respond on the batch it receives and signals the
// supervisor that the batch has already been completed by returning a
// nil batch, so the run loop does not forward or re-respond to it.
type responderWorker struct {
	worker.Base
}

func newResponder() *responderWorker {
	return &responderWorker{Base: worker.NewBase("responder", buffer.Cpu)}
}

func (w *responderWorker) DoAcquire(params *types.ParameterMap) error {
	w.SetMetadata(worker.Metadata{Name: "responder"})
	return nil
}

func (w *responderWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	worker.Respond(b)
	return nil, nil
}
