// Package builtin implements the core distribution's built-in workers,
// supplemented from original_source/ (src/amdinfer/models/*.cpp): echo,
// echo_multi, responder, base64_decode, invert_image, base64_encode.
// In the Go port these register themselves by name in the static
// worker registry instead of being loaded from separate shared objects
// (spec.md §9 Design Notes).
package builtin

import (
	"encoding/binary"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func init() {
	worker.Register("echo", func() worker.Worker { return newEcho() })
}

// echoWorker mirrors models/echo.cpp: one Uint32 input, one Uint32
// output equal to input+1. It optionally pads undersized batches to its
// configured batch size by replicating the 0th request's tensors
// (spec.md §4.3 "Padding policy", modeled here after the MIGraphX
// worker since this port has no MIGraphX backend to demonstrate it on).
type echoWorker struct {
	worker.Base
	pad bool
}

func newEcho() *echoWorker {
	return &echoWorker{Base: worker.NewBase("echo", buffer.Cpu)}
}

func (w *echoWorker) DoInit(params *types.ParameterMap) error {
	if err := w.Base.DoInit(params); err != nil {
		return err
	}
	w.pad = params.GetBool("pad_to_batch", false)
	return nil
}

func (w *echoWorker) DoAcquire(params *types.ParameterMap) error {
	shape := []uint64{1}
	w.SetMetadata(worker.Metadata{
		Name:    "echo",
		Inputs:  []types.Tensor{types.NewTensor("", shape, types.Uint32)},
		Outputs: []types.Tensor{types.NewTensor("", shape, types.Uint32)},
	})
	return nil
}

func (w *echoWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	newBatch := batch.New()

	originalSize := b.Size()
	effectiveSize := originalSize
	if w.pad && int32(effectiveSize) < w.BatchSize() {
		effectiveSize = int(w.BatchSize())
	}

	for j := 0; j < effectiveSize; j++ {
		src := j
		if j >= originalSize {
			src = 0 // replicate request 0 to pad, per MIGraphX-style policy
		}
		req := b.Request(src)
		newReq := req.Propagate()

		for i, in := range req.Inputs {
			var value uint32
			if len(in.Data()) >= 4 {
				value = binary.LittleEndian.Uint32(in.Data())
			}
			value++

			name := in.Name
			if i < len(req.Outputs) && req.Outputs[i].Name != "" {
				name = req.Outputs[i].Name
			}

			out := make([]byte, 4)
			binary.LittleEndian.PutUint32(out, value)
			newReq.AddInput(request.NewOwnedInput(types.NewTensor(name, in.Shape, in.Dtype), out))
		}

		if j >= originalSize {
			// Padding requests must not appear downstream (spec.md §4.3).
			continue
		}
		newBatch.AddRequest(newReq, b.Model(src), b.StartTime(src))
	}

	return newBatch, nil
}
