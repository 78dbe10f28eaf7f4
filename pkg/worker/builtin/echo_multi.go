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
	worker.Register("echo_multi", func() worker.Worker { return newEchoMulti() })
}

var echoMultiInputLengths = []uint64{1, 2}
var echoMultiOutputLengths = []uint64{1, 4, 3}

// echoMultiWorker mirrors models/echo_multi.cpp: two Uint32 inputs
// (shapes [1],[2]) and three Uint32 outputs (shapes [1],[4],[3]) filled
// by cycling the concatenated input values across the output slots. It
// declares an empty output shape at acquire time (spec.md §3 "dynamic
// output" signal) and allocates its own output buffers from the pool,
// demonstrating worker-side pool usage (spec.md §4.3).
type echoMultiWorker struct {
	worker.Base
}

func newEchoMulti() *echoMultiWorker {
	return &echoMultiWorker{Base: worker.NewBase("echo_multi", buffer.Cpu)}
}

func (w *echoMultiWorker) DoAcquire(params *types.ParameterMap) error {
	inputs := make([]types.Tensor, len(echoMultiInputLengths))
	for i, l := range echoMultiInputLengths {
		inputs[i] = types.NewTensor("", []uint64{l}, types.Uint32)
	}
	w.SetMetadata(worker.Metadata{
		Name:    "echo_multi",
		Inputs:  inputs,
		Outputs: nil, // dynamic: shape depends on nothing external here, but kept empty per the source convention
	})
	return nil
}

func (w *echoMultiWorker) DoRun(b *batch.Batch, pool *buffer.MemoryPool) (*batch.Batch, error) {
	newBatch := batch.New()
	batchSize := uint64(b.Size())
	dataSize := uint64(types.Uint32.Size())

	outBuffers := make([]*buffer.Buffer, len(echoMultiOutputLengths))
	for i, l := range echoMultiOutputLengths {
		buf, err := pool.Get(w.GetAllocators(), types.NewTensor("", []uint64{l}, types.Uint32), batchSize)
		if err != nil {
			for _, req := range b.Requests() {
				req.RunCallbackError("echo_multi", err.Error())
			}
			return nil, err
		}
		outBuffers[i] = buf
	}

	totalInputLen := uint64(0)
	for _, l := range echoMultiInputLengths {
		totalInputLen += l
	}

	for j := 0; j < b.Size(); j++ {
		req := b.Request(j)
		newReq := req.Propagate()

		args := make([]uint32, 0, totalInputLen)
		for i, in := range req.Inputs {
			_ = i
			data := in.Data()
			for k := uint64(0); k < echoMultiInputLengths[i]; k++ {
				args = append(args, binary.LittleEndian.Uint32(data[k*dataSize:]))
			}
		}

		argIdx := 0
		for i, l := range echoMultiOutputLengths {
			offset := uint64(j) * l * dataSize
			slice := outBuffers[i].Data(offset)[:l*dataSize]
			for k := uint64(0); k < l; k++ {
				binary.LittleEndian.PutUint32(slice[k*dataSize:], args[argIdx%len(args)])
				argIdx++
			}
			name := "output" + string(rune('0'+i))
			newReq.AddInput(request.NewViewInput(types.NewTensor(name, []uint64{l}, types.Uint32), slice))
		}

		newBatch.AddRequest(newReq, "echo_multi", b.StartTime(j))
	}

	newBatch.SetBuffers(outBuffers, nil)
	return newBatch, nil
}
