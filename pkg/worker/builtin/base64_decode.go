package builtin

import (
	"encoding/base64"

	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func init() {
	worker.Register("base64_decode", func() worker.Worker { return newBase64Decode() })
}

// base64DecodeWorker mirrors models/base64_decode.cpp, minus the OpenCV
// image decode: it base64-decodes a single Bytes input into raw output
// bytes. It declares an empty shape at acquire time since its output
// size depends on the input (spec.md §3 "dynamic output").
type base64DecodeWorker struct {
	worker.Base
}

func newBase64Decode() *base64DecodeWorker {
	return &base64DecodeWorker{Base: worker.NewBase("base64_decode", buffer.Cpu)}
}

func (w *base64DecodeWorker) DoAcquire(params *types.ParameterMap) error {
	w.SetMetadata(worker.Metadata{Name: "base64_decode"})
	return nil
}

func (w *base64DecodeWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	newBatch := batch.New()

	for j := 0; j < b.Size(); j++ {
		req := b.Request(j)
		if len(req.Inputs) != 1 {
			req.RunCallbackError("base64_decode", "only one input tensor should be present")
			continue
		}
		in := req.Inputs[0]

		decoded, err := base64.StdEncoding.DecodeString(string(in.Data()))
		if err != nil {
			req.RunCallbackError("base64_decode", "failed to decode base64 input: "+err.Error())
			continue
		}

		newReq := req.Propagate()
		shape := []uint64{uint64(len(decoded))}
		newReq.AddInput(request.NewOwnedInput(types.NewTensor("output", shape, types.Bytes), decoded))
		newBatch.AddRequest(newReq, "base64_decode", b.StartTime(j))
	}

	return newBatch, nil
}
