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
	worker.Register("base64_encode", func() worker.Worker { return newBase64Encode() })
}

// base64EncodeWorker is the inverse of base64DecodeWorker: it
// base64-encodes a single raw Bytes input (grounded on
// models/base64_encode.cpp, minus its OpenCV JPEG re-encode step — this
// port encodes the raw bytes directly rather than re-encoding through
// an image codec).
type base64EncodeWorker struct {
	worker.Base
}

func newBase64Encode() *base64EncodeWorker {
	return &base64EncodeWorker{Base: worker.NewBase("base64_encode", buffer.Cpu)}
}

func (w *base64EncodeWorker) DoAcquire(params *types.ParameterMap) error {
	w.SetMetadata(worker.Metadata{Name: "base64_encode"})
	return nil
}

func (w *base64EncodeWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	newBatch := batch.New()

	for j := 0; j < b.Size(); j++ {
		req := b.Request(j)
		if len(req.Inputs) != 1 {
			req.RunCallbackError("base64_encode", "only one input tensor should be present")
			continue
		}
		in := req.Inputs[0]

		encoded := base64.StdEncoding.EncodeToString(in.Data())

		newReq := req.Propagate()
		shape := []uint64{uint64(len(encoded))}
		newReq.AddInput(request.NewOwnedInput(types.NewTensor("output", shape, types.Bytes), []byte(encoded)))
		newBatch.AddRequest(newReq, "base64_encode", b.StartTime(j))
	}

	return newBatch, nil
}
