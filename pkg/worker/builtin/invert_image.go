package builtin

import (
	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	"github.com/amdinfer/amdinfer/pkg/worker"
)

func init() {
	worker.Register("invert_image", func() worker.Worker { return newInvertImage() })
}

// invertImageWorker mirrors models/invert_image.cpp's invert<uint8_t>
// kernel, minus the OpenCV decode/encode steps: it treats its Bytes
// input as already-decoded packed RGB(A) bytes and replaces each color
// channel byte v with 255-v, passing an alpha channel through unchanged
// when channels=4.
type invertImageWorker struct {
	worker.Base
	channels int
}

func newInvertImage() *invertImageWorker {
	return &invertImageWorker{Base: worker.NewBase("invert_image", buffer.Cpu), channels: 3}
}

func (w *invertImageWorker) DoInit(params *types.ParameterMap) error {
	if err := w.Base.DoInit(params); err != nil {
		return err
	}
	w.channels = int(params.GetInt32("channels", 3))
	return nil
}

func (w *invertImageWorker) DoAcquire(params *types.ParameterMap) error {
	w.SetMetadata(worker.Metadata{Name: "invert_image"})
	return nil
}

func (w *invertImageWorker) DoRun(b *batch.Batch, _ *buffer.MemoryPool) (*batch.Batch, error) {
	newBatch := batch.New()
	channels := w.channels
	if channels <= 0 {
		channels = 3
	}

	for j := 0; j < b.Size(); j++ {
		req := b.Request(j)
		if len(req.Inputs) != 1 {
			req.RunCallbackError("invert_image", "only one input tensor should be present")
			continue
		}
		in := req.Inputs[0]
		src := in.Data()

		out := make([]byte, len(src))
		for i := 0; i+channels <= len(src); i += channels {
			out[i] = 255 - src[i]
			out[i+1] = 255 - src[i+1]
			out[i+2] = 255 - src[i+2]
			if channels == 4 {
				out[i+3] = src[i+3]
			}
		}

		newReq := req.Propagate()
		newReq.AddInput(request.NewOwnedInput(types.NewTensor("output", in.Shape, types.Bytes), out))
		newBatch.AddRequest(newReq, "invert_image", b.StartTime(j))
	}

	return newBatch, nil
}
