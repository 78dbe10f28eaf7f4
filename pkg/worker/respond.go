package worker

import (
	"github.com/amdinfer/amdinfer/pkg/batch"
	"github.com/amdinfer/amdinfer/pkg/request"
)

// Respond is the terminal-stage conversion described in spec.md §4.3
// ("Responder worker"): it translates a batch into per-request
// responses by firing each request's callback once, with the response
// outputs taken from the tensors carried in the batch requests' inputs
// (which, by the time a batch reaches this point, are the values the
// last real worker produced). Each output's bytes are copied rather
// than aliased: many inputs at this point are views into a batch
// buffer that the caller (winfo.runWorker) returns to the pool
// immediately after Respond returns, and the pool recycles buffers
// without zeroing them.
func Respond(b *batch.Batch) {
	for i, req := range b.Requests() {
		resp := request.NewResponse(req.ID, b.Model(i))
		resp.Trace = b.Trace(i)
		for _, in := range req.Inputs {
			owned := append([]byte(nil), in.Data()...)
			resp.AddOutput(request.NewOutput(in.Tensor, owned))
		}
		req.RunCallbackOnce(resp)
	}
}
