// Package request implements the request/response data model of
// spec.md §3: InferenceRequestInput/Output, InferenceRequest, and
// InferenceResponse, including the single-shot callback contract.
package request

import (
	"sync/atomic"

	"github.com/amdinfer/amdinfer/pkg/types"
)

// Input is a Tensor plus either a non-owning data pointer (a slice
// aliasing a batch buffer) or an owned byte buffer; exactly one is
// active, discriminated by SharedData.
type Input struct {
	types.Tensor
	Parameters *types.ParameterMap

	data       []byte // non-owning view, e.g. into a batch buffer
	ownedBytes []byte // owned bytes, set when the request supplied its own storage
}

// NewOwnedInput builds an Input that owns its bytes (e.g. parsed
// directly off the wire).
func NewOwnedInput(tensor types.Tensor, data []byte) *Input {
	return &Input{Tensor: tensor, Parameters: types.NewParameterMap(), ownedBytes: data}
}

// NewViewInput builds an Input whose data aliases memory it does not own
// (e.g. a batch buffer slot set by a batcher/worker).
func NewViewInput(tensor types.Tensor, data []byte) *Input {
	return &Input{Tensor: tensor, Parameters: types.NewParameterMap(), data: data}
}

// SharedData reports whether this input is a non-owning view (true) or
// carries its own owned bytes (false).
func (i *Input) SharedData() bool { return i.data != nil }

// Data returns the active byte slice regardless of ownership.
func (i *Input) Data() []byte {
	if i.data != nil {
		return i.data
	}
	return i.ownedBytes
}

// SetData points this input at a non-owning view, e.g. an offset inside
// a batch's input buffer (spec.md §4.2 step 4).
func (i *Input) SetData(data []byte) {
	i.data = data
	i.ownedBytes = nil
}

// Output is a Tensor plus optional owned bytes. On a request, an empty
// Output means "describe which output tensor the client wants"; on a
// response, it carries the produced tensor.
type Output struct {
	types.Tensor
	Parameters *types.ParameterMap
	data       []byte
}

// NewOutput builds an Output descriptor, optionally with data attached.
func NewOutput(tensor types.Tensor, data []byte) *Output {
	return &Output{Tensor: tensor, Parameters: types.NewParameterMap(), data: data}
}

// Data returns the output's bytes, nil if none have been produced/requested yet.
func (o *Output) Data() []byte { return o.data }

// SetData attaches produced bytes to the output.
func (o *Output) SetData(data []byte) { o.data = data }

// Callback delivers a finished InferenceResponse exactly once.
type Callback func(*Response)

// Request is the unit of work submitted to an endpoint: an ordered list
// of inputs, an ordered list of requested outputs (may be empty), its
// own parameters, an id, and a single-shot callback.
type Request struct {
	ID         string
	Inputs     []*Input
	Outputs    []*Output
	Parameters *types.ParameterMap
	Trace      map[string]string // opaque per-request trace carrier (spec.md §9)

	callback atomic.Pointer[Callback]
	fired    atomic.Bool
}

// New builds a Request with no inputs/outputs yet.
func New(id string, cb Callback) *Request {
	r := &Request{
		ID:         id,
		Parameters: types.NewParameterMap(),
	}
	r.SetCallback(cb)
	return r
}

// AddInput appends an input tensor to the request.
func (r *Request) AddInput(in *Input) { r.Inputs = append(r.Inputs, in) }

// AddOutput appends a requested output descriptor to the request.
func (r *Request) AddOutput(out *Output) { r.Outputs = append(r.Outputs, out) }

// SetCallback installs (or replaces, if not yet fired) the callback.
func (r *Request) SetCallback(cb Callback) {
	r.callback.Store(&cb)
}

// Callback returns the currently installed callback without consuming it.
func (r *Request) Callback() Callback {
	if p := r.callback.Load(); p != nil {
		return *p
	}
	return nil
}

// RunCallbackOnce atomically consumes the callback and invokes it with
// resp. Subsequent calls (from any goroutine) are no-ops. This is the
// sole mechanism guaranteeing "exactly one of callback(response) or
// callback(error_response)" (spec.md §8).
func (r *Request) RunCallbackOnce(resp *Response) {
	if !r.fired.CompareAndSwap(false, true) {
		return
	}
	if p := r.callback.Load(); p != nil && *p != nil {
		(*p)(resp)
	}
}

// RunCallbackError is a convenience wrapper building an error Response
// for this request's id/model and firing the callback once.
func (r *Request) RunCallbackError(model, msg string) {
	r.RunCallbackOnce(NewErrorResponse(r.ID, model, msg))
}

// Propagate returns a fresh request carrying the same id, output
// descriptors, and callback, but no input data — used to chain through
// an ensemble without copying inputs (spec.md §3).
func (r *Request) Propagate() *Request {
	np := &Request{
		ID:         r.ID,
		Parameters: r.Parameters.Clone(),
		Trace:      r.Trace,
	}
	np.callback.Store(r.callback.Load())
	for _, o := range r.Outputs {
		np.AddOutput(NewOutput(o.Tensor, nil))
	}
	return np
}
