// Package pb defines the wire representation of spec.md §6's abstract
// request/response body and the gRPC codec that carries it, grounded on
// the teacher's gRPC service (pkg/router/router.go, gen/inference/v1)
// but hand-rolled as JSON instead of protoc-generated messages: a
// custom encoding.Codec registered under the "json" subtype lets
// google.golang.org/grpc's server/client machinery carry these types
// without a .proto toolchain step (spec.md §6).
package pb

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
)

func init() {
	encoding.RegisterCodec(Codec{})
}

// Tensor is the wire form of an input or output tensor. Data is encoded
// as a JSON string (base64) by encoding/json's native []byte handling,
// satisfying spec.md §6's "raw bytes in the datatype's native
// little-endian layout".
type Tensor struct {
	Name       string            `json:"name"`
	Shape      []uint64          `json:"shape"`
	Datatype   string            `json:"datatype"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Data       []byte            `json:"data"`
}

// Request is the wire form of an InferenceRequest.
type Request struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Inputs     []Tensor       `json:"inputs"`
	Outputs    []Tensor       `json:"outputs,omitempty"`
}

// Response is the wire form of an InferenceResponse. A non-empty Error
// means every other field may be zero (spec.md §6).
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Outputs []Tensor `json:"outputs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// paramsToWire/paramsFromWire convert between the core's ordered
// ParameterMap and a plain JSON object (wire order is not significant
// to remote peers).
func paramsToWire(p *types.ParameterMap) map[string]any {
	if p == nil || p.Len() == 0 {
		return nil
	}
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[k] = v
	}
	return out
}

func paramsFromWire(m map[string]any) *types.ParameterMap {
	p := types.NewParameterMap()
	for k, v := range m {
		switch n := v.(type) {
		case float64:
			// JSON numbers decode as float64; §6 parameters are int32 or
			// double, so narrow back to int32 when the value is integral.
			if n == float64(int32(n)) {
				p.Set(k, int32(n))
			} else {
				p.Set(k, n)
			}
		default:
			p.Set(k, v)
		}
	}
	return p
}

// FromRequest converts a core Request into its wire form.
func FromRequest(r *request.Request) Request {
	wr := Request{ID: r.ID, Parameters: paramsToWire(r.Parameters)}
	for _, in := range r.Inputs {
		wr.Inputs = append(wr.Inputs, Tensor{
			Name:       in.Name,
			Shape:      in.Shape,
			Datatype:   in.Dtype.String(),
			Parameters: paramsToWire(in.Parameters),
			Data:       in.Data(),
		})
	}
	for _, out := range r.Outputs {
		wr.Outputs = append(wr.Outputs, Tensor{
			Name:     out.Name,
			Shape:    out.Shape,
			Datatype: out.Dtype.String(),
		})
	}
	return wr
}

// ToRequest converts a wire Request into a core Request with the given
// callback; the id is taken from wr.ID. It returns an error if any
// tensor names an unrecognized datatype tag.
func ToRequest(wr Request, cb request.Callback) (*request.Request, error) {
	id := wr.ID
	r := request.New(id, cb)
	if wr.Parameters != nil {
		r.Parameters = paramsFromWire(wr.Parameters)
	}
	for _, in := range wr.Inputs {
		dt, ok := types.ParseDataType(in.Datatype)
		if !ok {
			return nil, fmt.Errorf("unknown datatype tag %q for input %q", in.Datatype, in.Name)
		}
		input := request.NewOwnedInput(types.NewTensor(in.Name, in.Shape, dt), in.Data)
		if in.Parameters != nil {
			input.Parameters = paramsFromWire(in.Parameters)
		}
		r.AddInput(input)
	}
	for _, out := range wr.Outputs {
		dt, ok := types.ParseDataType(out.Datatype)
		if !ok {
			return nil, fmt.Errorf("unknown datatype tag %q for output %q", out.Datatype, out.Name)
		}
		r.AddOutput(request.NewOutput(types.NewTensor(out.Name, out.Shape, dt), nil))
	}
	return r, nil
}

// FromResponse converts a core Response into its wire form.
func FromResponse(resp *request.Response) Response {
	wr := Response{ID: resp.ID, Model: resp.Model, Error: resp.Error}
	if resp.IsError() {
		return wr
	}
	for _, out := range resp.Outputs {
		wr.Outputs = append(wr.Outputs, Tensor{
			Name:     out.Name,
			Shape:    out.Shape,
			Datatype: out.Dtype.String(),
			Data:     out.Data(),
		})
	}
	return wr
}

// ToResponse converts a wire Response into a core Response.
func ToResponse(wr Response) (*request.Response, error) {
	if wr.Error != "" {
		return request.NewErrorResponse(wr.ID, wr.Model, wr.Error), nil
	}
	resp := request.NewResponse(wr.ID, wr.Model)
	for _, out := range wr.Outputs {
		dt, ok := types.ParseDataType(out.Datatype)
		if !ok {
			return nil, fmt.Errorf("unknown datatype tag %q for output %q", out.Datatype, out.Name)
		}
		resp.AddOutput(request.NewOutput(types.NewTensor(out.Name, out.Shape, dt), out.Data))
	}
	return resp, nil
}

// Codec implements grpc's encoding.Codec as plain JSON, registered
// under the subtype "json" so the gRPC wire uses "application/grpc+json"
// instead of protobuf framing.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return "json" }
