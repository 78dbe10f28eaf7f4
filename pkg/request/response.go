package request

import "github.com/amdinfer/amdinfer/pkg/types"

// Response mirrors Request: id, model name, outputs, parameters, an
// optional error message, and an optional trace carrier. IsError is
// true iff the error message is non-empty.
type Response struct {
	ID         string
	Model      string
	Outputs    []*Output
	Parameters *types.ParameterMap
	Error      string
	Trace      map[string]string
}

// NewResponse builds a non-error response.
func NewResponse(id, model string) *Response {
	return &Response{ID: id, Model: model, Parameters: types.NewParameterMap()}
}

// NewErrorResponse builds a response with a non-empty error message; all
// other fields may be left zero per spec.md §6.
func NewErrorResponse(id, model, msg string) *Response {
	return &Response{ID: id, Model: model, Error: msg, Parameters: types.NewParameterMap()}
}

// IsError reports whether this response carries an error.
func (r *Response) IsError() bool { return r.Error != "" }

// AddOutput appends a produced output tensor.
func (r *Response) AddOutput(o *Output) { r.Outputs = append(r.Outputs, o) }
