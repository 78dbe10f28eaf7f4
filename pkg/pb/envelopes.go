package pb

// The envelope types below carry the non-inference endpoint-manager
// operations of spec.md §4.4/§4.5 (workerLoad/workerUnload/modelReady/
// modelList/serverMetadata) over the same hand-rolled JSON gRPC codec
// that Request/Response use for inference calls.

// InferEnvelope wraps an inference Request with the endpoint it targets
// (gRPC has no implicit URL path parameter the way HTTP does).
type InferEnvelope struct {
	Endpoint string  `json:"endpoint"`
	Request  Request `json:"request"`
}

// WorkerLoadRequest carries workerLoad's arguments.
type WorkerLoadRequest struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// WorkerLoadResponse carries the resulting endpoint string.
type WorkerLoadResponse struct {
	Endpoint string `json:"endpoint"`
}

// EndpointRequest names a single endpoint, used by workerUnload and modelReady.
type EndpointRequest struct {
	Endpoint string `json:"endpoint"`
}

// ModelReadyResponse carries modelReady's boolean result.
type ModelReadyResponse struct {
	Ready bool `json:"ready"`
}

// ModelListResponse carries modelList's result.
type ModelListResponse struct {
	Models []string `json:"models"`
}

// Empty is used for requests/responses that carry no payload.
type Empty struct{}
