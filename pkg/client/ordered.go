package client

import (
	"context"

	"github.com/amdinfer/amdinfer/pkg/request"
)

// InferAsyncOrdered implements spec.md §4.6: submit every request in
// order, collecting futures into a FIFO, then resolve them in the same
// order they were submitted. The result is index-aligned with requests
// regardless of completion order at the server (spec.md §5).
func InferAsyncOrdered(ctx context.Context, c Client, endpoint string, requests []*request.Request) ([]*request.Response, error) {
	futures := make([]*Future, len(requests))
	for i, req := range requests {
		f, err := c.ModelInferAsync(ctx, endpoint, req)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}

	responses := make([]*request.Response, len(requests))
	for i, f := range futures {
		resp, err := f.Get(ctx)
		if err != nil {
			return nil, err
		}
		responses[i] = resp
	}
	return responses, nil
}

// InferAsyncOrderedBatched implements spec.md §4.6: the same ordering
// contract as InferAsyncOrdered, but submit and collect in windows of
// batchSize to avoid head-of-line resource exhaustion when dispatching
// many thousands of requests at once.
func InferAsyncOrderedBatched(ctx context.Context, c Client, endpoint string, requests []*request.Request, batchSize int) ([]*request.Response, error) {
	if batchSize <= 0 {
		batchSize = len(requests)
	}
	responses := make([]*request.Response, 0, len(requests))
	for start := 0; start < len(requests); start += batchSize {
		end := start + batchSize
		if end > len(requests) {
			end = len(requests)
		}
		window, err := InferAsyncOrdered(ctx, c, endpoint, requests[start:end])
		if err != nil {
			return nil, err
		}
		responses = append(responses, window...)
	}
	return responses, nil
}
