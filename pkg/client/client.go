// Package client implements the uniform Client façade of spec.md §4.5:
// one interface with native (in-process), HTTP, gRPC, and WebSocket
// implementations, plus the ordered-dispatch helpers of §4.6. Grounded
// on the teacher's worker-facing gRPC client usage (pkg/router/registry.go)
// generalized to the four transports spec.md names.
package client

import (
	"context"
	"time"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// Future is the async handle returned by ModelInferAsync: its Get blocks
// on the server-side callback delivering a response (spec.md §5
// "Clients' async entry points return a future whose get() blocks on
// the server-side callback").
type Future struct {
	ch chan *request.Response
}

// Get blocks until the response arrives or ctx ends.
func (f *Future) Get(ctx context.Context) (*request.Response, error) {
	select {
	case resp := <-f.ch:
		return resp, nil
	case <-ctx.Done():
		return nil, amderr.Wrap(amderr.Connection, "future: context ended before response", ctx.Err())
	}
}

// Client is the uniform façade of spec.md §4.5.
type Client interface {
	ServerLive(ctx context.Context) (bool, error)
	ServerReady(ctx context.Context) (bool, error)
	ServerMetadata(ctx context.Context) (server.Metadata, error)

	ModelReady(ctx context.Context, endpoint string) (bool, error)
	ModelList(ctx context.Context) ([]string, error)

	WorkerLoad(ctx context.Context, name string, params *types.ParameterMap) (string, error)
	WorkerUnload(ctx context.Context, endpoint string) error

	// ModelLoad/ModelUnload are the same operations keyed by model name
	// (spec.md §4.5); in this port a "model" is just a worker name, so
	// they delegate directly to WorkerLoad/WorkerUnload.
	ModelLoad(ctx context.Context, model string, params *types.ParameterMap) (string, error)
	ModelUnload(ctx context.Context, endpoint string) error

	ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error)
	ModelInferAsync(ctx context.Context, endpoint string, req *request.Request) (*Future, error)
}

// WaitUntilServerReady polls ServerReady, retrying only on
// connection_error, sleeping 1s between attempts (spec.md §4.5).
func WaitUntilServerReady(ctx context.Context, c Client) error {
	for {
		ready, err := c.ServerReady(ctx)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			if kind, ok := amderr.KindOf(err); !ok || kind != amderr.Connection {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return amderr.Wrap(amderr.Connection, "waitUntilServerReady: context ended", ctx.Err())
		case <-time.After(1 * time.Second):
		}
	}
}

// WaitUntilModelReady polls ModelReady the same way.
func WaitUntilModelReady(ctx context.Context, c Client, endpoint string) error {
	for {
		ready, err := c.ModelReady(ctx, endpoint)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			if kind, ok := amderr.KindOf(err); !ok || kind != amderr.Connection {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return amderr.Wrap(amderr.Connection, "waitUntilModelReady: context ended", ctx.Err())
		case <-time.After(1 * time.Second):
		}
	}
}
