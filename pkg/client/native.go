package client

import (
	"context"

	"github.com/amdinfer/amdinfer/pkg/amderr"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
)

// NativeClient talks directly to an in-process Server's registry
// (spec.md §4.5 "The native client talks directly to the endpoint
// manager").
type NativeClient struct {
	srv *server.Server
}

// NewNative wraps srv as a Client.
func NewNative(srv *server.Server) *NativeClient {
	return &NativeClient{srv: srv}
}

func (c *NativeClient) ServerLive(ctx context.Context) (bool, error) { return true, nil }

func (c *NativeClient) ServerReady(ctx context.Context) (bool, error) { return true, nil }

func (c *NativeClient) ServerMetadata(ctx context.Context) (server.Metadata, error) {
	return c.srv.Metadata(), nil
}

func (c *NativeClient) ModelReady(ctx context.Context, endpoint string) (bool, error) {
	return c.srv.Registry().ModelReady(endpoint), nil
}

func (c *NativeClient) ModelList(ctx context.Context) ([]string, error) {
	return c.srv.Registry().ModelList(), nil
}

func (c *NativeClient) WorkerLoad(ctx context.Context, name string, params *types.ParameterMap) (string, error) {
	return c.srv.Registry().WorkerLoad(name, params)
}

func (c *NativeClient) WorkerUnload(ctx context.Context, endpoint string) error {
	return c.srv.Registry().WorkerUnload(endpoint)
}

func (c *NativeClient) ModelLoad(ctx context.Context, model string, params *types.ParameterMap) (string, error) {
	return c.WorkerLoad(ctx, model, params)
}

func (c *NativeClient) ModelUnload(ctx context.Context, endpoint string) error {
	return c.WorkerUnload(ctx, endpoint)
}

func (c *NativeClient) ModelInfer(ctx context.Context, endpoint string, req *request.Request) (*request.Response, error) {
	return c.srv.Registry().ModelInfer(ctx, endpoint, req)
}

func (c *NativeClient) ModelInferAsync(ctx context.Context, endpoint string, req *request.Request) (*Future, error) {
	f := &Future{ch: make(chan *request.Response, 1)}
	req.SetCallback(func(resp *request.Response) { f.ch <- resp })
	if err := c.srv.Registry().ModelInferAsync(endpoint, req); err != nil {
		return nil, amderr.Wrap(amderr.Runtime, "modelInferAsync failed", err)
	}
	return f, nil
}
