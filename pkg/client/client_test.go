package client

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/config"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/server"
	"github.com/amdinfer/amdinfer/pkg/types"
	_ "github.com/amdinfer/amdinfer/pkg/worker/builtin"
)

func newTestServer() *server.Server {
	pool := buffer.NewMemoryPool()
	pool.Register(buffer.Cpu)
	return server.New(config.DefaultConfig(), pool, nil)
}

func echoRequest(value uint32) *request.Request {
	req := request.New("", nil)
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))
	return req
}

func TestNativeClientEchoRoundTrip(t *testing.T) {
	srv := newTestServer()
	c := NewNative(srv)
	ctx := context.Background()

	endpoint, err := c.WorkerLoad(ctx, "echo", types.NewParameterMap())
	if err != nil {
		t.Fatalf("workerLoad: %v", err)
	}
	defer c.WorkerUnload(ctx, endpoint)

	if err := WaitUntilModelReady(ctx, c, endpoint); err != nil {
		t.Fatalf("waitUntilModelReady: %v", err)
	}

	resp, err := c.ModelInfer(ctx, endpoint, echoRequest(3))
	if err != nil {
		t.Fatalf("modelInfer: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("error response: %s", resp.Error)
	}
	got := binary.LittleEndian.Uint32(resp.Outputs[0].Data())
	if got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestInferAsyncOrderedBatchedPreservesOrder(t *testing.T) {
	srv := newTestServer()
	c := NewNative(srv)
	ctx := context.Background()

	params := types.NewParameterMap()
	params.Set("batch_size", int32(4))
	endpoint, err := c.WorkerLoad(ctx, "echo", params)
	if err != nil {
		t.Fatalf("workerLoad: %v", err)
	}
	defer c.WorkerUnload(ctx, endpoint)

	const n = 40
	requests := make([]*request.Request, n)
	for i := 0; i < n; i++ {
		requests[i] = echoRequest(uint32(i))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	responses, err := InferAsyncOrderedBatched(ctx, c, endpoint, requests, 4)
	if err != nil {
		t.Fatalf("inferAsyncOrderedBatched: %v", err)
	}
	if len(responses) != n {
		t.Fatalf("expected %d responses, got %d", n, len(responses))
	}
	for i, resp := range responses {
		if resp.IsError() {
			t.Fatalf("response %d errored: %s", i, resp.Error)
		}
		got := binary.LittleEndian.Uint32(resp.Outputs[0].Data())
		if got != uint32(i)+1 {
			t.Fatalf("response %d: expected %d, got %d (order not preserved)", i, i+1, got)
		}
	}
}

func TestWaitUntilModelReadyTimesOutOnUnknownEndpoint(t *testing.T) {
	srv := newTestServer()
	c := NewNative(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := WaitUntilModelReady(ctx, c, "nonexistent-0"); err == nil {
		t.Fatal("expected timeout error for an endpoint that never becomes ready")
	}
}
