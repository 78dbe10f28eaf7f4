package registry

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/amdinfer/amdinfer/pkg/buffer"
	"github.com/amdinfer/amdinfer/pkg/request"
	"github.com/amdinfer/amdinfer/pkg/types"
	_ "github.com/amdinfer/amdinfer/pkg/worker/builtin"
)

func newTestRegistry() *Registry {
	pool := buffer.NewMemoryPool()
	pool.Register(buffer.Cpu)
	return New(pool, nil, nil)
}

func TestWorkerLoadNonSharedGetsDisambiguatingSuffix(t *testing.T) {
	r := newTestRegistry()
	params := types.NewParameterMap()
	params.Set("share", false)

	ep0, err := r.WorkerLoad("echo", params)
	if err != nil {
		t.Fatalf("load 0: %v", err)
	}
	ep1, err := r.WorkerLoad("echo", params)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	if ep0 == ep1 {
		t.Fatalf("expected distinct endpoints, got %q twice", ep0)
	}
	if ep0 != "echo-0" || ep1 != "echo-1" {
		t.Fatalf("expected echo-0/echo-1, got %q/%q", ep0, ep1)
	}

	defer r.WorkerUnload(ep0)
	defer r.WorkerUnload(ep1)
}

func TestWorkerLoadSharedReusesEndpoint(t *testing.T) {
	r := newTestRegistry()
	params := types.NewParameterMap()

	ep0, err := r.WorkerLoad("echo", params)
	if err != nil {
		t.Fatalf("load 0: %v", err)
	}
	ep1, err := r.WorkerLoad("echo", params)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	if ep0 != ep1 {
		t.Fatalf("expected shared endpoint, got %q and %q", ep0, ep1)
	}

	if err := r.WorkerUnload(ep0); err != nil {
		t.Fatalf("unload 1st ref: %v", err)
	}
	if !r.ModelReady(ep0) {
		t.Fatal("endpoint should still be ready after one of two unloads")
	}
	if err := r.WorkerUnload(ep1); err != nil {
		t.Fatalf("unload 2nd ref: %v", err)
	}
	if r.ModelReady(ep0) {
		t.Fatal("endpoint should be gone after matching unloads")
	}
}

func TestModelListLifecycle(t *testing.T) {
	r := newTestRegistry()
	if len(r.ModelList()) != 0 {
		t.Fatal("expected empty model list initially")
	}

	ep, err := r.WorkerLoad("echo", types.NewParameterMap())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if list := r.ModelList(); len(list) != 1 || list[0] != ep {
		t.Fatalf("expected [%q], got %v", ep, list)
	}

	if err := r.WorkerUnload(ep); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if len(r.ModelList()) != 0 {
		t.Fatal("expected empty model list after unload")
	}
}

func TestLoadEnsembleEndToEnd(t *testing.T) {
	r := newTestRegistry()
	endpoints, err := r.LoadEnsemble([]string{"base64_decode", "invert_image", "base64_encode"}, types.NewParameterMap())
	if err != nil {
		t.Fatalf("loadEnsemble: %v", err)
	}
	if len(endpoints) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(endpoints))
	}
	defer func() {
		for _, ep := range endpoints {
			r.WorkerUnload(ep)
		}
	}()

	raw := []byte{10, 20, 30, 255, 0, 128}
	encoded := base64.StdEncoding.EncodeToString(raw)

	req := request.New("req-1", nil)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{uint64(len(encoded))}, types.Bytes), []byte(encoded)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := r.ModelInfer(ctx, endpoints[0], req)
	if err != nil {
		t.Fatalf("modelInfer: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("error response: %s", resp.Error)
	}

	finalRaw, err := base64.StdEncoding.DecodeString(string(resp.Outputs[0].Data()))
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	for i, v := range raw {
		if want := byte(255) - v; finalRaw[i] != want {
			t.Fatalf("byte %d: got %d want %d", i, finalRaw[i], want)
		}
	}
}

func TestEchoModelInferAsync(t *testing.T) {
	r := newTestRegistry()
	ep, err := r.WorkerLoad("echo", types.NewParameterMap())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer r.WorkerUnload(ep)

	done := make(chan *request.Response, 1)
	req := request.New("req-1", func(resp *request.Response) { done <- resp })
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 7)
	req.AddInput(request.NewOwnedInput(types.NewTensor("in", []uint64{1}, types.Uint32), data))

	if err := r.ModelInferAsync(ep, req); err != nil {
		t.Fatalf("modelInferAsync: %v", err)
	}

	select {
	case resp := <-done:
		if resp.IsError() {
			t.Fatalf("error response: %s", resp.Error)
		}
		got := binary.LittleEndian.Uint32(resp.Outputs[0].Data())
		if got != 8 {
			t.Fatalf("expected 8, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}
